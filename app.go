package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"

	"github.com/kwv/ledpointer/strip"
)

// App encapsulates the application state and dependencies
type App struct {
	// CLI flags (effectively dependencies)
	ConfigFile string
	Device     int
	OutputFile string
	Format     string
	HttpPort   int
	HttpMode   bool
	FPS        int
	Legacy     bool

	Out io.Writer

	// baseCtx is the parent of every run; signals cancel a child of it
	baseCtx context.Context
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		ConfigFile: "config.yaml",
		Device:     -1,
		Format:     "svg",
		Out:        os.Stdout,
		baseCtx:    context.Background(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.Device = opts.Device
	a.OutputFile = opts.OutputFile
	a.Format = opts.Format
	a.HttpPort = opts.HttpPort
	a.HttpMode = opts.HttpMode
	a.FPS = opts.FPS
	a.Legacy = opts.Legacy
}

// loadConfig loads the config file and applies command line overrides
func (a *App) loadConfig() (*strip.Config, error) {
	config, err := strip.LoadConfig(a.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w (looked at %s)", err, a.ConfigFile)
	}
	log.Printf("Loaded config from %s", a.ConfigFile)

	switch {
	case a.FPS > 0:
		config.Device.FPS = a.FPS
	case a.Legacy:
		config.Device.FPS = strip.LegacyFPS
	}

	switch {
	case a.HttpPort > 0:
		config.HTTP.Port = a.HttpPort
	case a.HttpMode && config.HTTP.Port == 0:
		config.HTTP.Port = strip.DefaultHTTPPort
	}

	return config, nil
}

// loadCatalog loads the LED mapping and checks it fits the strip
func (a *App) loadCatalog(config *strip.Config) (*strip.Catalog, error) {
	catalog, err := strip.LoadCatalog(config.Files.Catalog)
	if errors.Is(err, strip.ErrCatalogNotFound) {
		return nil, fmt.Errorf("%w (run './ledpointer --map' to record it)", err)
	}
	if err != nil {
		return nil, err
	}
	if err := catalog.Validate(config.Device.NumLEDs); err != nil {
		return nil, fmt.Errorf("%s: %w", config.Files.Catalog, err)
	}
	log.Printf("Loaded %d LED positions from %s", catalog.Len(), config.Files.Catalog)
	return catalog, nil
}

func (a *App) context() (context.Context, context.CancelFunc) {
	parent := a.baseCtx
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// output is the store-to-device path of every mode that lights the strip
type output struct {
	store  *strip.Store
	sender *strip.UDPSender
	tx     *strip.Transmitter
}

func openOutput(config *strip.Config) (*output, error) {
	sender, err := strip.DialUDP(config.Device.Host, config.Device.Port, config.Device.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("opening lighting device: %w", err)
	}
	store := strip.NewStore()
	tx := strip.NewTransmitter(store, sender, config.Device.NumLEDs, config.Device.FPS, config.Device.MaxPayload)
	log.Printf("Sending %d LEDs to %s at %d FPS", config.Device.NumLEDs, sender.RemoteAddr(), config.Device.FPS)
	return &output{store: store, sender: sender, tx: tx}, nil
}

// close blanks the strip and releases the socket
func (o *output) close() {
	o.store.Clear()
	if err := o.tx.SendFrame(); err != nil {
		log.Printf("Warning: failed to blank strip: %v", err)
	}
	if err := o.sender.Close(); err != nil {
		log.Printf("Warning: closing UDP socket: %v", err)
	}
}

func (a *App) connectTracker(config *strip.Config) (*strip.MQTTTracker, *strip.MQTTClient, error) {
	tracker := strip.NewMQTTTracker(config)
	client, err := strip.InitMQTT(config, tracker)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize MQTT: %w", err)
	}
	if client == nil {
		return nil, nil, fmt.Errorf("MQTT broker not configured in %s", a.ConfigFile)
	}
	return tracker, client, nil
}

// RunService runs the pointer: one agent per controller, the fade decay,
// the frame transmitter, status publishing and the optional HTTP server
func (a *App) RunService() error {
	fmt.Fprintln(a.Out, "Starting ledpointer service...")

	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	catalog, err := a.loadCatalog(config)
	if err != nil {
		return err
	}

	offsets, err := strip.LoadOffsets(config.Files.Calibration)
	if err != nil {
		return err
	}
	calibration := offsets.Status(config.Devices())
	if len(calibration.Missing) > 0 {
		log.Printf("Warning: no calibration for device(s) %v, rays use the raw direction", calibration.Missing)
		log.Printf("Run './ledpointer --calibrate --device N' to generate it.")
	}

	colors, err := config.ColorTable()
	if err != nil {
		return err
	}

	out, err := openOutput(config)
	if err != nil {
		return err
	}
	defer out.close()

	tracker, mqttClient, err := a.connectTracker(config)
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect()
	publisher := strip.NewPublisher(mqttClient.GetClient(), config.MQTT.PublishPrefix)

	agents := make([]*strip.Agent, 0, len(config.Controllers))
	for _, cc := range config.Controllers {
		agents = append(agents, strip.NewAgent(strip.AgentConfig{
			Device:       cc.Device,
			Name:         cc.DisplayName(),
			Offset:       offsets.Get(cc.Device),
			Threshold:    config.Pointer.Accuracy,
			FadeSteps:    config.Pointer.FadeSteps,
			Colors:       colors,
			PollInterval: config.Pointer.PollInterval,
			Debug:        config.Debug,
		}, tracker, catalog, out.store))
	}

	ctx, stop := a.context()
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	decay := strip.NewDecayTask(out.store, config.Pointer.DecayInterval, config.Debug)
	g.Go(func() error { return decay.Run(gctx) })
	g.Go(func() error { return out.tx.Run(gctx) })
	for _, agent := range agents {
		g.Go(func() error { return agent.Run(gctx) })
	}
	g.Go(func() error {
		return publisher.Run(gctx, config.MQTT.PublishInterval, strip.StatusSource{
			Agents:      agents,
			Store:       out.store,
			Transmitter: out.tx,
			NumLEDs:     config.Device.NumLEDs,
		})
	})

	if config.HTTP.Port > 0 {
		state := &serviceState{
			Config:      config,
			Catalog:     catalog,
			Store:       out.store,
			Agents:      agents,
			Transmitter: out.tx,
			Calibration: calibration,
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", config.HTTP.Port),
			Handler:           newHTTPServer(state),
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error { return serveHTTP(gctx, srv) })
	}

	a.printServiceInfo(config, tracker, catalog)

	err = g.Wait()
	fmt.Fprintln(a.Out, "\nShutting down service...")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Out, "Service stopped")
	return nil
}

// serveHTTP runs srv until ctx is cancelled
func serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server starting on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: HTTP shutdown: %v", err)
		}
		return nil
	}
}

func (a *App) printServiceInfo(config *strip.Config, tracker *strip.MQTTTracker, catalog *strip.Catalog) {
	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")

	fmt.Fprintf(a.Out, "\nStrip: %d LEDs (%d mapped) at %s:%d, %d FPS\n",
		config.Device.NumLEDs, catalog.Len(), config.Device.Host, config.Device.Port, config.Device.FPS)

	fmt.Fprintln(a.Out, "\nMQTT:")
	fmt.Fprintln(a.Out, "  Subscribed topics:")
	for _, cc := range config.Controllers {
		fmt.Fprintf(a.Out, "    - %s (%s)\n", tracker.Topic(cc.Device), cc.DisplayName())
	}
	fmt.Fprintf(a.Out, "  Publishing to: %s/controller/{device}\n", config.MQTT.PublishPrefix)
	fmt.Fprintf(a.Out, "  Strip summary: %s/strip\n", config.MQTT.PublishPrefix)

	if config.HTTP.Port > 0 {
		fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", config.HTTP.Port)
		fmt.Fprintln(a.Out, "  GET /health     - Health check")
		fmt.Fprintln(a.Out, "  GET /state      - Lit LEDs and controller status (JSON)")
		fmt.Fprintln(a.Out, "  GET /strip.svg  - Top-down LED layout with rays")
		fmt.Fprintln(a.Out, "  GET /strip.png  - Strip bar (?view=layout for the layout)")
		fmt.Fprintln(a.Out, "  GET /ws         - Live state stream (websocket)")
	}

	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")
}

// RunCalibration lights the reference LED and waits for the operator to
// point the controller at it and pull the trigger
func (a *App) RunCalibration() error {
	fmt.Fprintf(a.Out, "Calibrating device %d...\n", a.Device)

	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	if config.GetController(a.Device) == nil {
		return fmt.Errorf("device %d is not listed under controllers in %s", a.Device, a.ConfigFile)
	}
	catalog, err := a.loadCatalog(config)
	if err != nil {
		return err
	}

	out, err := openOutput(config)
	if err != nil {
		return err
	}
	defer out.close()

	tracker, mqttClient, err := a.connectTracker(config)
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect()

	calibrator := strip.NewCalibrator(tracker, catalog, config.Files.Calibration, config.Pointer.PollInterval)
	index, _, err := calibrator.Reference()
	if err != nil {
		return err
	}
	out.store.Set(index, strip.MappingWhite, 0)

	ctx, stop := a.context()
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	calCtx, done := context.WithCancel(gctx)
	defer done()

	var offset r3.Vector
	g.Go(func() error { return out.tx.Run(calCtx) })
	g.Go(func() error {
		defer done()
		var err error
		offset, err = calibrator.Calibrate(calCtx, a.Device)
		return err
	})

	fmt.Fprintf(a.Out, "Point %s at LED %d (lit white) and pull the trigger. Ctrl+C aborts.\n",
		config.GetController(a.Device).DisplayName(), index)

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("calibration aborted, %s unchanged", config.Files.Calibration)
		}
		return err
	}

	fmt.Fprintf(a.Out, "Saved offset (%.4f, %.4f, %.4f) for device %d to %s\n",
		offset.X, offset.Y, offset.Z, a.Device, config.Files.Calibration)

	if mqttClient.WaitConnected(2 * time.Second) {
		publisher := strip.NewPublisher(mqttClient.GetClient(), config.MQTT.PublishPrefix)
		if err := publisher.PublishCalibration(a.Device, offset); err != nil {
			log.Printf("Warning: publishing calibration: %v", err)
		}
	}
	return nil
}

// RunMapping records the position of every LED in turn and saves the
// catalog. An interrupted run saves what was recorded.
func (a *App) RunMapping() error {
	fmt.Fprintln(a.Out, "Starting LED mapping...")

	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(config.Files.Catalog); err == nil {
		log.Printf("Warning: %s exists and will be overwritten", config.Files.Catalog)
	}

	out, err := openOutput(config)
	if err != nil {
		return err
	}
	defer out.close()

	tracker, mqttClient, err := a.connectTracker(config)
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect()

	mapper := strip.NewMapper(tracker, out.store, config.Devices(), config.Device.NumLEDs)
	mapper.SetPollInterval(config.Pointer.PollInterval)

	ctx, stop := a.context()
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	mapCtx, done := context.WithCancel(gctx)
	defer done()

	var (
		catalog *strip.Catalog
		mapErr  error
	)
	g.Go(func() error { return out.tx.Run(mapCtx) })
	g.Go(func() error {
		defer done()
		catalog, mapErr = mapper.Map(mapCtx, func(index int, p r3.Vector) {
			fmt.Fprintf(a.Out, "LED %d/%d at (%.3f, %.3f, %.3f)\n", index+1, config.Device.NumLEDs, p.X, p.Y, p.Z)
		})
		return nil
	})

	fmt.Fprintf(a.Out, "Touch each lit LED with a controller and pull the trigger (%d LEDs). Ctrl+C saves progress.\n",
		config.Device.NumLEDs)

	if err := g.Wait(); err != nil {
		return err
	}
	if catalog == nil || catalog.Len() == 0 {
		return fmt.Errorf("mapping stopped before any LED was recorded")
	}

	if err := strip.SaveCatalog(config.Files.Catalog, catalog); err != nil {
		return err
	}
	if mapErr != nil {
		fmt.Fprintf(a.Out, "Mapping interrupted: saved %d of %d LEDs to %s\n",
			catalog.Len(), config.Device.NumLEDs, config.Files.Catalog)
		return nil
	}
	fmt.Fprintf(a.Out, "Mapped %d LEDs to %s\n", catalog.Len(), config.Files.Catalog)
	return nil
}

// RunTestPattern chases one white LED along the strip until interrupted
func (a *App) RunTestPattern() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}

	out, err := openOutput(config)
	if err != nil {
		return err
	}
	defer out.close()

	ctx, stop := a.context()
	defer stop()

	fmt.Fprintf(a.Out, "Running test pattern on %d LEDs at %s. Ctrl+C stops.\n",
		config.Device.NumLEDs, out.sender.RemoteAddr())
	step := time.Second / time.Duration(config.Device.FPS)
	return strip.ChasePattern(ctx, out.sender, config.Device.NumLEDs, strip.MappingWhite, step, config.Device.MaxPayload)
}

// RunRender writes the top-down LED layout to an SVG or PNG file
func (a *App) RunRender() error {
	catalogPath := strip.DefaultCatalogPath
	if config, err := a.loadConfig(); err != nil {
		log.Printf("Warning: %v, using %s", err, catalogPath)
	} else {
		catalogPath = config.Files.Catalog
	}

	catalog, err := strip.LoadCatalog(catalogPath)
	if err != nil {
		return err
	}

	format := a.Format
	if format == "" {
		format = "svg"
	}
	outputFile := a.OutputFile
	if outputFile == "" {
		outputFile = "led-layout." + format
	}

	f, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputFile, err)
	}

	renderer := strip.NewLayoutRenderer(catalog)
	switch format {
	case "png":
		err = renderer.RenderToPNG(f, nil, nil)
	default:
		err = renderer.RenderToSVG(f, nil, nil)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("rendering %s: %w", outputFile, err)
	}

	fmt.Fprintf(a.Out, "Rendered %d LEDs to %s\n", catalog.Len(), outputFile)
	return nil
}
