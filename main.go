package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile  string
	Calibrate   bool
	Device      int
	Map         bool
	TestPattern bool
	Render      bool
	OutputFile  string
	Format      string
	HttpPort    int
	HttpMode    bool
	FPS         int
	Legacy      bool
}

// Runner is the set of modes the command line can start
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunService() error
	RunCalibration() error
	RunMapping() error
	RunTestPattern() error
	RunRender() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("ledpointer", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.BoolVar(&opts.Calibrate, "calibrate", false, "Calibrate one controller against the first mapped LED and exit")
	fs.IntVar(&opts.Device, "device", -1, "Controller device index for --calibrate")
	fs.BoolVar(&opts.Map, "map", false, "Record LED positions one by one with the trigger and exit")
	fs.BoolVar(&opts.TestPattern, "test-pattern", false, "Run a chase pattern on the strip until interrupted")
	fs.BoolVar(&opts.Render, "render", false, "Render the LED layout and exit")
	fs.StringVar(&opts.OutputFile, "output", "", "Output file for --render (default led-layout.<format>)")
	fs.StringVar(&opts.Format, "format", "svg", "Render format: svg or png")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP status server port (overrides config)")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable the HTTP status server on the default port")
	fs.IntVar(&opts.FPS, "fps", 0, "Frame rate sent to the strip (overrides config)")
	fs.BoolVar(&opts.Legacy, "legacy", false, "Send at the legacy 30 FPS rate")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	fmt.Fprintf(out, "ledpointer version: %s\n", Version)

	switch opts.Format {
	case "svg", "png":
	default:
		return fmt.Errorf("unknown render format %q (want svg or png)", opts.Format)
	}

	app.ApplyOptions(opts)

	switch {
	case opts.Calibrate:
		if opts.Device < 0 {
			return fmt.Errorf("--calibrate requires --device")
		}
		return app.RunCalibration()
	case opts.Map:
		return app.RunMapping()
	case opts.TestPattern:
		return app.RunTestPattern()
	case opts.Render:
		return app.RunRender()
	}

	fmt.Fprintln(out, "ledpointer service starting...")
	return app.RunService()
}
