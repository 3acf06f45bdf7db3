package strip

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/golang/geo/r3"
)

// AgentConfig configures one controller agent
type AgentConfig struct {
	Device       int
	Name         string
	Offset       r3.Vector // calibration offset added to the raw direction
	Threshold    float64
	FadeSteps    int
	Colors       ColorTable
	PollInterval time.Duration
	Debug        bool
}

// AgentStatus is a point-in-time view of an agent
type AgentStatus struct {
	Device    int       `json:"device"`
	Name      string    `json:"name"`
	Connected bool      `json:"connected"`
	Color     Color     `json:"color"`
	Held      string    `json:"held"`
	Lit       []int     `json:"lit"`
	Position  r3.Vector `json:"-"`
	Direction r3.Vector `json:"-"`
	Ticks     uint64    `json:"ticks"`
	Skipped   uint64    `json:"skipped"`
}

// Agent polls one controller and lights the LEDs its ray points at
type Agent struct {
	cfg     AgentConfig
	tracker Tracker
	catalog *Catalog
	store   *Store

	mu        sync.RWMutex
	color     Color
	held      ButtonSet
	lit       []int
	pose      Pose
	connected bool
	ticks     uint64
	skipped   uint64
}

// NewAgent creates an agent for one device
func NewAgent(cfg AgentConfig, tracker Tracker, catalog *Catalog, store *Store) *Agent {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultAccuracy
	}
	if cfg.Name == "" {
		cfg.Name = ControllerConfig{Device: cfg.Device}.DisplayName()
	}
	return &Agent{
		cfg:     cfg,
		tracker: tracker,
		catalog: catalog,
		store:   store,
		color:   cfg.Colors.Base,
	}
}

// Device returns the device index
func (a *Agent) Device() int {
	return a.cfg.Device
}

// Tick runs one poll: read the pose and buttons, resolve the color, and
// light every LED the ray hits. Returns false when the pose was not valid
// and the tick was skipped.
func (a *Agent) Tick() bool {
	pose, ok := a.tracker.PollPose(a.cfg.Device)
	if !ok {
		a.mu.Lock()
		a.connected = false
		a.skipped++
		a.mu.Unlock()
		return false
	}

	held := ReadButtons(a.tracker, a.cfg.Device)

	a.mu.RLock()
	previous := a.color
	a.mu.RUnlock()

	color := a.cfg.Colors.Resolve(held, previous)
	direction := pose.Direction.Add(a.cfg.Offset)
	hits := Project(pose.Position, direction, a.catalog, a.cfg.Threshold)

	for _, i := range hits {
		a.store.Set(i, color, a.cfg.FadeSteps)
	}

	if a.cfg.Debug && held != 0 {
		log.Printf("[DEBUG] %s: buttons=%s color=%s hits=%d", a.cfg.Name, held, color.Hex(), len(hits))
	}

	a.mu.Lock()
	a.color = color
	a.held = held
	a.lit = hits
	a.pose = Pose{Position: pose.Position, Direction: direction}
	a.connected = true
	a.ticks++
	a.mu.Unlock()
	return true
}

// Run polls until ctx is cancelled
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	log.Printf("Agent %s started (device %d, poll every %v)", a.cfg.Name, a.cfg.Device, a.cfg.PollInterval)
	wasConnected := false
	for {
		select {
		case <-ctx.Done():
			log.Printf("Agent %s stopped", a.cfg.Name)
			return nil
		case <-ticker.C:
			connected := a.Tick()
			if connected != wasConnected {
				if connected {
					log.Printf("Controller %s tracking", a.cfg.Name)
				} else {
					log.Printf("Controller %s lost tracking", a.cfg.Name)
				}
				wasConnected = connected
			}
		}
	}
}

// Status returns a copy of the agent's current state
func (a *Agent) Status() AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	lit := make([]int, len(a.lit))
	copy(lit, a.lit)
	return AgentStatus{
		Device:    a.cfg.Device,
		Name:      a.cfg.Name,
		Connected: a.connected,
		Color:     a.color,
		Held:      a.held.String(),
		Lit:       lit,
		Position:  a.pose.Position,
		Direction: a.pose.Direction,
		Ticks:     a.ticks,
		Skipped:   a.skipped,
	}
}
