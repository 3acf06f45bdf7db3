package strip

import (
	"context"
	"log"
	"time"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const (
	DefaultMappingDebounce = 500 * time.Millisecond
	// positions closer than this on the floor plane are likely a double press
	DefaultMinSpacing = 0.01
)

// MappingWhite is shown on the LED being mapped
var MappingWhite = Color{R: 255, G: 255, B: 255}

// Mapper records the position of every LED by having the operator touch
// each lit LED with a controller and pull the trigger
type Mapper struct {
	tracker      Tracker
	store        *Store
	devices      []int
	numLEDs      int
	debounce     time.Duration
	pollInterval time.Duration
	minSpacing   float64
}

// NewMapper creates a mapper over the given devices
func NewMapper(tracker Tracker, store *Store, devices []int, numLEDs int) *Mapper {
	return &Mapper{
		tracker:      tracker,
		store:        store,
		devices:      devices,
		numLEDs:      numLEDs,
		debounce:     DefaultMappingDebounce,
		pollInterval: DefaultPollInterval,
		minSpacing:   DefaultMinSpacing,
	}
}

// SetDebounce changes the minimum time between recorded presses
func (m *Mapper) SetDebounce(d time.Duration) {
	m.debounce = d
}

// SetPollInterval changes how often controllers are polled
func (m *Mapper) SetPollInterval(d time.Duration) {
	if d > 0 {
		m.pollInterval = d
	}
}

// Map walks the strip from LED 0. A LED is recorded when any device's
// trigger goes from released to pressed with a valid pose, at least the
// debounce interval after the previous record. On cancellation it returns
// the LEDs recorded so far together with ctx.Err().
func (m *Mapper) Map(ctx context.Context, onRecorded func(index int, position r3.Vector)) (*Catalog, error) {
	positions := make(map[int]r3.Vector, m.numLEDs)
	held := make(map[int]bool, len(m.devices))
	var lastPress time.Time

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for index := 0; index < m.numLEDs; index++ {
		m.store.Set(index, MappingWhite, 0)

		pos, err := m.waitForPress(ctx, ticker, held, &lastPress)
		m.store.Delete(index)
		if err != nil {
			return NewCatalog(positions), err
		}

		m.warnIfClose(index, pos, positions)
		positions[index] = pos
		if onRecorded != nil {
			onRecorded(index, pos)
		}
	}

	return NewCatalog(positions), nil
}

func (m *Mapper) waitForPress(ctx context.Context, ticker *time.Ticker, held map[int]bool, lastPress *time.Time) (r3.Vector, error) {
	for {
		select {
		case <-ctx.Done():
			return r3.Vector{}, ctx.Err()
		case <-ticker.C:
		}

		for _, device := range m.devices {
			pressed := m.tracker.IsButtonPressed(device, ButtonTrigger)
			edge := pressed && !held[device]
			held[device] = pressed
			if !edge || time.Since(*lastPress) < m.debounce {
				continue
			}
			pose, ok := m.tracker.PollPose(device)
			if !ok {
				continue
			}
			*lastPress = time.Now()
			return pose.Position, nil
		}
	}
}

func (m *Mapper) warnIfClose(index int, pos r3.Vector, recorded map[int]r3.Vector) {
	p := orb.Point{pos.X, pos.Z}
	for other, q := range recorded {
		if planar.Distance(p, orb.Point{q.X, q.Z}) < m.minSpacing {
			log.Printf("Warning: LED %d recorded within %.0f cm of LED %d", index, m.minSpacing*100, other)
			return
		}
	}
}
