package strip

import (
	"sync"
)

// Store holds the color and remaining fade of every lit LED.
// All operations take a single mutex, so each is atomic with respect
// to the others.
type Store struct {
	mu   sync.Mutex
	leds map[int]LedState
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		leds: make(map[int]LedState),
	}
}

// Set lights an LED, replacing any previous entry. fadeSteps is the number
// of decay ticks until the LED goes dark; with 0 the color is shown as is
// until the next write or decay pass, whichever comes first.
func (s *Store) Set(index int, c Color, fadeSteps int) {
	if fadeSteps < 0 {
		fadeSteps = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leds[index] = LedState{Color: c, FadeRemaining: fadeSteps}
}

// Get returns the entry for an LED
func (s *Store) Get(index int) (LedState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.leds[index]
	return st, ok
}

// Delete turns an LED off
func (s *Store) Delete(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leds, index)
}

// Clear turns every LED off
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leds = make(map[int]LedState)
}

// Len returns the number of lit LEDs
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leds)
}

// Snapshot returns a copy of every entry
func (s *Store) Snapshot() map[int]LedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]LedState, len(s.leds))
	for i, st := range s.leds {
		out[i] = st
	}
	return out
}

// DecayTick advances every fading LED by one step. Each channel c becomes
// floor(c*f/(f+1)) for remaining fade f, then f is decremented. An entry
// whose fade reaches zero is removed in the same pass, as is any entry
// written with zero fade. Returns the number of entries removed.
func (s *Store) DecayTick() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for i, st := range s.leds {
		f := st.FadeRemaining
		if f == 0 {
			delete(s.leds, i)
			removed++
			continue
		}
		st.Color = scaleColor(st.Color, f, f+1)
		st.FadeRemaining = f - 1
		if st.FadeRemaining == 0 {
			delete(s.leds, i)
			removed++
			continue
		}
		s.leds[i] = st
	}
	return removed
}

func scaleColor(c Color, num, den int) Color {
	return Color{
		R: uint8(int(c.R) * num / den),
		G: uint8(int(c.G) * num / den),
		B: uint8(int(c.B) * num / den),
	}
}
