package strip

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

// Button identifies a controller button
type Button uint8

const (
	ButtonTrigger Button = iota
	ButtonGrip
	ButtonMenu
)

// AllButtons lists the buttons polled every tick
var AllButtons = []Button{ButtonTrigger, ButtonGrip, ButtonMenu}

func (b Button) String() string {
	switch b {
	case ButtonTrigger:
		return "trigger"
	case ButtonGrip:
		return "grip"
	case ButtonMenu:
		return "menu"
	default:
		return fmt.Sprintf("button(%d)", uint8(b))
	}
}

// ParseButton parses a button name as used in config files and MQTT payloads
func ParseButton(name string) (Button, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trigger":
		return ButtonTrigger, nil
	case "grip":
		return ButtonGrip, nil
	case "menu", "application_menu", "applicationmenu":
		return ButtonMenu, nil
	default:
		return 0, fmt.Errorf("unknown button %q", name)
	}
}

// ButtonSet is the set of buttons held during one tick
type ButtonSet uint8

// NewButtonSet returns a set holding the given buttons
func NewButtonSet(buttons ...Button) ButtonSet {
	var s ButtonSet
	for _, b := range buttons {
		s = s.With(b)
	}
	return s
}

// With returns the set with b added
func (s ButtonSet) With(b Button) ButtonSet {
	return s | 1<<b
}

// Has reports whether b is in the set
func (s ButtonSet) Has(b Button) bool {
	return s&(1<<b) != 0
}

// Contains reports whether every button of other is in s
func (s ButtonSet) Contains(other ButtonSet) bool {
	return s&other == other
}

// Len returns the number of buttons in the set
func (s ButtonSet) Len() int {
	return bits.OnesCount8(uint8(s))
}

func (s ButtonSet) String() string {
	if s == 0 {
		return "none"
	}
	names := make([]string, 0, 3)
	for _, b := range AllButtons {
		if s.Has(b) {
			names = append(names, b.String())
		}
	}
	return strings.Join(names, "+")
}

// ColorEntry binds a button combination to a color
type ColorEntry struct {
	Buttons ButtonSet
	Color   Color
}

// ColorTable resolves held buttons to a pointer color.
// Entries are kept in priority order: larger combinations first, then
// the order they were given in.
type ColorTable struct {
	Entries []ColorEntry
	Base    Color
	Latch   bool
}

// NewColorTable sorts entries by priority and returns the table
func NewColorTable(entries []ColorEntry, base Color, latch bool) ColorTable {
	sorted := make([]ColorEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Buttons.Len() > sorted[j].Buttons.Len()
	})
	return ColorTable{Entries: sorted, Base: base, Latch: latch}
}

// DefaultColorTable returns the stock combination table
func DefaultColorTable() ColorTable {
	return NewColorTable([]ColorEntry{
		{Buttons: NewButtonSet(ButtonTrigger, ButtonGrip, ButtonMenu), Color: Color{255, 255, 255}},
		{Buttons: NewButtonSet(ButtonTrigger, ButtonGrip), Color: Color{255, 255, 0}},
		{Buttons: NewButtonSet(ButtonTrigger, ButtonMenu), Color: Color{255, 0, 255}},
		{Buttons: NewButtonSet(ButtonGrip, ButtonMenu), Color: Color{0, 255, 255}},
		{Buttons: NewButtonSet(ButtonGrip), Color: Color{0, 255, 0}},
		{Buttons: NewButtonSet(ButtonMenu), Color: Color{0, 0, 255}},
		{Buttons: NewButtonSet(ButtonTrigger), Color: Color{255, 0, 0}},
	}, DefaultBaseColor, false)
}

// Resolve picks the color for the held buttons. The first entry whose
// buttons are all held wins. With nothing held the base color is used,
// or the previous color when latching. An unmatched combination keeps
// the previous color.
func (t ColorTable) Resolve(held ButtonSet, previous Color) Color {
	if held == 0 {
		if t.Latch {
			return previous
		}
		return t.Base
	}
	for _, e := range t.Entries {
		if e.Buttons != 0 && held.Contains(e.Buttons) {
			return e.Color
		}
	}
	return previous
}

// ReadButtons polls every known button of a device
func ReadButtons(tracker Tracker, device int) ButtonSet {
	var held ButtonSet
	for _, b := range AllButtons {
		if tracker.IsButtonPressed(device, b) {
			held = held.With(b)
		}
	}
	return held
}
