package strip

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
)

// ErrCatalogNotFound is returned when no LED mapping file exists yet
var ErrCatalogNotFound = errors.New("no LED mapping data available")

// Catalog holds the measured 3D position of every mapped LED.
// It is immutable once built and safe for concurrent reads.
type Catalog struct {
	positions map[int]r3.Vector
	indexes   []int
}

// NewCatalog builds a catalog from index to position
func NewCatalog(positions map[int]r3.Vector) *Catalog {
	c := &Catalog{
		positions: make(map[int]r3.Vector, len(positions)),
		indexes:   make([]int, 0, len(positions)),
	}
	for i, p := range positions {
		c.positions[i] = p
		c.indexes = append(c.indexes, i)
	}
	sort.Ints(c.indexes)
	return c
}

// LoadCatalog reads a catalog file of the form {"<index>": [x, y, z]}
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCatalogNotFound, path)
		}
		return nil, fmt.Errorf("reading LED mapping: %w", err)
	}

	var raw map[string][]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing LED mapping: %w", err)
	}

	positions := make(map[int]r3.Vector, len(raw))
	for key, value := range raw {
		index, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("LED mapping key %q is not an index", key)
		}
		p, ok := vectorFromSlice(value)
		if !ok {
			return nil, fmt.Errorf("LED %d: position must have 3 components, got %d", index, len(value))
		}
		positions[index] = p
	}

	return NewCatalog(positions), nil
}

// SaveCatalog writes the catalog to disk
func SaveCatalog(path string, c *Catalog) error {
	raw := make(map[string][]float64, c.Len())
	for _, i := range c.indexes {
		raw[strconv.Itoa(i)] = vectorToSlice(c.positions[i])
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling LED mapping: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing LED mapping: %w", err)
	}

	return nil
}

// Len returns the number of mapped LEDs
func (c *Catalog) Len() int {
	return len(c.indexes)
}

// Position returns the position of LED i
func (c *Catalog) Position(i int) (r3.Vector, bool) {
	p, ok := c.positions[i]
	return p, ok
}

// Indexes returns the mapped indexes in ascending order
func (c *Catalog) Indexes() []int {
	out := make([]int, len(c.indexes))
	copy(out, c.indexes)
	return out
}

// Each calls fn for every LED in ascending index order
func (c *Catalog) Each(fn func(index int, position r3.Vector)) {
	for _, i := range c.indexes {
		fn(i, c.positions[i])
	}
}

// Validate checks that every index addresses a real LED on a strip of numLEDs
func (c *Catalog) Validate(numLEDs int) error {
	if c.Len() == 0 {
		return fmt.Errorf("LED mapping is empty")
	}
	for _, i := range c.indexes {
		if i < 0 || i >= numLEDs {
			return fmt.Errorf("LED mapping index %d outside strip of %d LEDs", i, numLEDs)
		}
	}
	return nil
}

// Lowest returns the LED with the smallest index, used as the calibration reference
func (c *Catalog) Lowest() (int, r3.Vector, bool) {
	if len(c.indexes) == 0 {
		return 0, r3.Vector{}, false
	}
	i := c.indexes[0]
	return i, c.positions[i], true
}

// Footprint returns the bounds of the catalog on the floor (XZ) plane
func (c *Catalog) Footprint() orb.Bound {
	points := make(orb.MultiPoint, 0, len(c.indexes))
	for _, i := range c.indexes {
		p := c.positions[i]
		points = append(points, orb.Point{p.X, p.Z})
	}
	return points.Bound()
}
