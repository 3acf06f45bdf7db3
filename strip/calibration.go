package strip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/golang/geo/r3"
)

// ErrDegenerateCalibration is returned when the controller sits on the reference LED
var ErrDegenerateCalibration = errors.New("controller position coincides with reference LED")

// minCalibrationDistance is the closest the controller may be to the reference LED
const minCalibrationDistance = 1e-6

// Offsets maps a device index to its direction correction
type Offsets map[int]r3.Vector

// LoadOffsets reads the calibration file. A missing file yields no offsets.
func LoadOffsets(path string) (Offsets, error) {
	raw, err := readOffsetsFile(path)
	if err != nil {
		return nil, err
	}

	offsets := make(Offsets, len(raw))
	for key, value := range raw {
		device, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("calibration key %q is not a device index", key)
		}
		v, ok := vectorFromSlice(value)
		if !ok {
			return nil, fmt.Errorf("device %d: offset must have 3 components, got %d", device, len(value))
		}
		offsets[device] = v
	}
	return offsets, nil
}

func readOffsetsFile(path string) (map[string][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]float64{}, nil // not calibrated yet
		}
		return nil, fmt.Errorf("reading calibration file: %w", err)
	}

	var raw map[string][]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing calibration file: %w", err)
	}
	if raw == nil {
		raw = map[string][]float64{}
	}
	return raw, nil
}

// Get returns the offset for a device, or the zero vector
func (o Offsets) Get(device int) r3.Vector {
	if o == nil {
		return r3.Vector{}
	}
	return o[device]
}

// Has reports whether a device has been calibrated
func (o Offsets) Has(device int) bool {
	_, ok := o[device]
	return ok
}

// SaveOffset stores the offset for one device, keeping every other
// device's entry in the file
func SaveOffset(path string, device int, offset r3.Vector) error {
	raw, err := readOffsetsFile(path)
	if err != nil {
		return err
	}
	raw[strconv.Itoa(device)] = vectorToSlice(offset)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating calibration directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling calibration data: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing calibration file: %w", err)
	}
	return nil
}

// ComputeOffset returns the correction that turns the pose's raw direction
// into the unit direction from the controller to the reference LED
func ComputeOffset(pose Pose, reference r3.Vector) (r3.Vector, error) {
	toRef := reference.Sub(pose.Position)
	n := toRef.Norm()
	if n < minCalibrationDistance {
		return r3.Vector{}, ErrDegenerateCalibration
	}
	return toRef.Mul(1 / n).Sub(pose.Direction), nil
}

// CalibrationStatus reports which configured devices have offsets
type CalibrationStatus struct {
	Calibrated []int `json:"calibrated"`
	Missing    []int `json:"missing"`
}

// Status compares the offsets against the expected devices
func (o Offsets) Status(devices []int) CalibrationStatus {
	status := CalibrationStatus{Calibrated: []int{}, Missing: []int{}}
	for _, d := range devices {
		if o.Has(d) {
			status.Calibrated = append(status.Calibrated, d)
		} else {
			status.Missing = append(status.Missing, d)
		}
	}
	sort.Ints(status.Calibrated)
	sort.Ints(status.Missing)
	return status
}

// Calibrator runs the interactive calibration of one controller against
// the lowest-indexed LED of the catalog
type Calibrator struct {
	tracker      Tracker
	catalog      *Catalog
	path         string
	pollInterval time.Duration
}

// NewCalibrator creates a calibrator that persists offsets to path
func NewCalibrator(tracker Tracker, catalog *Catalog, path string, pollInterval time.Duration) *Calibrator {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Calibrator{
		tracker:      tracker,
		catalog:      catalog,
		path:         path,
		pollInterval: pollInterval,
	}
}

// Reference returns the index and position of the calibration LED
func (c *Calibrator) Reference() (int, r3.Vector, error) {
	index, pos, ok := c.catalog.Lowest()
	if !ok {
		return 0, r3.Vector{}, fmt.Errorf("LED mapping is empty")
	}
	return index, pos, nil
}

// Calibrate waits for the trigger to go from released to pressed while the
// pose is valid, then computes and saves the offset for device. A press
// with the controller on top of the reference LED is ignored.
func (c *Calibrator) Calibrate(ctx context.Context, device int) (r3.Vector, error) {
	index, reference, err := c.Reference()
	if err != nil {
		return r3.Vector{}, err
	}
	log.Printf("Calibrating device %d against LED %d at (%.3f, %.3f, %.3f)",
		device, index, reference.X, reference.Y, reference.Z)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	wasPressed := c.tracker.IsButtonPressed(device, ButtonTrigger)
	for {
		select {
		case <-ctx.Done():
			return r3.Vector{}, ctx.Err()
		case <-ticker.C:
		}

		pressed := c.tracker.IsButtonPressed(device, ButtonTrigger)
		edge := pressed && !wasPressed
		wasPressed = pressed
		if !edge {
			continue
		}

		pose, ok := c.tracker.PollPose(device)
		if !ok {
			log.Printf("Warning: device %d has no valid pose, press the trigger again", device)
			continue
		}

		offset, err := ComputeOffset(pose, reference)
		if errors.Is(err, ErrDegenerateCalibration) {
			log.Printf("Warning: %v, step back and press the trigger again", err)
			continue
		}

		if err := SaveOffset(c.path, device, offset); err != nil {
			return r3.Vector{}, err
		}
		log.Printf("Saved calibration for device %d: (%.4f, %.4f, %.4f)", device, offset.X, offset.Y, offset.Z)
		return offset, nil
	}
}
