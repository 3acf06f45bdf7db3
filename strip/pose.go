package strip

import (
	"github.com/golang/geo/r3"
)

// Tracker is the source of controller poses and button states
type Tracker interface {
	// PollPose returns the latest pose for a device. ok is false when the
	// device is disconnected or its pose is not valid.
	PollPose(device int) (pose Pose, ok bool)
	IsButtonPressed(device int, b Button) bool
}

// PoseFromMatrix extracts position and forward direction from a 3x4
// device-to-world pose matrix. Column 3 is the position and column 2 is
// the forward axis.
func PoseFromMatrix(m [3][4]float64) Pose {
	return Pose{
		Position:  r3.Vector{X: m[0][3], Y: m[1][3], Z: m[2][3]},
		Direction: r3.Vector{X: m[0][2], Y: m[1][2], Z: m[2][2]},
	}
}

// PoseFromRows is PoseFromMatrix for a matrix given as nested slices, as
// decoded from JSON. ok is false unless the shape is 3x4.
func PoseFromRows(rows [][]float64) (Pose, bool) {
	if len(rows) != 3 {
		return Pose{}, false
	}
	var m [3][4]float64
	for i, row := range rows {
		if len(row) != 4 {
			return Pose{}, false
		}
		copy(m[i][:], row)
	}
	return PoseFromMatrix(m), true
}

// vectorFromSlice converts a JSON [x,y,z] triple
func vectorFromSlice(v []float64) (r3.Vector, bool) {
	if len(v) != 3 {
		return r3.Vector{}, false
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, true
}

func vectorToSlice(v r3.Vector) []float64 {
	return []float64{v.X, v.Y, v.Z}
}
