package strip

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Project returns the indexes of catalog LEDs the ray from position along
// direction points at, in ascending order. Matching happens on the floor
// plane: Y is ignored, so height never affects the result. An LED matches
// when the normalized dot product of the ray and the vector to the LED
// exceeds threshold. LEDs at the ray origin never match, and a zero
// direction matches nothing.
func Project(position, direction r3.Vector, catalog *Catalog, threshold float64) []int {
	dir := flatten(direction)
	n := dir.Norm()
	if n == 0 || math.IsNaN(n) {
		return nil
	}
	dir = dir.Mul(1 / n)
	origin := flatten(position)

	var hits []int
	catalog.Each(func(index int, p r3.Vector) {
		to := flatten(p).Sub(origin)
		d := to.Norm()
		if d == 0 {
			return
		}
		dot := math.Min(dir.Dot(to.Mul(1/d)), 1)
		if dot > threshold {
			hits = append(hits, index)
		}
	})
	return hits
}

// flatten drops the vertical axis
func flatten(v r3.Vector) r2.Point {
	return r2.Point{X: v.X, Y: v.Z}
}
