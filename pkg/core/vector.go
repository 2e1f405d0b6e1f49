package core

import "math"

// Vector3 is a position or direction in world space.
type Vector3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Length returns the euclidean length of v.
func (v Vector3) Length() float64 {
	x, y, z := float64(v.X), float64(v.Y), float64(v.Z)
	return math.Sqrt(x*x + y*y + z*z)
}

// Sub returns v - o.
func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// DistanceTo returns the distance between v and o.
func (v Vector3) DistanceTo(o Vector3) float64 {
	return v.Sub(o).Length()
}

// Pose is a position plus a heading in degrees [0, 360).
type Pose struct {
	Position Vector3 `json:"position"`
	Heading  float32 `json:"heading"`
}

// DirectionToHeading converts a direction vector to a heading in degrees.
// The Z component is ignored. A zero-length direction yields 0.
func DirectionToHeading(dir Vector3) float32 {
	x, y := float64(dir.X), float64(dir.Y)
	l := math.Hypot(x, y)
	if l == 0 {
		return 0
	}
	x, y = x/l, y/l
	return float32(-math.Atan2(x, y) * 180 / math.Pi)
}

// HeadingFromForward derives the start heading stored with a recording from
// the first frame's forward vector.
func HeadingFromForward(forward Vector3) float32 {
	h := math.Mod(float64(-DirectionToHeading(forward))+360, 360)
	if h < 0 {
		h += 360
	}
	return float32(h)
}
