package playback

import "fmt"

// Speeds is the ordered playback speed table.
var Speeds = []float32{
	-16, -8, -4, -2, -1.75, -1.5, -1.25, -1, -0.75, -0.5, -0.25,
	0, 0.25, 0.5, 0.75, 1, 1.25, 1.5, 1.75, 2, 4, 8, 16,
}

// DefaultSpeedIndex points at 1x.
const DefaultSpeedIndex = 15

// SpeedName formats a speed the way the menu shows it, e.g. "-0.25x".
func SpeedName(speed float32) string {
	return fmt.Sprintf("%gx", speed)
}

// SpeedNames lists the table as menu labels.
func SpeedNames() []string {
	out := make([]string, len(Speeds))
	for i, s := range Speeds {
		out[i] = SpeedName(s)
	}
	return out
}

// ClampSpeedIndex pulls i into the table bounds.
func ClampSpeedIndex(i int) int {
	switch {
	case i < 0:
		return 0
	case i >= len(Speeds):
		return len(Speeds) - 1
	default:
		return i
	}
}
