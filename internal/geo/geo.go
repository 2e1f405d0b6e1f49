// Package geo turns sampled playback positions into simplefeatures
// geometries for trail measurement and persistence.
package geo

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/RecM/recm/pkg/core"
)

// Point converts a world position into a 3D point.
func Point(v core.Vector3) (geom.Point, error) {
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: float64(v.X), Y: float64(v.Y)},
			Z:    float64(v.Z),
			Type: geom.DimXYZ,
		},
	)
}

// Trail builds a 3D line string through the sampled positions. Trails that
// never leave their starting XY yield an empty line string.
func Trail(points []core.Vector3) (geom.LineString, error) {
	empty := geom.LineString{}.ForceCoordinatesType(geom.DimXYZ)
	if !moved(points) {
		return empty, nil
	}
	flat := make([]float64, 0, len(points)*3)
	for _, p := range points {
		flat = append(flat, float64(p.X), float64(p.Y), float64(p.Z))
	}
	ls, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXYZ))
	if err != nil {
		return empty, fmt.Errorf("build trail of %d points: %w", len(points), err)
	}
	return ls, nil
}

func moved(points []core.Vector3) bool {
	for _, p := range points[min(1, len(points)):] {
		if p.X != points[0].X || p.Y != points[0].Y {
			return true
		}
	}
	return false
}

// Summary is the horizontal length of the trail in world units and its WKT,
// or "" when there is no trail. On error both are zero.
func Summary(points []core.Vector3) (float64, string, error) {
	ls, err := Trail(points)
	if err != nil {
		return 0, "", err
	}
	if ls.IsEmpty() {
		return 0, "", nil
	}
	return ls.Length(), ls.AsText(), nil
}
