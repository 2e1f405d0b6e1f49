package geo

import (
	"math"
	"strings"
	"testing"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/RecM/recm/pkg/core"
)

func TestPoint(t *testing.T) {
	p, err := Point(core.Vector3{X: 100.5, Y: 200.25, Z: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	coords, ok := p.Coordinates()
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	if coords.X != 100.5 {
		t.Errorf("expected X=100.5, got %f", coords.X)
	}
	if coords.Y != 200.25 {
		t.Errorf("expected Y=200.25, got %f", coords.Y)
	}
	if coords.Z != 50 {
		t.Errorf("expected Z=50, got %f", coords.Z)
	}
}

func TestPoint_Invalid(t *testing.T) {
	if _, err := Point(core.Vector3{X: float32(math.NaN())}); err == nil {
		t.Error("expected an error for a NaN coordinate")
	}
}

func TestTrail(t *testing.T) {
	tests := []struct {
		name   string
		points []core.Vector3
		empty  bool
		length float64
	}{
		{"no frames", nil, true, 0},
		{"one frame", []core.Vector3{{X: 1, Y: 2, Z: 3}}, true, 0},
		{"stationary", []core.Vector3{{X: 1, Y: 2, Z: 3}, {X: 1, Y: 2, Z: 4}}, true, 0},
		{"many frames", []core.Vector3{{X: 0, Y: 0, Z: 10}, {X: 3, Y: 4, Z: 10}, {X: 3, Y: 10, Z: 12}}, false, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ls, err := Trail(tt.points)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ls.IsEmpty() != tt.empty {
				t.Errorf("expected empty=%v, got %v", tt.empty, ls.IsEmpty())
			}
			if ls.CoordinatesType() != geom.DimXYZ {
				t.Errorf("expected XYZ coordinates, got %v", ls.CoordinatesType())
			}
			if math.Abs(ls.Length()-tt.length) > 1e-9 {
				t.Errorf("expected length %f, got %f", tt.length, ls.Length())
			}
		})
	}
}

func TestTrail_Invalid(t *testing.T) {
	inf := float32(math.Inf(1))
	ls, err := Trail([]core.Vector3{{X: 0, Y: 0}, {X: inf, Y: 1}})
	if err == nil {
		t.Fatal("expected an error for an infinite coordinate")
	}
	if !ls.IsEmpty() {
		t.Error("expected an empty trail on error")
	}
}

func TestSummary(t *testing.T) {
	length, wkt, err := Summary([]core.Vector3{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 6, Z: 6}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(length-5) > 1e-9 {
		t.Errorf("expected length 5, got %f", length)
	}
	if !strings.HasPrefix(wkt, "LINESTRING Z") {
		t.Errorf("expected a 3D line string, got %q", wkt)
	}

	length, wkt, err = Summary([]core.Vector3{{X: 1}})
	if err != nil || length != 0 || wkt != "" {
		t.Errorf("expected no trail for a single point, got %f %q %v", length, wkt, err)
	}
}
