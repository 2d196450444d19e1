package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func polygonCylinderVolume(r, h float64, n int) float64 {
	return float64(n) / 2 * r * r * math.Sin(2*math.Pi/float64(n)) * h
}

func TestBoxVolumeAndBounds(t *testing.T) {
	b := Box(V(1, 2, 3), V(2, 3, 4))
	assert.InDelta(t, 24.0, b.Volume(), 1e-9)

	min, max := b.Bounds()
	assert.Equal(t, V(0, 0.5, 1), min)
	assert.Equal(t, V(2, 3.5, 5), max)
	assert.Len(t, b.Triangles(), 12)
}

func TestBoxNormalsPointOutward(t *testing.T) {
	b := BoxMinMax(V(-1, -1, -1), V(1, 1, 1))
	for _, p := range b.Polygons() {
		centroid := Vec3{}
		for _, v := range p.Vertices {
			centroid = centroid.Add(v)
		}
		centroid = centroid.Scale(1 / float64(len(p.Vertices)))
		assert.Greater(t, p.Plane.Normal.Dot(centroid), 0.0)
	}
}

func TestCylinderVolume(t *testing.T) {
	c := Cylinder(V(0, 0, 0), 3, 5, 32)
	assert.InDelta(t, polygonCylinderVolume(3, 5, 32), c.Volume(), 1e-6)

	min, max := c.Bounds()
	assert.InDelta(t, -3.0, min.X, 1e-9)
	assert.InDelta(t, 3.0, max.X, 1e-9)
	assert.InDelta(t, 0.0, min.Z, 1e-9)
	assert.InDelta(t, 5.0, max.Z, 1e-9)
}

func TestBooleans(t *testing.T) {
	a := BoxMinMax(V(0, 0, 0), V(2, 2, 2))
	b := BoxMinMax(V(1, 1, 1), V(3, 3, 3))

	tests := []struct {
		name string
		got  *Solid
		want float64
	}{
		{"union", a.Union(b), 15},
		{"subtract", a.Subtract(b), 7},
		{"intersect", a.Intersect(b), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.got.Volume(), 1e-6)
		})
	}
}

// snapshot deep-copies the polygons so later in-place edits show up.
func snapshot(s *Solid) []Polygon {
	out := make([]Polygon, len(s.Polygons()))
	for i, p := range s.Polygons() {
		out[i] = Polygon{Vertices: append([]Vec3(nil), p.Vertices...), Plane: p.Plane}
	}
	return out
}

func TestBooleansLeaveOperandsUntouched(t *testing.T) {
	tests := []struct {
		name string
		op   func(a, b *Solid) *Solid
	}{
		{"union", (*Solid).Union},
		{"subtract", (*Solid).Subtract},
		{"intersect", (*Solid).Intersect},
		{"subtract all", func(a, b *Solid) *Solid { return a.SubtractAll(b, b.Translate(V(0.5, 0, 0))) }},
		{"union all", func(a, b *Solid) *Solid { return a.UnionAll(b) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := BoxMinMax(V(0, 0, 0), V(2, 2, 2))
			b := Cylinder(V(1, 1, -1), 0.5, 4, 12)
			wantA, wantB := snapshot(a), snapshot(b)

			got := tt.op(a, b)
			require.False(t, got.IsEmpty())
			assert.Equal(t, wantA, a.Polygons())
			assert.Equal(t, wantB, b.Polygons())

			// run it again; a mutated operand would change the result
			again := tt.op(a, b)
			assert.InDelta(t, got.Volume(), again.Volume(), 1e-9)
		})
	}
}

func TestBooleansWithEmpty(t *testing.T) {
	a := BoxMinMax(V(0, 0, 0), V(2, 2, 2))
	empty := &Solid{}

	assert.InDelta(t, 8.0, a.Union(empty).Volume(), 1e-9)
	assert.InDelta(t, 8.0, empty.Union(a).Volume(), 1e-9)
	assert.InDelta(t, 8.0, a.Subtract(empty).Volume(), 1e-9)
	assert.True(t, empty.Subtract(a).IsEmpty())
	assert.True(t, a.Intersect(empty).IsEmpty())
}

func TestDisjointSubtractLeavesSolid(t *testing.T) {
	a := BoxMinMax(V(0, 0, 0), V(2, 2, 2))
	b := BoxMinMax(V(5, 5, 5), V(6, 6, 6))
	assert.InDelta(t, 8.0, a.Subtract(b).Volume(), 1e-9)
}

func TestThroughHole(t *testing.T) {
	block := Box(V(0, 0, 5), V(10, 10, 10))
	hole := Cylinder(V(0, 0, -1), 2, 12, 24)
	got := block.Subtract(hole)

	want := 1000 - polygonCylinderVolume(2, 10, 24)
	assert.InDelta(t, want, got.Volume(), 1e-6)

	min, max := got.Bounds()
	assert.Equal(t, V(-5, -5, 0), min)
	assert.Equal(t, V(5, 5, 10), max)
}

func TestBlindHole(t *testing.T) {
	block := Box(V(0, 0, 5), V(10, 10, 10))
	hole := Cylinder(V(0, 0, -1), 1.5, 3, 24)
	got := block.Subtract(hole)
	assert.InDelta(t, 1000-polygonCylinderVolume(1.5, 2, 24), got.Volume(), 1e-6)
}

func TestTranslateAndRotate(t *testing.T) {
	b := BoxMinMax(V(0, 0, 0), V(4, 2, 1))

	moved := b.Translate(V(1, 1, 1))
	min, max := moved.Bounds()
	assert.Equal(t, V(1, 1, 1), min)
	assert.Equal(t, V(5, 3, 2), max)
	assert.InDelta(t, 8.0, moved.Volume(), 1e-9)

	rotated := b.RotateZ(90)
	min, max = rotated.Bounds()
	assert.InDelta(t, -2.0, min.X, 1e-9)
	assert.InDelta(t, 0.0, max.X, 1e-9)
	assert.InDelta(t, 0.0, min.Y, 1e-9)
	assert.InDelta(t, 4.0, max.Y, 1e-9)
	assert.InDelta(t, 8.0, rotated.Volume(), 1e-9)

	// Translated planes must stay consistent with their vertices.
	for _, p := range moved.Polygons() {
		for _, v := range p.Vertices {
			assert.InDelta(t, p.Plane.W, p.Plane.Normal.Dot(v), 1e-9)
		}
	}
}

func TestRoundedRectPieces(t *testing.T) {
	pieces := RoundedRect(0, 0, 10, 6, 1, 0, 2, 32)
	require.Len(t, pieces, 6)

	square := RoundedRect(0, 0, 10, 6, 0, 0, 2, 32)
	require.Len(t, square, 1)
	assert.InDelta(t, 120.0, square[0].Volume(), 1e-9)

	block := Box(V(0, 0, 0), V(20, 20, 10))
	cut := block
	for _, p := range pieces {
		cut = cut.Subtract(p)
	}
	corner := 4 * (1 - polygonCylinderVolume(1, 1, 32)/4)
	want := 4000 - (60-corner)*2
	assert.InDelta(t, want, cut.Volume(), 1e-3)
}

func TestTrianglesSkipDegenerate(t *testing.T) {
	p := Polygon{
		Vertices: []Vec3{V(0, 0, 0), V(1, 0, 0), V(2, 0, 0), V(1, 1, 0)},
		Plane:    Plane{Normal: V(0, 0, 1)},
	}
	s := FromPolygons([]Polygon{p})
	tris := s.Triangles()
	require.Len(t, tris, 1)
	assert.Equal(t, V(0, 0, 1), tris[0].Normal)
}
