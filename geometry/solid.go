// Package geometry is a small polygon-mesh constructive solid geometry
// kernel. Solids are closed boundary representations made of convex
// polygons; booleans are computed with BSP trees.
package geometry

import "math"

// Solid is a closed polygon mesh.
type Solid struct {
	polygons []Polygon
}

// FromPolygons wraps polygons into a solid without validating closure.
func FromPolygons(polygons []Polygon) *Solid {
	return &Solid{polygons: polygons}
}

// Polygons returns the boundary polygons.
func (s *Solid) Polygons() []Polygon {
	return s.polygons
}

func (s *Solid) IsEmpty() bool {
	return s == nil || len(s.polygons) == 0
}

// Union returns s ∪ o.
func (s *Solid) Union(o *Solid) *Solid {
	if s.IsEmpty() {
		return o.clone()
	}
	if o.IsEmpty() {
		return s.clone()
	}
	a := newNode(s.polygons)
	b := newNode(o.polygons)
	a.clipTo(b)
	b.clipTo(a)
	b.invert()
	b.clipTo(a)
	b.invert()
	a.build(b.allPolygons())
	return &Solid{polygons: a.allPolygons()}
}

// Subtract returns s minus o.
func (s *Solid) Subtract(o *Solid) *Solid {
	if s.IsEmpty() {
		return &Solid{}
	}
	if o.IsEmpty() {
		return s.clone()
	}
	a := newNode(s.polygons)
	b := newNode(o.polygons)
	a.invert()
	a.clipTo(b)
	b.clipTo(a)
	b.invert()
	b.clipTo(a)
	b.invert()
	a.build(b.allPolygons())
	a.invert()
	return &Solid{polygons: a.allPolygons()}
}

// Intersect returns s ∩ o.
func (s *Solid) Intersect(o *Solid) *Solid {
	if s.IsEmpty() || o.IsEmpty() {
		return &Solid{}
	}
	a := newNode(s.polygons)
	b := newNode(o.polygons)
	a.invert()
	b.clipTo(a)
	b.invert()
	a.clipTo(b)
	b.clipTo(a)
	a.build(b.allPolygons())
	a.invert()
	return &Solid{polygons: a.allPolygons()}
}

// SubtractAll subtracts each cutter in turn.
func (s *Solid) SubtractAll(cutters ...*Solid) *Solid {
	out := s
	for _, c := range cutters {
		out = out.Subtract(c)
	}
	return out
}

// UnionAll unions each solid in turn.
func (s *Solid) UnionAll(others ...*Solid) *Solid {
	out := s
	for _, o := range others {
		out = out.Union(o)
	}
	return out
}

func (s *Solid) clone() *Solid {
	if s == nil {
		return &Solid{}
	}
	return &Solid{polygons: append([]Polygon(nil), s.polygons...)}
}

// Translate moves the solid by d.
func (s *Solid) Translate(d Vec3) *Solid {
	out := make([]Polygon, len(s.polygons))
	for i, p := range s.polygons {
		out[i] = p.translated(d)
	}
	return &Solid{polygons: out}
}

// RotateZ rotates the solid about the Z axis through the origin.
func (s *Solid) RotateZ(degrees float64) *Solid {
	rad := degrees * math.Pi / 180
	sin, cos := math.Sincos(rad)
	out := make([]Polygon, len(s.polygons))
	for i, p := range s.polygons {
		out[i] = p.rotatedZ(sin, cos)
	}
	return &Solid{polygons: out}
}

// Triangle is a facet with an outward unit normal.
type Triangle struct {
	Normal   Vec3
	Vertices [3]Vec3
}

// Triangles fans every polygon into triangles, dropping degenerate ones.
func (s *Solid) Triangles() []Triangle {
	var out []Triangle
	for _, p := range s.polygons {
		for i := 1; i+1 < len(p.Vertices); i++ {
			a, b, c := p.Vertices[0], p.Vertices[i], p.Vertices[i+1]
			if b.Sub(a).Cross(c.Sub(a)).Length() < Epsilon*Epsilon {
				continue
			}
			out = append(out, Triangle{Normal: p.Plane.Normal, Vertices: [3]Vec3{a, b, c}})
		}
	}
	return out
}

// Bounds returns the axis-aligned bounding box. An empty solid yields zero
// vectors.
func (s *Solid) Bounds() (min, max Vec3) {
	first := true
	for _, p := range s.polygons {
		for _, v := range p.Vertices {
			if first {
				min, max = v, v
				first = false
				continue
			}
			min = min.Min(v)
			max = max.Max(v)
		}
	}
	return min, max
}

// Volume uses the divergence theorem over the fanned triangles.
func (s *Solid) Volume() float64 {
	var v float64
	for _, p := range s.polygons {
		for i := 1; i+1 < len(p.Vertices); i++ {
			a, b, c := p.Vertices[0], p.Vertices[i], p.Vertices[i+1]
			v += a.Dot(b.Cross(c))
		}
	}
	return v / 6
}
