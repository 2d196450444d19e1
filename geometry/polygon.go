package geometry

// Epsilon is the tolerance used to classify points against planes.
const Epsilon = 1e-5

// Plane is the set of points p with Normal·p == W.
type Plane struct {
	Normal Vec3
	W      float64
}

// PlaneFromPoints builds a plane through a, b and c with a right-handed
// normal for counter-clockwise winding.
func PlaneFromPoints(a, b, c Vec3) Plane {
	n := b.Sub(a).Cross(c.Sub(a)).Unit()
	return Plane{Normal: n, W: n.Dot(a)}
}

func (p Plane) Flipped() Plane {
	return Plane{Normal: p.Normal.Negate(), W: -p.W}
}

const (
	coplanar = 0
	front    = 1
	back     = 2
	spanning = 3
)

// splitPolygon sorts poly into one of the four lists relative to the plane,
// cutting it in two when it spans the plane. The output lists may alias.
func (p Plane) splitPolygon(poly Polygon, coplanarFront, coplanarBack, fronts, backs *[]Polygon) {
	polyType := 0
	types := make([]int, len(poly.Vertices))
	for i, v := range poly.Vertices {
		t := p.Normal.Dot(v) - p.W
		typ := coplanar
		if t < -Epsilon {
			typ = back
		} else if t > Epsilon {
			typ = front
		}
		polyType |= typ
		types[i] = typ
	}

	switch polyType {
	case coplanar:
		if p.Normal.Dot(poly.Plane.Normal) > 0 {
			*coplanarFront = append(*coplanarFront, poly)
		} else {
			*coplanarBack = append(*coplanarBack, poly)
		}
	case front:
		*fronts = append(*fronts, poly)
	case back:
		*backs = append(*backs, poly)
	case spanning:
		var f, b []Vec3
		n := len(poly.Vertices)
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			ti, tj := types[i], types[j]
			vi, vj := poly.Vertices[i], poly.Vertices[j]
			if ti != back {
				f = append(f, vi)
			}
			if ti != front {
				b = append(b, vi)
			}
			if ti|tj == spanning {
				t := (p.W - p.Normal.Dot(vi)) / p.Normal.Dot(vj.Sub(vi))
				v := vi.Lerp(vj, t)
				f = append(f, v)
				b = append(b, v)
			}
		}
		if len(f) >= 3 {
			*fronts = append(*fronts, Polygon{Vertices: f, Plane: poly.Plane})
		}
		if len(b) >= 3 {
			*backs = append(*backs, Polygon{Vertices: b, Plane: poly.Plane})
		}
	}
}

// Polygon is a planar convex polygon. Polygons are treated as immutable;
// every transform allocates a new vertex slice.
type Polygon struct {
	Vertices []Vec3
	Plane    Plane
}

// NewPolygon derives the plane from the first three vertices.
func NewPolygon(vertices ...Vec3) Polygon {
	return Polygon{
		Vertices: vertices,
		Plane:    PlaneFromPoints(vertices[0], vertices[1], vertices[2]),
	}
}

// Flipped reverses the winding and the plane.
func (p Polygon) Flipped() Polygon {
	n := len(p.Vertices)
	vs := make([]Vec3, n)
	for i, v := range p.Vertices {
		vs[n-1-i] = v
	}
	return Polygon{Vertices: vs, Plane: p.Plane.Flipped()}
}

func (p Polygon) translated(d Vec3) Polygon {
	vs := make([]Vec3, len(p.Vertices))
	for i, v := range p.Vertices {
		vs[i] = v.Add(d)
	}
	return Polygon{Vertices: vs, Plane: Plane{Normal: p.Plane.Normal, W: p.Plane.W + p.Plane.Normal.Dot(d)}}
}

func (p Polygon) rotatedZ(sin, cos float64) Polygon {
	vs := make([]Vec3, len(p.Vertices))
	for i, v := range p.Vertices {
		vs[i] = v.rotateZ(sin, cos)
	}
	return Polygon{Vertices: vs, Plane: Plane{Normal: p.Plane.Normal.rotateZ(sin, cos), W: p.Plane.W}}
}
