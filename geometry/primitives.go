package geometry

import "math"

// DefaultSegments is the circle resolution used when callers pass zero.
const DefaultSegments = 48

var cubeFaces = [6][4]int{
	{0, 4, 6, 2},
	{1, 3, 7, 5},
	{0, 1, 5, 4},
	{2, 6, 7, 3},
	{0, 2, 3, 1},
	{4, 5, 7, 6},
}

// Box returns an axis-aligned box centred on center.
func Box(center, size Vec3) *Solid {
	r := size.Scale(0.5)
	polygons := make([]Polygon, 0, 6)
	for _, face := range cubeFaces {
		vs := make([]Vec3, 4)
		for j, i := range face {
			vs[j] = Vec3{
				center.X + r.X*sign(i&1),
				center.Y + r.Y*sign(i&2),
				center.Z + r.Z*sign(i&4),
			}
		}
		polygons = append(polygons, NewPolygon(vs...))
	}
	return &Solid{polygons: polygons}
}

func sign(bit int) float64 {
	if bit != 0 {
		return 1
	}
	return -1
}

// BoxMinMax returns the axis-aligned box spanning min to max.
func BoxMinMax(min, max Vec3) *Solid {
	return Box(min.Add(max).Scale(0.5), max.Sub(min))
}

// Cylinder returns a Z-aligned cylinder whose bottom cap is centred on base.
func Cylinder(base Vec3, radius, height float64, segments int) *Solid {
	if segments < 3 {
		segments = DefaultSegments
	}
	bottom := make([]Vec3, segments)
	top := make([]Vec3, segments)
	for k := 0; k < segments; k++ {
		theta := 2 * math.Pi * float64(k) / float64(segments)
		sin, cos := math.Sincos(theta)
		bottom[k] = Vec3{base.X + radius*cos, base.Y + radius*sin, base.Z}
		top[k] = Vec3{base.X + radius*cos, base.Y + radius*sin, base.Z + height}
	}

	polygons := make([]Polygon, 0, segments+2)
	capBottom := make([]Vec3, segments)
	for k := range bottom {
		capBottom[segments-1-k] = bottom[k]
	}
	polygons = append(polygons, NewPolygon(capBottom...))
	polygons = append(polygons, NewPolygon(append([]Vec3(nil), top...)...))
	for k := 0; k < segments; k++ {
		n := (k + 1) % segments
		polygons = append(polygons, NewPolygon(bottom[k], bottom[n], top[n], top[k]))
	}
	return &Solid{polygons: polygons}
}

// RoundedRect returns a Z-extruded rectangle of size w×h centred on
// (cx, cy) with vertical corner radius r, spanning z0 to z1. It is
// returned as separate convex pieces whose union is the rounded shape,
// so callers can subtract them one at a time.
func RoundedRect(cx, cy, w, h, r, z0, z1 float64, segments int) []*Solid {
	r = math.Min(r, math.Min(w, h)/2)
	if r <= Epsilon {
		return []*Solid{BoxMinMax(Vec3{cx - w/2, cy - h/2, z0}, Vec3{cx + w/2, cy + h/2, z1})}
	}
	pieces := []*Solid{
		BoxMinMax(Vec3{cx - w/2, cy - h/2 + r, z0}, Vec3{cx + w/2, cy + h/2 - r, z1}),
		BoxMinMax(Vec3{cx - w/2 + r, cy - h/2, z0}, Vec3{cx + w/2 - r, cy + h/2, z1}),
	}
	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			c := Vec3{cx + sx*(w/2-r), cy + sy*(h/2-r), z0}
			pieces = append(pieces, Cylinder(c, r, z1-z0, segments))
		}
	}
	return pieces
}
