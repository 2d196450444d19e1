package gridfinity

import (
	"math"

	"github.com/hannes/gridfinity-cutout/geometry"
)

// overshoot pushes cutters past the faces they open so that no cutter face
// is coplanar with the body.
const overshoot = 0.5

// Generator builds bin solids from a validated config.
type Generator struct {
	cfg ContainerConfig
}

// NewGenerator validates cfg and returns a generator for it.
func NewGenerator(cfg ContainerConfig) (*Generator, error) {
	if cfg.CompartmentsX == 0 && cfg.CompartmentsY == 0 {
		cfg.CompartmentsX, cfg.CompartmentsY = 1, 1
	}
	if cfg.Segments < 3 {
		cfg.Segments = 32
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg}, nil
}

// Config returns the normalised config.
func (g *Generator) Config() ContainerConfig {
	return g.cfg
}

// Build runs the full pipeline: shell, outer fillets, lip, underside
// holes, compartment walls, finger cutouts and custom cutouts.
func (g *Generator) Build() *geometry.Solid {
	body := g.shell()
	body = g.outerFillets(body)
	body = g.lip(body)
	body = g.underside(body)
	body = g.compartments(body)
	body = g.fingerCutouts(body)
	body = g.customCutouts(body)
	return body
}

// cavityBottom is the Z of the open cavity floor; an insert raises it to
// the base of the lip.
func (g *Generator) cavityBottom() float64 {
	if g.cfg.Insert {
		return g.cfg.usableTop()
	}
	return g.cfg.FloorThickness
}

func (g *Generator) shell() *geometry.Solid {
	ox, oy := g.cfg.OuterSize()
	h := g.cfg.OuterHeight()
	body := geometry.BoxMinMax(geometry.V(-ox/2, -oy/2, 0), geometry.V(ox/2, oy/2, h))

	bottom := g.cavityBottom()
	if bottom >= h-geometry.Epsilon {
		return body
	}
	ix, iy := g.cfg.InnerSize()
	cavity := geometry.BoxMinMax(geometry.V(-ix/2, -iy/2, bottom), geometry.V(ix/2, iy/2, h+overshoot))
	return body.Subtract(cavity)
}

func (g *Generator) outerFillets(body *geometry.Solid) *geometry.Solid {
	r := g.cfg.OuterFillet
	ox, oy := g.cfg.OuterSize()
	if r <= 0 || r >= math.Min(ox, oy)/2 {
		return body
	}
	h := g.cfg.OuterHeight()
	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			x0, x1 := ordered(sx*(ox/2-r), sx*(ox/2+overshoot))
			y0, y1 := ordered(sy*(oy/2-r), sy*(oy/2+overshoot))
			square := geometry.BoxMinMax(geometry.V(x0, y0, -overshoot), geometry.V(x1, y1, h+overshoot))
			round := geometry.Cylinder(geometry.V(sx*(ox/2-r), sy*(oy/2-r), -2*overshoot), r, h+4*overshoot, g.cfg.Segments)
			body = body.Subtract(square.Subtract(round))
		}
	}
	return body
}

func ordered(a, b float64) (float64, float64) {
	if a > b {
		return b, a
	}
	return a, b
}

func (g *Generator) lip(body *geometry.Solid) *geometry.Solid {
	if !g.cfg.Lip {
		return body
	}
	ox, oy := g.cfg.OuterSize()
	h := g.cfg.OuterHeight()
	d := g.cfg.LipDepth
	nibble := geometry.BoxMinMax(
		geometry.V(-(ox/2 - d), -(oy/2 - d), h-g.cfg.LipHeight),
		geometry.V(ox/2-d, oy/2-d, h+overshoot),
	)
	return body.Subtract(nibble)
}

// holePositions are the four underside hardware points near the corners.
func (g *Generator) holePositions() [][2]float64 {
	ox, oy := g.cfg.OuterSize()
	m := g.cfg.MagnetMargin
	var pts [][2]float64
	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			pts = append(pts, [2]float64{sx * (ox/2 - m), sy * (oy/2 - m)})
		}
	}
	return pts
}

func (g *Generator) underside(body *geometry.Solid) *geometry.Solid {
	if !g.cfg.Magnets && !g.cfg.Screws {
		return body
	}
	h := g.cfg.OuterHeight()
	pts := g.holePositions()
	if g.cfg.Magnets {
		top := g.cfg.MagnetThickness
		// A bore reaching the cavity floor is opened cleanly instead of
		// leaving a zero-thickness skin.
		if top >= g.cavityBottom()-geometry.Epsilon {
			top = g.cavityBottom() + overshoot
		}
		for _, p := range pts {
			hole := geometry.Cylinder(geometry.V(p[0], p[1], -overshoot), g.cfg.MagnetDiameter/2, top+overshoot, g.cfg.Segments)
			body = body.Subtract(hole)
		}
	}
	if g.cfg.Screws {
		for _, p := range pts {
			hole := geometry.Cylinder(geometry.V(p[0], p[1], -overshoot), g.cfg.ScrewDiameter/2, h+2*overshoot, g.cfg.Segments)
			body = body.Subtract(hole)
		}
	}
	return body
}

// compartmentLines returns the centre lines of the internal walls.
func (g *Generator) compartmentLines() (xs, ys []float64) {
	ix, iy := g.cfg.InnerSize()
	for i := 1; i < g.cfg.CompartmentsX; i++ {
		xs = append(xs, -ix/2+float64(i)*ix/float64(g.cfg.CompartmentsX))
	}
	for j := 1; j < g.cfg.CompartmentsY; j++ {
		ys = append(ys, -iy/2+float64(j)*iy/float64(g.cfg.CompartmentsY))
	}
	return xs, ys
}

func (g *Generator) compartments(body *geometry.Solid) *geometry.Solid {
	xs, ys := g.compartmentLines()
	if len(xs) == 0 && len(ys) == 0 {
		return body
	}
	ix, iy := g.cfg.InnerSize()
	z0 := g.cavityBottom()
	z1 := g.cfg.usableTop()
	if z1-z0 <= geometry.Epsilon {
		return body
	}
	// Walls reach into the outer walls so they never meet them face to face.
	embed := math.Min(0.5, g.cfg.WallThickness/2)
	half := g.cfg.CompartmentWall / 2
	for _, x := range xs {
		wall := geometry.BoxMinMax(geometry.V(x-half, -iy/2-embed, z0), geometry.V(x+half, iy/2+embed, z1))
		body = body.Union(wall)
	}
	for _, y := range ys {
		wall := geometry.BoxMinMax(geometry.V(-ix/2-embed, y-half, z0), geometry.V(ix/2+embed, y+half, z1))
		body = body.Union(wall)
	}
	return body
}

func (g *Generator) fingerCutouts(body *geometry.Solid) *geometry.Solid {
	ox, oy := g.cfg.OuterSize()
	h := g.cfg.OuterHeight()
	for _, f := range g.cfg.FingerCutouts {
		w := math.Max(1e-3, f.Width)
		d := math.Max(1e-3, f.Depth)
		z0 := h - f.Height
		var min, max geometry.Vec3
		switch f.Side {
		case SidePosX:
			min, max = geometry.V(ox/2-d, -w/2, z0), geometry.V(ox/2+overshoot, w/2, h+overshoot)
		case SideNegX:
			min, max = geometry.V(-ox/2-overshoot, -w/2, z0), geometry.V(-ox/2+d, w/2, h+overshoot)
		case SidePosY:
			min, max = geometry.V(-w/2, oy/2-d, z0), geometry.V(w/2, oy/2+overshoot, h+overshoot)
		case SideNegY:
			min, max = geometry.V(-w/2, -oy/2-overshoot, z0), geometry.V(w/2, -oy/2+d, h+overshoot)
		}
		body = body.Subtract(geometry.BoxMinMax(min, max))
	}
	return body
}

// pocketBottom is where custom cutouts stop: the floor for a hollow bin or
// CutoutDepth below the insert top.
func (g *Generator) pocketBottom() float64 {
	floor := g.cfg.FloorThickness
	if !g.cfg.Insert || g.cfg.CutoutDepth <= 0 {
		return floor
	}
	return math.Max(floor, g.cfg.usableTop()-g.cfg.CutoutDepth)
}

func (g *Generator) customCutouts(body *geometry.Solid) *geometry.Solid {
	if len(g.cfg.Circles) == 0 && len(g.cfg.Rects) == 0 {
		return body
	}
	c := g.cfg.Clearance
	z0 := g.pocketBottom()
	z1 := g.cfg.OuterHeight() + overshoot
	for _, ci := range g.cfg.Circles {
		cut := geometry.Cylinder(geometry.V(ci.X, ci.Y, z0), (ci.D+2*c)/2, z1-z0, g.cfg.Segments)
		body = body.Subtract(cut)
	}
	for _, r := range g.cfg.Rects {
		for _, piece := range geometry.RoundedRect(r.X, r.Y, r.W+2*c, r.H+2*c, r.R, z0, z1, g.cfg.Segments) {
			body = body.Subtract(piece)
		}
	}
	return body
}
