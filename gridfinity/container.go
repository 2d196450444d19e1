package gridfinity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid container config")

// Side names a bin wall for finger cutouts.
type Side string

const (
	SidePosX Side = "+x"
	SideNegX Side = "-x"
	SidePosY Side = "+y"
	SideNegY Side = "-y"
)

func (s Side) valid() bool {
	switch s {
	case SidePosX, SideNegX, SidePosY, SideNegY:
		return true
	}
	return false
}

// FingerCutout is a scoop through the top of one wall.
type FingerCutout struct {
	Side   Side    `json:"side" yaml:"side"`
	Width  float64 `json:"width" yaml:"width"`
	Depth  float64 `json:"depth" yaml:"depth"`
	Height float64 `json:"height" yaml:"height"`
}

// Circle is a round pocket of diameter D centred at (X, Y) relative to the
// bin centre.
type Circle struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	D float64 `json:"d" yaml:"d"`
}

// Rect is a rounded-rectangle pocket of W×H with corner radius R.
type Rect struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	W float64 `json:"w" yaml:"w"`
	H float64 `json:"h" yaml:"h"`
	R float64 `json:"r" yaml:"r"`
}

// ContainerConfig describes a bin. Positions are relative to the bin centre
// with +X to the right and +Y to the front.
type ContainerConfig struct {
	XSlots int `json:"x_slots" yaml:"x_slots"`
	YSlots int `json:"y_slots" yaml:"y_slots"`
	ZUnits int `json:"z_units" yaml:"z_units"`

	WallThickness  float64 `json:"wall_thickness" yaml:"wall_thickness"`
	FloorThickness float64 `json:"floor_thickness" yaml:"floor_thickness"`
	OuterFillet    float64 `json:"outer_fillet" yaml:"outer_fillet"`

	Lip       bool    `json:"lip" yaml:"lip"`
	LipDepth  float64 `json:"lip_depth" yaml:"lip_depth"`
	LipHeight float64 `json:"lip_height" yaml:"lip_height"`

	Magnets         bool    `json:"magnets" yaml:"magnets"`
	MagnetDiameter  float64 `json:"magnet_diameter" yaml:"magnet_diameter"`
	MagnetThickness float64 `json:"magnet_thickness" yaml:"magnet_thickness"`
	MagnetMargin    float64 `json:"magnet_edge_margin" yaml:"magnet_edge_margin"`
	Screws          bool    `json:"screws" yaml:"screws"`
	ScrewDiameter   float64 `json:"screw_diameter" yaml:"screw_diameter"`

	CompartmentsX   int     `json:"compartments_x" yaml:"compartments_x"`
	CompartmentsY   int     `json:"compartments_y" yaml:"compartments_y"`
	CompartmentWall float64 `json:"comp_wall" yaml:"comp_wall"`

	FingerCutouts []FingerCutout `json:"finger_cutouts,omitempty" yaml:"finger_cutouts"`

	Clearance float64  `json:"clearance" yaml:"clearance"`
	Circles   []Circle `json:"circles,omitempty" yaml:"circles"`
	Rects     []Rect   `json:"rects,omitempty" yaml:"rects"`

	// Insert fills the cavity up to the lip so that the custom cutouts
	// become pockets of CutoutDepth instead of reaching the floor.
	Insert      bool    `json:"insert" yaml:"insert"`
	CutoutDepth float64 `json:"cutout_depth" yaml:"cutout_depth"`

	// Segments is the circle resolution for holes and fillets.
	Segments int `json:"segments" yaml:"segments"`
}

func DefaultContainerConfig() ContainerConfig {
	return ContainerConfig{
		XSlots:          1,
		YSlots:          1,
		ZUnits:          3,
		WallThickness:   2.0,
		FloorThickness:  2.0,
		OuterFillet:     1.0,
		Lip:             true,
		LipDepth:        1.0,
		LipHeight:       1.5,
		Magnets:         true,
		MagnetDiameter:  6.0,
		MagnetThickness: 2.0,
		MagnetMargin:    7.0,
		ScrewDiameter:   3.2,
		CompartmentsX:   1,
		CompartmentsY:   1,
		CompartmentWall: 1.6,
		Clearance:       0.3,
		Segments:        32,
	}
}

func (c ContainerConfig) OuterSize() (float64, float64) {
	return float64(c.XSlots) * SlotSize, float64(c.YSlots) * SlotSize
}

func (c ContainerConfig) OuterHeight() float64 {
	return float64(c.ZUnits) * HeightUnit
}

func (c ContainerConfig) InnerSize() (float64, float64) {
	ox, oy := c.OuterSize()
	return ox - 2*c.WallThickness, oy - 2*c.WallThickness
}

func (c ContainerConfig) CavityHeight() float64 {
	return c.OuterHeight() - c.FloorThickness
}

// usableTop is the highest Z interior features may reach without cutting
// into the stacking lip.
func (c ContainerConfig) usableTop() float64 {
	if c.Lip {
		return c.OuterHeight() - c.LipHeight
	}
	return c.OuterHeight()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (c ContainerConfig) Validate() error {
	if c.XSlots < 1 || c.YSlots < 1 || c.ZUnits < 1 {
		return invalid("x/y/z must be >= 1 unit")
	}
	if c.WallThickness <= 0 || c.FloorThickness <= 0 {
		return invalid("wall and floor thickness must be positive")
	}
	if c.WallThickness*2 >= SlotSize*float64(min(c.XSlots, c.YSlots)) {
		return invalid("wall thickness too large for given slot count")
	}
	if c.FloorThickness >= c.OuterHeight() {
		return invalid("floor thickness must be less than total height")
	}
	if c.CompartmentsX < 1 || c.CompartmentsY < 1 {
		return invalid("compartments must be >= 1x1")
	}
	if ix, iy := c.InnerSize(); ix/float64(c.CompartmentsX) <= c.CompartmentWall || iy/float64(c.CompartmentsY) <= c.CompartmentWall {
		return invalid("too many compartments for a %dx%d bin", c.XSlots, c.YSlots)
	}
	for _, v := range []float64{c.OuterFillet, c.LipDepth, c.LipHeight, c.MagnetDiameter,
		c.MagnetThickness, c.MagnetMargin, c.ScrewDiameter, c.CompartmentWall, c.Clearance, c.CutoutDepth} {
		if v < 0 {
			return invalid("sizes must not be negative")
		}
	}
	if c.Lip && c.LipHeight >= c.CavityHeight() {
		return invalid("lip height must be less than cavity height")
	}
	for _, f := range c.FingerCutouts {
		if !f.Side.valid() {
			return invalid("finger cutout side must be one of +x,-x,+y,-y, got %q", f.Side)
		}
		if f.Width < 0 || f.Depth < 0 || f.Height < 0 {
			return invalid("finger cutout sizes must not be negative")
		}
	}
	for _, ci := range c.Circles {
		if ci.D <= 0 {
			return invalid("circle cutout diameter must be positive")
		}
	}
	for _, r := range c.Rects {
		if r.W <= 0 || r.H <= 0 || r.R < 0 {
			return invalid("rect cutout needs positive width and height")
		}
	}
	return nil
}

// ParseCompartments parses "AxB".
func ParseCompartments(text string) (int, int, error) {
	a, b, ok := strings.Cut(strings.ToLower(strings.TrimSpace(text)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("use format AxB, e.g. 2x3")
	}
	cx, err1 := strconv.Atoi(a)
	cy, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("compartments must be integers, e.g. 2x3")
	}
	return cx, cy, nil
}

func parseFloats(text string, n int) ([]float64, error) {
	parts := strings.Split(text, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma separated values, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

// ParseFinger parses "side,width,depth,height", e.g. "+x,24,10,12".
func ParseFinger(text string) (FingerCutout, error) {
	side, rest, ok := strings.Cut(text, ",")
	if !ok {
		return FingerCutout{}, fmt.Errorf("invalid finger %q: use side,width,depth,height", text)
	}
	vals, err := parseFloats(rest, 3)
	if err != nil {
		return FingerCutout{}, fmt.Errorf("invalid finger %q: %w", text, err)
	}
	f := FingerCutout{Side: Side(strings.TrimSpace(side)), Width: vals[0], Depth: vals[1], Height: vals[2]}
	if !f.Side.valid() {
		return FingerCutout{}, fmt.Errorf("invalid finger %q: side must be one of +x,-x,+y,-y", text)
	}
	return f, nil
}

// ParseCircle parses "x,y,d".
func ParseCircle(text string) (Circle, error) {
	vals, err := parseFloats(text, 3)
	if err != nil {
		return Circle{}, fmt.Errorf("circle cutout x,y,d: %w", err)
	}
	return Circle{X: vals[0], Y: vals[1], D: vals[2]}, nil
}

// ParseRect parses "x,y,w,h,r".
func ParseRect(text string) (Rect, error) {
	vals, err := parseFloats(text, 5)
	if err != nil {
		return Rect{}, fmt.Errorf("rect cutout x,y,w,h,r: %w", err)
	}
	return Rect{X: vals[0], Y: vals[1], W: vals[2], H: vals[3], R: vals[4]}, nil
}
