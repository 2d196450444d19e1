package gridfinity

import (
	"math"

	"github.com/hannes/gridfinity-cutout/geometry"
)

// BaseplateConfig describes a flat baseplate that bins stand on.
type BaseplateConfig struct {
	XCells         int     `json:"x_cells" yaml:"x_cells"`
	YCells         int     `json:"y_cells" yaml:"y_cells"`
	BaseHeight     float64 `json:"base_height" yaml:"base_height"`
	LipHeight      float64 `json:"lip_height" yaml:"lip_height"`
	Magnets        bool    `json:"magnets" yaml:"magnets"`
	MagnetDiameter float64 `json:"magnet_diameter" yaml:"magnet_diameter"`
	MagnetDepth    float64 `json:"magnet_depth" yaml:"magnet_depth"`
	MagnetOffset   float64 `json:"magnet_offset" yaml:"magnet_offset"`
	CornerChamfer  float64 `json:"corner_chamfer" yaml:"corner_chamfer"`
	Segments       int     `json:"segments" yaml:"segments"`
}

func DefaultBaseplateConfig() BaseplateConfig {
	return BaseplateConfig{
		XCells:         1,
		YCells:         1,
		BaseHeight:     7,
		LipHeight:      1,
		Magnets:        true,
		MagnetDiameter: 6,
		MagnetDepth:    2.5,
		MagnetOffset:   7,
		CornerChamfer:  2,
		Segments:       32,
	}
}

func (c BaseplateConfig) Height() float64 {
	return c.BaseHeight + c.LipHeight
}

func (c BaseplateConfig) Validate() error {
	if c.XCells < 1 || c.YCells < 1 {
		return invalid("baseplate needs at least 1x1 cells")
	}
	if c.BaseHeight <= 0 || c.LipHeight < 0 {
		return invalid("baseplate height must be positive")
	}
	if c.MagnetDepth >= c.Height() {
		return invalid("magnet depth must be less than baseplate height")
	}
	if c.CornerChamfer < 0 || c.CornerChamfer*2 >= SlotSize {
		return invalid("corner chamfer out of range")
	}
	return nil
}

// BuildBaseplate returns the baseplate solid, centred in X/Y with its
// bottom at Z=0. Magnet holes sit MagnetOffset in from each outer corner.
func BuildBaseplate(c BaseplateConfig) (*geometry.Solid, error) {
	if c.Segments < 3 {
		c.Segments = 32
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	length := float64(c.XCells) * SlotSize
	width := float64(c.YCells) * SlotSize
	h := c.Height()

	plate := geometry.BoxMinMax(geometry.V(-length/2, -width/2, 0), geometry.V(length/2, width/2, h))

	if c.CornerChamfer > 0 {
		side := c.CornerChamfer * math.Sqrt2
		diamond := geometry.Box(geometry.V(0, 0, h/2), geometry.V(side, side, h+2*overshoot)).RotateZ(45)
		for _, sx := range []float64{-1, 1} {
			for _, sy := range []float64{-1, 1} {
				plate = plate.Subtract(diamond.Translate(geometry.V(sx*length/2, sy*width/2, 0)))
			}
		}
	}

	if c.Magnets {
		for _, sx := range []float64{-1, 1} {
			for _, sy := range []float64{-1, 1} {
				x := sx * (length/2 - c.MagnetOffset)
				y := sy * (width/2 - c.MagnetOffset)
				hole := geometry.Cylinder(geometry.V(x, y, -overshoot), c.MagnetDiameter/2, c.MagnetDepth+overshoot, c.Segments)
				plate = plate.Subtract(hole)
			}
		}
	}
	return plate, nil
}

// SimpleBox is a solid block of the given outer size, used by the quick
// download flow.
func SimpleBox(width, length, height float64) *geometry.Solid {
	return geometry.BoxMinMax(geometry.V(-width/2, -length/2, 0), geometry.V(width/2, length/2, height))
}
