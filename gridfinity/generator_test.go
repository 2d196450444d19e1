package gridfinity

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannes/gridfinity-cutout/geometry"
)

func ngonArea(r float64, n int) float64 {
	return float64(n) / 2 * r * r * math.Sin(2*math.Pi/float64(n))
}

// plainConfig is a 1x1x3 bin with every optional feature off.
func plainConfig() ContainerConfig {
	cfg := DefaultContainerConfig()
	cfg.OuterFillet = 0
	cfg.Lip = false
	cfg.Magnets = false
	return cfg
}

func build(t *testing.T, cfg ContainerConfig) *geometry.Solid {
	t.Helper()
	g, err := NewGenerator(cfg)
	require.NoError(t, err)
	return g.Build()
}

func TestDerivedSizes(t *testing.T) {
	cfg := DefaultContainerConfig()
	cfg.XSlots, cfg.YSlots, cfg.ZUnits = 2, 3, 4

	ox, oy := cfg.OuterSize()
	ix, iy := cfg.InnerSize()
	assert.Equal(t, 84.0, ox)
	assert.Equal(t, 126.0, oy)
	assert.Equal(t, 80.0, ix)
	assert.Equal(t, 122.0, iy)
	assert.Equal(t, 28.0, cfg.OuterHeight())
	assert.Equal(t, 26.0, cfg.CavityHeight())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ContainerConfig)
	}{
		{"zero slots", func(c *ContainerConfig) { c.XSlots = 0 }},
		{"zero units", func(c *ContainerConfig) { c.ZUnits = 0 }},
		{"wall too thick", func(c *ContainerConfig) { c.WallThickness = 21 }},
		{"floor too thick", func(c *ContainerConfig) { c.FloorThickness = 21 }},
		{"no compartments", func(c *ContainerConfig) { c.CompartmentsY = 0 }},
		{"compartments thinner than walls", func(c *ContainerConfig) { c.CompartmentsX = 24 }},
		{"huge compartment count", func(c *ContainerConfig) { c.CompartmentsY = 100000 }},
		{"negative fillet", func(c *ContainerConfig) { c.OuterFillet = -1 }},
		{"bad finger side", func(c *ContainerConfig) {
			c.FingerCutouts = []FingerCutout{{Side: "up", Width: 1, Depth: 1, Height: 1}}
		}},
		{"empty circle", func(c *ContainerConfig) { c.Circles = []Circle{{D: 0}} }},
		{"flat rect", func(c *ContainerConfig) { c.Rects = []Rect{{W: 3, H: 0}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultContainerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}

	assert.NoError(t, DefaultContainerConfig().Validate())
}

func TestPlainShellVolume(t *testing.T) {
	got := build(t, plainConfig())
	assert.InDelta(t, 42*42*21-38*38*19, got.Volume(), 1e-6)

	min, max := got.Bounds()
	assert.Equal(t, geometry.V(-21, -21, 0), min)
	assert.Equal(t, geometry.V(21, 21, 21), max)
}

func TestLipRemovesRing(t *testing.T) {
	cfg := plainConfig()
	cfg.Lip = true
	got := build(t, cfg)
	ring := (40*40 - 38*38) * 1.5
	assert.InDelta(t, 42*42*21-38*38*19-ring, got.Volume(), 1e-6)
}

func TestMagnetBoresOpenIntoFloor(t *testing.T) {
	cfg := plainConfig()
	cfg.Magnets = true
	got := build(t, cfg)
	bores := 4 * ngonArea(3, cfg.Segments) * cfg.FloorThickness
	assert.InDelta(t, 42*42*21-38*38*19-bores, got.Volume(), 1e-4)
}

func TestScrewHoles(t *testing.T) {
	cfg := plainConfig()
	cfg.Screws = true
	got := build(t, cfg)
	holes := 4 * ngonArea(1.6, cfg.Segments) * cfg.FloorThickness
	assert.InDelta(t, 42*42*21-38*38*19-holes, got.Volume(), 1e-4)
}

func TestOuterFillets(t *testing.T) {
	cfg := plainConfig()
	cfg.OuterFillet = 1
	got := build(t, cfg)
	perCorner := (1 - ngonArea(1, cfg.Segments)/4) * 21
	assert.InDelta(t, 42*42*21-38*38*19-4*perCorner, got.Volume(), 1e-4)

	min, max := got.Bounds()
	assert.InDelta(t, -21.0, min.X, 1e-9)
	assert.InDelta(t, 21.0, max.Y, 1e-9)
}

func TestCompartmentWalls(t *testing.T) {
	cfg := plainConfig()
	cfg.CompartmentsX = 2
	got := build(t, cfg)
	wall := 1.6 * 38 * 19
	assert.InDelta(t, 42*42*21-38*38*19+wall, got.Volume(), 1e-4)

	g, err := NewGenerator(cfg)
	require.NoError(t, err)
	xs, ys := g.compartmentLines()
	assert.Equal(t, []float64{0}, xs)
	assert.Empty(t, ys)
}

func TestFingerCutout(t *testing.T) {
	cfg := plainConfig()
	cfg.FingerCutouts = []FingerCutout{{Side: SidePosX, Width: 20, Depth: 10, Height: 10}}
	got := build(t, cfg)
	assert.InDelta(t, 42*42*21-38*38*19-2*20*10, got.Volume(), 1e-4)
}

func TestInsertPocket(t *testing.T) {
	cfg := plainConfig()
	cfg.Insert = true
	cfg.CutoutDepth = 5
	cfg.Circles = []Circle{{X: 0, Y: 0, D: 10}}
	got := build(t, cfg)

	pocket := ngonArea(5.3, cfg.Segments) * 5
	assert.InDelta(t, 42*42*21-pocket, got.Volume(), 1e-4)
}

func TestInsertPocketClampedToFloor(t *testing.T) {
	cfg := plainConfig()
	cfg.Lip = true
	cfg.Insert = true
	cfg.CutoutDepth = 100

	g, err := NewGenerator(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.FloorThickness, g.pocketBottom())
	assert.Equal(t, 21-1.5, g.cavityBottom())
}

func TestDefaultBuildIsSane(t *testing.T) {
	cfg := DefaultContainerConfig()
	cfg.FingerCutouts = []FingerCutout{{Side: SideNegY, Width: 16, Depth: 8, Height: 8}}
	cfg.Rects = []Rect{{X: 0, Y: 0, W: 10, H: 6, R: 1}}
	got := build(t, cfg)

	v := got.Volume()
	assert.Less(t, v, float64(42*42*21-38*38*19))
	assert.Greater(t, v, 8000.0)
	assert.NotEmpty(t, got.Triangles())

	min, max := got.Bounds()
	assert.InDelta(t, 0.0, min.Z, 1e-9)
	assert.InDelta(t, 21.0, max.Z, 1e-9)
}

func TestFromProposal(t *testing.T) {
	dims := Dims{L: 152, W: 106, H: 60}
	ps := GenerateProposals(dims)

	snug, err := FromProposal(ps[0], dims, DefaultBuildOptions())
	require.NoError(t, err)
	assert.True(t, snug.Insert)
	assert.InDelta(t, 60.3, snug.CutoutDepth, 1e-9)
	require.Len(t, snug.Rects, 1)
	assert.Equal(t, 152.0, snug.Rects[0].W)
	assert.Equal(t, 106.0, snug.Rects[0].H)
	assert.Equal(t, 0.3, snug.Clearance)

	multi, err := FromProposal(ps[2], dims, BuildOptions{Lip: false, Magnets: false})
	require.NoError(t, err)
	assert.Equal(t, 2, multi.CompartmentsX)
	assert.Equal(t, 1, multi.CompartmentsY)
	assert.False(t, multi.Insert)
	assert.False(t, multi.Lip)
	assert.False(t, multi.Magnets)

	tall := Proposal{Type: ProposalMulti, XSlots: 2, YSlots: 3, ZUnits: 2, Compartments: 3}
	cfg, err := FromProposal(tall, dims, DefaultBuildOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.CompartmentsX)
	assert.Equal(t, 3, cfg.CompartmentsY)
}

func TestFromProposalRejectsTooManyCompartments(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		wantErr bool
	}{
		{"fits", 23, false},
		{"cells as thin as a wall", 24, true},
		{"absurd", 100000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Proposal{Type: ProposalMulti, XSlots: 1, YSlots: 1, ZUnits: 3, Compartments: tt.n}
			_, err := FromProposal(p, Dims{}, DefaultBuildOptions())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFromProposalClampsPocket(t *testing.T) {
	dims := Dims{L: 41, W: 10, H: 5}
	p := Proposal{Type: ProposalSnug, XSlots: 1, YSlots: 1, ZUnits: 2, Clearance: 0.3}
	cfg, err := FromProposal(p, dims, DefaultBuildOptions())
	require.NoError(t, err)
	assert.InDelta(t, 38-0.6-2, cfg.Rects[0].W, 1e-9)
	assert.Equal(t, 10.0, cfg.Rects[0].H)
}

func TestFromProposalRejectsUnknownType(t *testing.T) {
	_, err := FromProposal(Proposal{Type: "huge", XSlots: 1, YSlots: 1, ZUnits: 1}, Dims{L: 1, W: 1, H: 1}, DefaultBuildOptions())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBaseplate(t *testing.T) {
	cfg := DefaultBaseplateConfig()
	plate, err := BuildBaseplate(cfg)
	require.NoError(t, err)

	chamfers := 2 * 2 * 2 * 8.0
	magnets := 4 * ngonArea(3, cfg.Segments) * 2.5
	assert.InDelta(t, 42*42*8-chamfers-magnets, plate.Volume(), 1e-3)

	min, max := plate.Bounds()
	assert.InDelta(t, 0.0, min.Z, 1e-9)
	assert.InDelta(t, 8.0, max.Z, 1e-9)

	cfg.XCells = 0
	_, err = BuildBaseplate(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSimpleBox(t *testing.T) {
	b := SimpleBox(42, 84, 20)
	assert.InDelta(t, 42*84*20, b.Volume(), 1e-9)
}

func TestParseHelpers(t *testing.T) {
	cx, cy, err := ParseCompartments("2x3")
	require.NoError(t, err)
	assert.Equal(t, 2, cx)
	assert.Equal(t, 3, cy)

	_, _, err = ParseCompartments("2-3")
	assert.Error(t, err)

	f, err := ParseFinger("+x,24,10,12")
	require.NoError(t, err)
	assert.Equal(t, FingerCutout{Side: SidePosX, Width: 24, Depth: 10, Height: 12}, f)

	_, err = ParseFinger("up,24,10,12")
	assert.Error(t, err)

	c, err := ParseCircle("1,2,3")
	require.NoError(t, err)
	assert.Equal(t, Circle{X: 1, Y: 2, D: 3}, c)

	r, err := ParseRect("1,2,3,4,0.5")
	require.NoError(t, err)
	assert.Equal(t, Rect{X: 1, Y: 2, W: 3, H: 4, R: 0.5}, r)

	_, err = ParseRect("1,2,3")
	assert.Error(t, err)
}
