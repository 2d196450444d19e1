package gridfinity

import (
	"fmt"
	"math"
)

// BuildOptions are the user toggles for the /stl flow.
type BuildOptions struct {
	Lip     bool `json:"lip"`
	Magnets bool `json:"magnets"`
	Screws  bool `json:"screws"`
	Insert  bool `json:"insert"`
	Preview bool `json:"preview"`
}

func DefaultBuildOptions() BuildOptions {
	return BuildOptions{Lip: true, Magnets: true, Insert: true, Preview: true}
}

// pocketMargin keeps an item pocket at least this far from the inner walls.
const pocketMargin = 1.0

// FromProposal turns a proposal into a container config. Snug and easy
// bins get an insert with a pocket sized to the item; multi bins get
// compartments along their longer axis.
func FromProposal(p Proposal, d Dims, opts BuildOptions) (ContainerConfig, error) {
	if p.XSlots < 1 || p.YSlots < 1 || p.ZUnits < 1 {
		return ContainerConfig{}, invalid("proposal %q has no size", p.Type)
	}
	cfg := DefaultContainerConfig()
	cfg.XSlots = p.XSlots
	cfg.YSlots = p.YSlots
	cfg.ZUnits = p.ZUnits
	cfg.Lip = opts.Lip
	cfg.Magnets = opts.Magnets
	cfg.Screws = opts.Screws
	if p.Clearance > 0 {
		cfg.Clearance = p.Clearance
	}

	switch p.Type {
	case ProposalMulti:
		n := p.Compartments
		if n < 1 {
			n = 2
		}
		if p.XSlots >= p.YSlots {
			cfg.CompartmentsX = n
		} else {
			cfg.CompartmentsY = n
		}
	case ProposalSnug, ProposalEasy:
		if opts.Insert {
			if err := d.Validate(); err != nil {
				return ContainerConfig{}, err
			}
			ix, iy := cfg.InnerSize()
			c := cfg.Clearance
			cfg.Insert = true
			cfg.CutoutDepth = d.H + c
			cfg.Rects = []Rect{{
				W: math.Max(1, math.Min(d.L, ix-2*c-2*pocketMargin)),
				H: math.Max(1, math.Min(d.W, iy-2*c-2*pocketMargin)),
				R: 1,
			}}
		}
	default:
		return ContainerConfig{}, fmt.Errorf("%w: unknown proposal type %q", ErrInvalidConfig, p.Type)
	}
	return cfg, cfg.Validate()
}
