package gridfinity

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGenerateProposals(t *testing.T) {
	tests := []struct {
		name string
		dims Dims
		want []Proposal
	}{
		{
			name: "controller",
			dims: Dims{L: 152, W: 106, H: 60},
			want: []Proposal{
				{Type: ProposalSnug, XSlots: 4, YSlots: 3, ZUnits: 10, Clearance: 0.3},
				{Type: ProposalEasy, XSlots: 4, YSlots: 3, ZUnits: 10, Clearance: 0.8},
				{Type: ProposalMulti, XSlots: 4, YSlots: 3, ZUnits: 10, Clearance: 0.8, Compartments: 2},
			},
		},
		{
			name: "tiny item",
			dims: Dims{L: 10, W: 10, H: 10},
			want: []Proposal{
				{Type: ProposalSnug, XSlots: 1, YSlots: 1, ZUnits: 2, Clearance: 0.3},
				{Type: ProposalEasy, XSlots: 1, YSlots: 1, ZUnits: 2, Clearance: 0.8},
				{Type: ProposalMulti, XSlots: 2, YSlots: 2, ZUnits: 2, Clearance: 0.8, Compartments: 2},
			},
		},
		{
			name: "easy crosses a slot boundary",
			dims: Dims{L: 37.5, W: 20, H: 3.6},
			want: []Proposal{
				{Type: ProposalSnug, XSlots: 1, YSlots: 1, ZUnits: 1, Clearance: 0.3},
				{Type: ProposalEasy, XSlots: 2, YSlots: 1, ZUnits: 2, Clearance: 0.8},
				{Type: ProposalMulti, XSlots: 2, YSlots: 2, ZUnits: 1, Clearance: 0.8, Compartments: 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateProposals(tt.dims)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("GenerateProposals() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProposalsEasyNeverSmallerThanSnug(t *testing.T) {
	for l := 1.0; l < 300; l += 7.3 {
		for h := 1.0; h < 120; h += 11.1 {
			ps := GenerateProposals(Dims{L: l, W: l / 2, H: h})
			snug, easy := ps[0], ps[1]
			if easy.XSlots < snug.XSlots || easy.YSlots < snug.YSlots || easy.ZUnits < snug.ZUnits {
				t.Fatalf("easy %+v smaller than snug %+v", easy, snug)
			}
			for _, p := range ps {
				if p.XSlots < 1 || p.YSlots < 1 || p.ZUnits < 1 {
					t.Fatalf("proposal %+v has zero count", p)
				}
			}
		}
	}
}

func TestProposalFileName(t *testing.T) {
	p := Proposal{Type: ProposalSnug, XSlots: 4, YSlots: 3, ZUnits: 10}
	if got := p.FileName("Qnintendo_switch_"); got != "Qnintendo_switch__snug_4x3x10.stl" {
		t.Errorf("FileName() = %q", got)
	}
}

func TestDimsValidate(t *testing.T) {
	if err := (Dims{L: 1, W: 1, H: 1}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := Dims{L: 1, W: 0, H: 1}.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
