// Package gridfinity sizes and builds Gridfinity storage bins around items.
package gridfinity

import (
	"fmt"
	"math"
)

const (
	// SlotSize is the X/Y pitch of one Gridfinity grid cell in mm.
	SlotSize = 42.0
	// HeightUnit is the Z pitch of one Gridfinity height unit in mm.
	HeightUnit = 7.0

	SnugClearance = 0.3
	EasyClearance = 0.8

	proposalWall = 2.0
	proposalBase = 3.0
)

type ProposalType string

const (
	ProposalSnug  ProposalType = "snug"
	ProposalEasy  ProposalType = "easy"
	ProposalMulti ProposalType = "multi"
)

// Dims are item dimensions in millimetres.
type Dims struct {
	L float64 `json:"L"`
	W float64 `json:"W"`
	H float64 `json:"H"`
}

func (d Dims) Validate() error {
	if d.L <= 0 || d.W <= 0 || d.H <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got L=%g W=%g H=%g", ErrInvalidConfig, d.L, d.W, d.H)
	}
	return nil
}

// Proposal is one candidate bin size for an item.
type Proposal struct {
	Type         ProposalType `json:"type"`
	XSlots       int          `json:"x_slots"`
	YSlots       int          `json:"y_slots"`
	ZUnits       int          `json:"z_units"`
	Clearance    float64      `json:"clearance"`
	Compartments int          `json:"compartments,omitempty"`
}

func slotsFor(size, clearance float64) int {
	return max(1, int(math.Ceil((size+clearance+2*proposalWall)/SlotSize)))
}

func unitsFor(height, clearance float64) int {
	return max(1, int(math.Ceil((height+clearance+proposalBase)/HeightUnit)))
}

func proposalFor(typ ProposalType, d Dims, clearance float64) Proposal {
	return Proposal{
		Type:      typ,
		XSlots:    slotsFor(d.L, clearance),
		YSlots:    slotsFor(d.W, clearance),
		ZUnits:    unitsFor(d.H, clearance),
		Clearance: clearance,
	}
}

// GenerateProposals returns the snug, easy and multi proposals, in that
// order.
func GenerateProposals(d Dims) []Proposal {
	snug := proposalFor(ProposalSnug, d, SnugClearance)
	easy := proposalFor(ProposalEasy, d, EasyClearance)
	multi := Proposal{
		Type:         ProposalMulti,
		XSlots:       max(snug.XSlots, 2),
		YSlots:       max(snug.YSlots, 2),
		ZUnits:       snug.ZUnits,
		Clearance:    EasyClearance,
		Compartments: 2,
	}
	return []Proposal{snug, easy, multi}
}

// FileName is the download name for a proposal's STL.
func (p Proposal) FileName(itemID string) string {
	return fmt.Sprintf("%s_%s_%dx%dx%d.stl", itemID, p.Type, p.XSlots, p.YSlots, p.ZUnits)
}
