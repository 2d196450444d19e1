// Package dimensions finds exact item dimensions from online sources and
// normalises them to millimetres.
package dimensions

import (
	"errors"
	"maps"
)

// Dimension keys. L, W and H describe a box; DIAMETER and T cover round
// and flat items.
const (
	KeyLength    = "L"
	KeyWidth     = "W"
	KeyHeight    = "H"
	KeyThickness = "T"
	KeyDiameter  = "DIAMETER"
)

// ErrNotFound means no source produced any dimension.
var ErrNotFound = errors.New("dimensions not found")

// Result is a normalised dimensions payload. All lengths are millimetres.
type Result struct {
	ItemID     string             `json:"id"`
	Name       string             `json:"name"`
	Dims       map[string]float64 `json:"dims_mm"`
	Source     string             `json:"source"`
	SourceURL  string             `json:"source_url"`
	Confidence float64            `json:"confidence"`
	Evidence   []string           `json:"evidence"`

	// Cached is set when the result was served from the lookup cache.
	Cached bool `json:"-"`
}

// HasBox reports whether L, W and H are all present.
func (r *Result) HasBox() bool {
	if r == nil {
		return false
	}
	_, l := r.Dims[KeyLength]
	_, w := r.Dims[KeyWidth]
	_, h := r.Dims[KeyHeight]
	return l && w && h
}

// MergeMissing combines two results. The higher-confidence side wins keys
// both define (r wins ties); the other fills the gaps. Evidence is
// concatenated and confidence is the maximum.
func (r *Result) MergeMissing(other *Result) *Result {
	if other == nil {
		return r
	}
	if r == nil {
		return other
	}
	primary, secondary := r, other
	if other.Confidence > r.Confidence {
		primary, secondary = other, r
	}
	dims := make(map[string]float64, len(r.Dims)+len(other.Dims))
	maps.Copy(dims, secondary.Dims)
	maps.Copy(dims, primary.Dims)

	merged := &Result{
		ItemID:     firstNonEmpty(r.ItemID, other.ItemID),
		Name:       firstNonEmpty(r.Name, other.Name),
		Dims:       dims,
		Source:     primary.Source,
		SourceURL:  primary.SourceURL,
		Confidence: max(r.Confidence, other.Confidence),
		Evidence:   append(append([]string{}, r.Evidence...), other.Evidence...),
	}
	return merged
}

// Complete returns a copy where a diameter supplies L and W and a
// thickness supplies H, when those are missing.
func (r *Result) Complete() map[string]float64 {
	out := maps.Clone(r.Dims)
	if out == nil {
		out = map[string]float64{}
	}
	if d, ok := out[KeyDiameter]; ok {
		if _, ok := out[KeyLength]; !ok {
			out[KeyLength] = d
		}
		if _, ok := out[KeyWidth]; !ok {
			out[KeyWidth] = d
		}
	}
	if t, ok := out[KeyThickness]; ok {
		if _, ok := out[KeyHeight]; !ok {
			out[KeyHeight] = t
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
