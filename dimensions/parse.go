package dimensions

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	numberPattern = `\d{1,4}(?:[.,]\d{1,3})?`
	unitPattern   = `millimet(?:re|er)s?|mm|centimet(?:re|er)s?|cm|met(?:re|er)s?|m|inch(?:es)?|in|ft|foot|feet|″|"|′`
)

var (
	tripletRE = regexp.MustCompile(`(?i)(?P<a>` + numberPattern + `)\s*[×xX*]\s*(?P<b>` + numberPattern + `)\s*[×xX*]\s*(?P<c>` + numberPattern + `)(?:\s*(?P<unit>` + unitPattern + `)(?:[^\p{L}]|$))?`)
	singleRE  = regexp.MustCompile(`(?i)(?P<val>` + numberPattern + `)\s*(?P<unit>` + unitPattern + `)(?:[^\p{L}]|$)`)
)

func toFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	return v
}

// Triplet is an "A × B × C unit" match. Unit is empty when absent.
type Triplet struct {
	A, B, C float64
	Unit    string
}

// ParseTriplet finds the first "A × B × C [unit]" in text.
func ParseTriplet(text string) (Triplet, bool) {
	m := tripletRE.FindStringSubmatch(text)
	if m == nil {
		return Triplet{}, false
	}
	return Triplet{
		A:    toFloat(m[tripletRE.SubexpIndex("a")]),
		B:    toFloat(m[tripletRE.SubexpIndex("b")]),
		C:    toFloat(m[tripletRE.SubexpIndex("c")]),
		Unit: m[tripletRE.SubexpIndex("unit")],
	}, true
}

// ParseSingle finds the first "value unit" in text.
func ParseSingle(text string) (float64, string, bool) {
	m := singleRE.FindStringSubmatch(text)
	if m == nil {
		return 0, "", false
	}
	return toFloat(m[singleRE.SubexpIndex("val")]), m[singleRE.SubexpIndex("unit")], true
}

// NormalizeText turns a free-text dimension string into millimetres: a
// triplet maps to L, W, H and a single value to L. A missing or unknown
// unit is taken as millimetres.
func NormalizeText(text string) map[string]float64 {
	if t, ok := ParseTriplet(text); ok {
		f, ok := UnitFactor(t.Unit)
		if !ok {
			f = 1
		}
		return map[string]float64{KeyLength: t.A * f, KeyWidth: t.B * f, KeyHeight: t.C * f}
	}
	if v, unit, ok := ParseSingle(text); ok {
		f, ok := UnitFactor(unit)
		if !ok {
			f = 1
		}
		return map[string]float64{KeyLength: v * f}
	}
	return nil
}
