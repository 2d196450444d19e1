package dimensions

import "strings"

const wikidataEntity = "http://www.wikidata.org/entity/"

// unitToMM maps unit spellings, UN/CEFACT codes and Wikidata unit
// entities to a millimetre factor.
var unitToMM = map[string]float64{
	"mm": 1, "millimetre": 1, "millimeter": 1, "millimetres": 1, "millimeters": 1,
	"cm": 10, "centimetre": 10, "centimeter": 10, "centimetres": 10, "centimeters": 10,
	"m": 1000, "metre": 1000, "meter": 1000, "metres": 1000, "meters": 1000,
	"in": 25.4, "inch": 25.4, "inches": 25.4, "″": 25.4, `"`: 25.4,
	"ft": 304.8, "foot": 304.8, "feet": 304.8, "′": 304.8,

	// UN/CEFACT common codes used by schema.org unitCode
	"MMT": 1, "CMT": 10, "MTR": 1000, "INH": 25.4, "FOT": 304.8,

	wikidataEntity + "Q174789": 1,
	wikidataEntity + "Q174728": 10,
	wikidataEntity + "Q11573":  1000,
	wikidataEntity + "Q218593": 25.4,
	wikidataEntity + "Q3710":   304.8,
}

// UnitFactor returns the millimetre factor for unit. Codes are matched
// exactly first, then case-insensitively.
func UnitFactor(unit string) (float64, bool) {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return 0, false
	}
	if f, ok := unitToMM[unit]; ok {
		return f, true
	}
	f, ok := unitToMM[strings.ToLower(unit)]
	return f, ok
}

// ToMM converts value in unit to millimetres.
func ToMM(value float64, unit string) (float64, bool) {
	f, ok := UnitFactor(unit)
	if !ok {
		return 0, false
	}
	return value * f, true
}
