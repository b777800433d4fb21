package formatting

import (
	"fmt"
	"strings"
)

// speciesTranslator maps alternative species names onto the canonical
// lower-case names used in file names and configuration tables
var speciesTranslator = map[string]string{
	"pfc-116":   "c2f6",
	"pfc-218":   "c3f8",
	"pfc-318":   "c4f8",
	"pce":       "ccl2ccl2",
	"tce":       "chclccl2",
	"benzene":   "c6h6",
	"propane":   "c3h8",
	"ethane":    "c2h6",
	"ethyne":    "c2h2",
	"c-propane": "c3h6",
	"toluene":   "c6h5ch3",
}

// gcwerksSpecies maps canonical names onto the names GCWerks uses in netCDF
// file names
var gcwerksSpecies = map[string]string{
	"c2f6":     "pfc-116",
	"c3f8":     "pfc-218",
	"c4f8":     "pfc-318",
	"ccl2ccl2": "pce",
	"chclccl2": "tce",
	"c6h6":     "benzene",
	"c6h5ch3":  "toluene",
	"c3h8":     "propane",
	"c2h6":     "ethane",
	"c2h4":     "ethene",
	"c2h2":     "ethyne",
	"c3h6":     "c-propane",
}

// flaskSpecies maps canonical names onto the case-sensitive variable names
// in GCWerks flask files
var flaskSpecies = map[string]string{
	"c2f6":        "PFC-116",
	"c3f8":        "PFC-218",
	"c4f8":        "PFC-318",
	"c6h6":        "benzene",
	"hfc-134a":    "HFC-134a",
	"hfc-152a":    "HFC-152a",
	"hfc-143a":    "HFC-143a",
	"hfc-227ea":   "HFC-227ea",
	"hfc-236fa":   "HFC-236fa",
	"hfc-245fa":   "HFC-245fa",
	"hfc-365mfc":  "HFC-365mfc",
	"hfc-4310mee": "HFC-4310mee",
	"hcfc-22":     "HCFC-22",
	"hcfc-141b":   "HCFC-141b",
	"hcfc-142b":   "HCFC-142b",
	"hcfc-132b":   "HCFC-132b",
	"hcfc-133a":   "HCFC-133a",
	"ch3cl":       "CH3Cl",
	"ch3br":       "CH3Br",
	"ch2cl2":      "CH2Cl2",
	"chcl3":       "CHCl3",
	"ch3ccl3":     "CH3CCl3",
	"ccl4":        "CCl4",
	"ccl2ccl2":    "PCE",
	"chclccl2":    "TCE",
	"clch2ch2cl":  "ClCH2CH2Cl",
}

// scaleTranslator normalizes calibration scale spellings
var scaleTranslator = map[string]string{
	"TU1987": "TU-87",
}

// unitTranslator maps reported units onto the dimensionless exponent
// notation used in output files
var unitTranslator = map[string]string{
	"ppm":        "1e-6",
	"ppb":        "1e-9",
	"ppt":        "1e-12",
	"ppq":        "1e-15",
	"nmol/mol":   "1e-9",
	"nmol mol-1": "1e-9",
	"pmol/mol":   "1e-12",
	"pmol mol-1": "1e-12",
}

// Species returns the canonical lower-case species name
func Species(species string) string {
	s := strings.ToLower(species)
	if canonical, ok := speciesTranslator[s]; ok {
		return canonical
	}
	return s
}

// SpeciesGCWerks returns the name GCWerks file names use for a species
func SpeciesGCWerks(species string) string {
	s := Species(species)
	if gw, ok := gcwerksSpecies[s]; ok {
		return gw
	}
	return s
}

// SpeciesFlask returns the case-sensitive name flask files use for a species
func SpeciesFlask(species string) string {
	s := Species(species)
	if fl, ok := flaskSpecies[s]; ok {
		return fl
	}
	return s
}

// Scale normalizes a calibration scale name
func Scale(scale string) string {
	if s, ok := scaleTranslator[scale]; ok {
		return s
	}
	return scale
}

// Units translates a reported unit onto exponent notation, passing unknown
// units through unchanged
func Units(units string) string {
	if u, ok := unitTranslator[units]; ok {
		return u
	}
	return units
}

// CombinedComment builds the comment attribute of a combined dataset from
// the per-instrument source comments
func CombinedComment(comments []string) string {
	if len(comments) == 1 {
		return comments[0]
	}
	var b strings.Builder
	b.WriteString("Combined AGAGE/GAGE/ALE dataset from the following individual sources:\n")
	for i, c := range comments {
		fmt.Fprintf(&b, "%d) %s\n", i, c)
	}
	return b.String()
}

// JoinUnique joins values with sep, dropping repeats while preserving first
// appearance order
func JoinUnique(vals []string, sep string) string {
	seen := make(map[string]bool, len(vals))
	uniq := make([]string, 0, len(vals))
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			uniq = append(uniq, v)
		}
	}
	return strings.Join(uniq, sep)
}

// baselineFlagAttrs documents the provenance of each baseline flag scheme
var baselineFlagAttrs = map[string]map[string]string{
	"git_pollution_flag": {
		"comment":       "Baseline flag from the Georgia Tech statistical filtering algorithm.",
		"citation":      "O'Doherty et al. (2001)",
		"contact":       "Ray Wang, Georgia Tech",
		"contact_email": "raywang@eas.gatech.edu",
	},
	"met_office_baseline_flag": {
		"comment":       "Baseline flag from the Met Office using the NAME model.",
		"citation":      "",
		"contact":       "Alistair Manning, Met Office",
		"contact_email": "alistair.manning@metoffice.gov.uk",
	},
}

// BaselineFlagAttrs returns the provenance attributes for a baseline flag
// scheme
func BaselineFlagAttrs(flagName string) (map[string]string, bool) {
	attrs, ok := baselineFlagAttrs[flagName]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out, true
}
