package scraper

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Keys are folded: lowercase, no accents, no dots or spaces.
var regionCodes = map[string]string{
	"alberta":                 "ab",
	"britishcolumbia":         "bc",
	"manitoba":                "mb",
	"newbrunswick":            "nb",
	"newfoundlandandlabrador": "nl",
	"newfoundland":            "nl",
	"novascotia":              "ns",
	"ontario":                 "on",
	"princeedwardisland":      "pe",
	"quebec":                  "qc",
	"saskatchewan":            "sk",
	"northwestterritories":    "nt",
	"nunavut":                 "nu",
	"yukon":                   "yt",

	// common short forms
	"ont":  "on",
	"queb": "qc",
	"que":  "qc",
	"alb":  "ab",
	"alta": "ab",
	"man":  "mb",
	"sask": "sk",
	"pei":  "pe",
	"nfld": "nl",

	"alabama":            "al",
	"alaska":             "ak",
	"arizona":            "az",
	"arkansas":           "ar",
	"california":         "ca",
	"colorado":           "co",
	"connecticut":        "ct",
	"delaware":           "de",
	"districtofcolumbia": "dc",
	"florida":            "fl",
	"georgia":            "ga",
	"hawaii":             "hi",
	"idaho":              "id",
	"illinois":           "il",
	"indiana":            "in",
	"iowa":               "ia",
	"kansas":             "ks",
	"kentucky":           "ky",
	"louisiana":          "la",
	"maine":              "me",
	"maryland":           "md",
	"massachusetts":      "ma",
	"michigan":           "mi",
	"minnesota":          "mn",
	"mississippi":        "ms",
	"missouri":           "mo",
	"montana":            "mt",
	"nebraska":           "ne",
	"nevada":             "nv",
	"newhampshire":       "nh",
	"newjersey":          "nj",
	"newmexico":          "nm",
	"newyork":            "ny",
	"northcarolina":      "nc",
	"northdakota":        "nd",
	"ohio":               "oh",
	"oklahoma":           "ok",
	"oregon":             "or",
	"pennsylvania":       "pa",
	"rhodeisland":        "ri",
	"southcarolina":      "sc",
	"southdakota":        "sd",
	"tennessee":          "tn",
	"texas":              "tx",
	"utah":               "ut",
	"vermont":            "vt",
	"virginia":           "va",
	"washington":         "wa",
	"westvirginia":       "wv",
	"wisconsin":          "wi",
	"wyoming":            "wy",
}

var knownCodes = func() map[string]bool {
	codes := make(map[string]bool, len(regionCodes))
	for _, c := range regionCodes {
		codes[c] = true
	}
	return codes
}()

func foldRegion(region string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(region))
	if err != nil {
		folded = strings.ToLower(region)
	}
	return strings.Map(func(r rune) rune {
		if r == '.' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, folded)
}

// RegionCode turns a Canadian province or US state, in full, abbreviated
// or accented form, into the two letter code used in search URLs.
func RegionCode(region string) (string, error) {
	key := foldRegion(region)
	if knownCodes[key] {
		return key, nil
	}
	if code, ok := regionCodes[key]; ok {
		return code, nil
	}
	return "", fmt.Errorf("unknown province or state %q", region)
}
