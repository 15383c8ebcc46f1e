package cloud

import (
	"fmt"
	"strings"
)

// DomesticArea is the area code served by the mainland China endpoint.
const DomesticArea = "86"

// countryAreas maps ISO 3166 alpha-2 codes to the numeric area codes the
// vendor login expects. The vendor uses international dialling prefixes.
var countryAreas = map[string]string{
	"AE": "971",
	"AR": "54",
	"AT": "43",
	"AU": "61",
	"BE": "32",
	"BR": "55",
	"CA": "1",
	"CH": "41",
	"CL": "56",
	"CN": "86",
	"CO": "57",
	"CZ": "420",
	"DE": "49",
	"DK": "45",
	"ES": "34",
	"FI": "358",
	"FR": "33",
	"GB": "44",
	"GR": "30",
	"HK": "852",
	"HU": "36",
	"ID": "62",
	"IE": "353",
	"IL": "972",
	"IN": "91",
	"IT": "39",
	"JP": "81",
	"KR": "82",
	"MO": "853",
	"MX": "52",
	"MY": "60",
	"NL": "31",
	"NO": "47",
	"NZ": "64",
	"PH": "63",
	"PL": "48",
	"PT": "351",
	"RO": "40",
	"RU": "7",
	"SA": "966",
	"SE": "46",
	"SG": "65",
	"TH": "66",
	"TR": "90",
	"TW": "886",
	"UA": "380",
	"US": "1",
	"VN": "84",
	"ZA": "27",
}

// AreaCode returns the vendor area code for an ISO country code.
// Lookup is case-insensitive.
func AreaCode(country string) (string, error) {
	area, ok := countryAreas[strings.ToUpper(strings.TrimSpace(country))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCountry, country)
	}
	return area, nil
}

// IsDomestic reports whether the area code selects the domestic endpoint.
func IsDomestic(area string) bool {
	return area == DomesticArea
}
