package audit

import (
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/forensic-testing/fts-intake/pkg/logging"
)

// Attack kinds reported in InjectionDetails.
const (
	KindSQLi = "sqli"
	KindXSS  = "xss"
)

// InjectionDetails contains specifics of a detected injection attempt.
type InjectionDetails struct {
	ParamName   string `json:"param_name"`
	ParamValue  string `json:"param_value"`
	Kind        string `json:"kind"`
	Fingerprint string `json:"fingerprint,omitempty"` // libinjection fingerprint for pattern analysis
}

// ScreenValues checks free-text request values with libinjection.
// Results are ordered by parameter name.
func ScreenValues(values map[string]string) []InjectionDetails {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var hits []InjectionDetails
	for _, name := range names {
		value := values[name]
		if isSQLi, fingerprint := libinjection.IsSQLi(value); isSQLi {
			hits = append(hits, InjectionDetails{
				ParamName:   name,
				ParamValue:  logging.TruncateString(value, logging.MaxValueLogLength),
				Kind:        KindSQLi,
				Fingerprint: string(fingerprint),
			})
			continue
		}
		if libinjection.IsXSS(value) {
			hits = append(hits, InjectionDetails{
				ParamName:  name,
				ParamValue: logging.TruncateString(value, logging.MaxValueLogLength),
				Kind:       KindXSS,
			})
		}
	}
	return hits
}
