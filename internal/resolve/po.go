package resolve

import (
	"regexp"
	"strings"
)

var poPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\border\s*(?:number|no|#)\.?\s*[:#]?\s*([A-Z0-9][A-Z0-9\-/]{2,24})`),
	regexp.MustCompile(`(?i)\bpo\s*(?:number|no|#)\.?\s*[:#]?\s*([A-Z0-9][A-Z0-9\-/]{2,24})`),
	regexp.MustCompile(`(?i)\bp\.?o\.?\s*[:#]\s*([A-Z0-9][A-Z0-9\-/]{2,24})`),
	regexp.MustCompile(`(?i)\blpo\s*(?:number|no|#)?\.?\s*[:#]?\s*([A-Z0-9][A-Z0-9\-/]{2,24})`),
}

// ExtractPONumber pulls the purchase-order reference out of document
// text. Returns "" when nothing matches; a missing reference is a
// warning, never a failure.
func ExtractPONumber(text string) string {
	for _, p := range poPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			ref := strings.TrimRight(strings.TrimSpace(m[1]), ".,;:")
			if len(ref) >= 3 {
				return strings.ToUpper(ref)
			}
		}
	}
	return ""
}
