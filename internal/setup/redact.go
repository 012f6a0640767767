// ABOUTME: Scrubs secrets from CLI output before it is returned to the browser
// ABOUTME: Replaces known values and common API key shapes

package setup

import (
	"regexp"
	"strings"

	"github.com/2389/coven-wrapper/internal/token"
)

// secretPatterns match credential shapes the CLI may echo.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{16,}`),
	regexp.MustCompile(`xox[bap]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`xapp-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`\b\d{6,}:[A-Za-z0-9_-]{20,}`),
}

const redactedMarker = "[redacted]"

type redactor struct {
	known *strings.Replacer
}

// newRedactor builds a redactor for the given known secrets. Empty values
// are skipped.
func newRedactor(secrets ...string) *redactor {
	var pairs []string
	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		pairs = append(pairs, s, token.Redact(s))
	}
	return &redactor{known: strings.NewReplacer(pairs...)}
}

// Redact returns s with known secrets shortened and key-shaped strings masked.
func (r *redactor) Redact(s string) string {
	s = r.known.Replace(s)
	for _, re := range secretPatterns {
		s = re.ReplaceAllString(s, redactedMarker)
	}
	return s
}
