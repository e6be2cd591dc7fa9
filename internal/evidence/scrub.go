package evidence

import (
	"regexp"
)

// Redaction patterns, specific before generic. Each replacement keeps
// enough surrounding text that the evidence stays readable.
var scrubPatterns = []struct {
	name string
	re   *regexp.Regexp
	repl string
}{
	{
		name: "private_key",
		re:   regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`),
		repl: "[redacted private key]",
	},
	{
		name: "aws_access_key",
		re:   regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`),
		repl: "[redacted aws key]",
	},
	{
		name: "url_credentials",
		re:   regexp.MustCompile(`(https?://)[^/\s:@]+:[^/\s:@]+@`),
		repl: "${1}[redacted]@",
	},
	{
		name: "bearer_token",
		re:   regexp.MustCompile(`(?i)\b(bearer)\s+[A-Za-z0-9._~+/=-]{8,}`),
		repl: "${1} [redacted]",
	},
	{
		name: "credential_assignment",
		re:   regexp.MustCompile(`(?i)\b(api[_-]?key|secret|token|password|passwd|pwd)(["']?\s*[:=]\s*["']?)[^\s"',;]{4,}`),
		repl: "${1}${2}[redacted]",
	},
}

// Scrub replaces credential-looking substrings with redaction markers
// and reports the names of the patterns that matched, in table order.
func Scrub(text string) (string, []string) {
	var hits []string
	for _, p := range scrubPatterns {
		if !p.re.MatchString(text) {
			continue
		}
		text = p.re.ReplaceAllString(text, p.repl)
		hits = append(hits, p.name)
	}
	return text, hits
}
