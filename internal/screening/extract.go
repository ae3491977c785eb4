package screening

import (
	"regexp"
	"strings"
)

// urlPattern needs a dotted host ending in an alphabetic TLD, so ordinary
// words and numbers such as "hello" or "3.14" are not candidates. The scheme,
// port and path are optional.
var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://)?(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}(?::\d{1,5})?(?:[/?#][^\s]*)?`)

// trailingPunct is sentence punctuation that the path part would otherwise
// swallow.
const trailingPunct = ".,;:!?)"

// Extract returns the URL-like substrings of text in order of first
// appearance, without duplicates.
func Extract(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, trailingPunct)
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Normalize turns a candidate into an absolute URL.
func Normalize(candidate string) string {
	lower := strings.ToLower(candidate)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return candidate
	}
	return "http://" + candidate
}
