package sim

import (
	"regexp"
	"strings"
)

// stripEchoedName removes a leading self-announcement such as "Lisa:",
// "**Lisa:**" or "_Lisa_:" that models sometimes prepend despite being told
// not to. Exactly one leading announcement is removed; the rest of the text
// is returned trimmed.
func stripEchoedName(text, name string) string {
	text = strings.TrimSpace(text)
	name = strings.TrimSpace(name)
	if text == "" || name == "" {
		return text
	}

	pattern := `(?i)^(?:\*{1,2}|_{1,2})?` + regexp.QuoteMeta(name) + `(?:\*{1,2}|_{1,2})?\s*:\s*(?:\*{1,2}|_{1,2})?\s*`
	re := regexp.MustCompile(pattern)
	if loc := re.FindStringIndex(text); loc != nil {
		return strings.TrimSpace(text[loc[1]:])
	}
	return text
}
