package assessment

import (
	"regexp"
	"strconv"
	"strings"
)

// Scores holds the numeric ratings of a close-out assessment. Fields are
// nil when the evaluator text did not carry the corresponding line.
type Scores struct {
	Escalation     *int `json:"escalation,omitempty"`
	Resolution     *int `json:"resolution,omitempty"`
	CommunicationA *int `json:"communication_a,omitempty"`
	CommunicationB *int `json:"communication_b,omitempty"`
}

// Empty reports whether no rating was found at all.
func (s Scores) Empty() bool {
	return s.Escalation == nil && s.Resolution == nil && s.CommunicationA == nil && s.CommunicationB == nil
}

const scoreBlockMarker = "bewertung"

var (
	decorations = strings.NewReplacer("*", "", "_", "", "`", "", "#", "")
	scoreValue  = regexp.MustCompile(`^(\d{1,2})\s*(?:/\s*10)?\b`)
)

// Parse extracts the BEWERTUNG score block from an evaluator text. It is
// tolerant of markdown decoration, casing and missing lines; prose without
// a score block yields empty scores, never an error.
func Parse(text, nameA, nameB string) Scores {
	var s Scores

	idx := strings.Index(strings.ToLower(text), scoreBlockMarker)
	if idx < 0 {
		return s
	}

	for _, line := range strings.Split(text[idx:], "\n") {
		key, value, ok := splitScoreLine(line)
		if !ok {
			continue
		}

		switch {
		case strings.EqualFold(key, "Eskalationslevel"):
			s.Escalation = &value
		case strings.EqualFold(key, "Lösungsfortschritt"):
			s.Resolution = &value
		default:
			fields := strings.Fields(key)
			if len(fields) < 2 || !strings.EqualFold(fields[0], "Kommunikationsqualität") {
				continue
			}
			name := strings.Join(fields[1:], " ")
			switch {
			case strings.EqualFold(name, nameA):
				s.CommunicationA = &value
			case strings.EqualFold(name, nameB):
				s.CommunicationB = &value
			}
		}
	}
	return s
}

// splitScoreLine splits one "<key>: <n>/10" line, stripping markdown
// decoration and rejecting values outside 0..10.
func splitScoreLine(line string) (string, int, bool) {
	line = decorations.Replace(strings.TrimSpace(line))
	line = strings.TrimLeft(line, "-• \t")

	key, tail, found := strings.Cut(line, ":")
	if !found {
		return "", 0, false
	}

	m := scoreValue.FindStringSubmatch(strings.TrimSpace(tail))
	if m == nil {
		return "", 0, false
	}
	value, err := strconv.Atoi(m[1])
	if err != nil || value > 10 {
		return "", 0, false
	}
	return strings.TrimSpace(key), value, true
}
