package generator

import (
	"regexp"
	"strings"
)

var blankLine = regexp.MustCompile(`\n\s*\n`)

// parseCandidates extracts up to ReplyCount reply candidates from raw model
// output. Primary pass keeps enumerated lines (starting with a digit or a
// dash) with their markers stripped. If fewer than ReplyCount survive, the
// raw text is split on blank lines instead as a best-effort recovery, so a
// partially usable completion still yields candidates instead of failing.
// The second return reports whether the fallback split was used.
func parseCandidates(raw string) ([]string, bool) {
	var candidates []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !enumerated(line) {
			continue
		}
		if clean := stripEnumeration(line); clean != "" {
			candidates = append(candidates, clean)
		}
	}

	fallback := len(candidates) < ReplyCount
	if fallback {
		candidates = candidates[:0]
		for _, segment := range blankLine.Split(raw, -1) {
			segment = strings.TrimSpace(segment)
			if segment == "" {
				continue
			}
			candidates = append(candidates, segment)
			if len(candidates) == ReplyCount {
				break
			}
		}
	}

	if len(candidates) > ReplyCount {
		candidates = candidates[:ReplyCount]
	}
	return candidates, fallback
}

func enumerated(line string) bool {
	return line[0] >= '0' && line[0] <= '9' || line[0] == '-'
}

// stripEnumeration removes the leading list marker: digits, dots, closing
// parens, dashes and surrounding whitespace.
func stripEnumeration(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "0123456789.-) "))
}
