package chat

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// PreprocessText normalizes raw text before it is handed to a model: control
// and other non-printable characters are dropped (tabs become spaces, newlines
// survive), runs of spaces collapse to one, runs of three or more newlines
// collapse to two, and every line plus the whole string is trimmed.
func PreprocessText(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n':
			b.WriteRune('\n')
		case r == '\t':
			b.WriteRune(' ')
		case unicode.IsPrint(r):
			b.WriteRune(r)
		}
	}

	out := spaceRuns.ReplaceAllString(b.String(), " ")
	out = newlineRuns.ReplaceAllString(out, "\n\n")

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
