// Package textproc cleans, formats and romanizes lyrics text.
package textproc

import (
	"regexp"
	"strings"
)

var (
	contributorsHeader = regexp.MustCompile(`(?is)^\d+\s*Contributors?.+?Lyrics\s*`)
	suggestionsTail    = regexp.MustCompile(`(?is)\d*You might also like.*`)
	embedTail          = regexp.MustCompile(`\d+Embed$`)
	sectionTag         = regexp.MustCompile(`\[[^\]]*\]`)
	englishGloss       = regexp.MustCompile(`(?i)[。？！」]?\s*English:`)
	promoLine          = regexp.MustCompile(`(?i)^\s*The first thing you can do is to.*`)
	blankRuns          = regexp.MustCompile(`(\r\n|\r|\n){2,}`)
	spaceRuns          = regexp.MustCompile(`\s+`)
)

// CleanLyrics strips the boilerplate lyrics pages wrap around the text:
// contributor headers, suggestion blocks, embed counters, section tags and
// inline glosses. Runs of blank lines collapse to one.
func CleanLyrics(raw string) string {
	s := contributorsHeader.ReplaceAllString(raw, "")
	s = suggestionsTail.ReplaceAllString(s, "")
	s = embedTail.ReplaceAllString(strings.TrimSpace(s), "")
	s = sectionTag.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\u200b", "")

	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if englishGloss.MatchString(line) || promoLine.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}

	s = blankRuns.ReplaceAllString(strings.Join(kept, "\n"), "\n\n")
	return strings.TrimSpace(s)
}

// Format trims each line, collapses inner whitespace and capitalizes the
// first letter. Blank lines are kept.
func Format(text string) string {
	if text == "" {
		return ""
	}

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			out = append(out, "")
			continue
		}
		out = append(out, capitalize(spaceRuns.ReplaceAllString(line, " ")))
	}
	return strings.Join(out, "\n")
}

func capitalize(s string) string {
	for i, r := range s {
		return s[:i] + strings.ToUpper(string(r)) + s[i+len(string(r)):]
	}
	return s
}
