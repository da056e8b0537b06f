package record

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Section headers recognized in free-text record content. Matching is
// on literal line prefixes after unicode normalization.
const (
	lyricsHeader  = "Lyrics:"
	creditsHeader = "Credits:"
)

// Sections holds the best-effort split of free-text record content.
type Sections struct {
	Description string
	Lyrics      string
	Credits     string
}

// ParseContent splits record content into description, lyrics, and
// credits by recognizing literal "Lyrics:" and "Credits:" line headers.
// Any unlabeled leading text is the description, even when a labeled
// section follows. Content without recognized headers collapses
// entirely into Description.
func ParseContent(content string) Sections {
	content = norm.NFKC.String(content)

	var sections Sections
	current := &sections.Description

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, lyricsHeader):
			current = &sections.Lyrics
			appendLine(current, strings.TrimSpace(strings.TrimPrefix(trimmed, lyricsHeader)))
		case strings.HasPrefix(trimmed, creditsHeader):
			current = &sections.Credits
			appendLine(current, strings.TrimSpace(strings.TrimPrefix(trimmed, creditsHeader)))
		default:
			appendLine(current, line)
		}
	}

	sections.Description = strings.TrimSpace(sections.Description)
	sections.Lyrics = strings.TrimSpace(sections.Lyrics)
	sections.Credits = strings.TrimSpace(sections.Credits)

	return sections
}

func appendLine(section *string, line string) {
	if line == "" && *section == "" {
		return
	}
	if *section != "" {
		*section += "\n"
	}
	*section += line
}
