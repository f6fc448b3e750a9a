package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	epub "github.com/simp-lee/epubkit"
)

var (
	matchStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	chapterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// SearchHit formats one search result on a single line. Styling is applied
// only when color is set; otherwise the match is bracketed.
func SearchHit(r epub.SearchResult, color bool) string {
	title := r.ChapterTitle
	if title == "" {
		title = r.ChapterID
	}
	before := flatten(r.Before)
	after := flatten(r.After)
	match := flatten(r.Match)

	if !color {
		return fmt.Sprintf("%d %s @%d: %s[%s]%s", r.ChapterIndex, title, r.Start, before, match, after)
	}
	return fmt.Sprintf("%s %s: %s%s%s",
		chapterStyle.Render(fmt.Sprintf("%d %s", r.ChapterIndex, title)),
		dimStyle.Render(fmt.Sprintf("@%d", r.Start)),
		before, matchStyle.Render(match), after)
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

// flatten turns line breaks into spaces so a hit stays on one line.
func flatten(s string) string {
	return lineBreaks.Replace(s)
}
