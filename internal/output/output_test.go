package output

import (
	"strings"
	"testing"

	epub "github.com/simp-lee/epubkit"
)

func sampleTOC() []epub.TOCItem {
	return []epub.TOCItem{
		{Title: "Chapter One", SpineIndex: 0, SpineEndIndex: 2, Children: []epub.TOCItem{
			{Title: "Opening", SpineIndex: 0, SpineEndIndex: 1},
		}},
		{Title: "", SpineIndex: -1, SpineEndIndex: -1, Children: []epub.TOCItem{
			{Title: "Notes", SpineIndex: 2, SpineEndIndex: 3},
		}},
	}
}

func TestTOCTree(t *testing.T) {
	got := TOCTree("Sample Book", sampleTOC(), false)
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	want := []string{"Sample Book", "Chapter One", "Opening", "(untitled)", "Notes"}
	if len(lines) != len(want) {
		t.Fatalf("TOCTree() has %d lines, want %d:\n%s", len(lines), len(want), got)
	}
	for i, w := range want {
		if !strings.HasSuffix(lines[i], w) {
			t.Errorf("line %d = %q, want suffix %q", i, lines[i], w)
		}
	}
	if strings.Contains(got, "[") {
		t.Errorf("TOCTree() without spine ranges = %q", got)
	}
	if !strings.HasPrefix(lines[2], " ") && !strings.HasPrefix(lines[2], "│") {
		t.Errorf("nested entry is not indented: %q", lines[2])
	}
}

func TestTOCTree_SpineRanges(t *testing.T) {
	got := TOCTree("Book", sampleTOC(), true)
	for _, want := range []string{"Chapter One [0-2)", "Opening [0-1)", "Notes [2-3)"} {
		if !strings.Contains(got, want) {
			t.Errorf("TOCTree() = %q, want it to contain %q", got, want)
		}
	}
	if strings.Contains(got, "(untitled) [") {
		t.Errorf("unmatched entry got a spine range: %q", got)
	}
}

func TestSearchHit_Plain(t *testing.T) {
	tests := []struct {
		name string
		r    epub.SearchResult
		want string
	}{
		{
			name: "title",
			r:    epub.SearchResult{ChapterIndex: 1, ChapterID: "chap02", ChapterTitle: "Chapter Two", Start: 5, Before: "\nThe ", Match: "whale", After: " sur"},
			want: "1 Chapter Two @5:  The [whale] sur",
		},
		{
			name: "id fallback",
			r:    epub.SearchResult{ChapterIndex: 0, ChapterID: "c1", Start: 0, Match: "It", After: "\twas\r\n"},
			want: "0 c1 @0: [It] was ",
		},
	}
	for _, tt := range tests {
		if got := SearchHit(tt.r, false); got != tt.want {
			t.Errorf("%s: SearchHit() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSearchHit_Color(t *testing.T) {
	r := epub.SearchResult{ChapterIndex: 2, ChapterTitle: "Notes", Start: 14, Before: "the ", Match: "WHALE", After: "."}
	got := SearchHit(r, true)
	for _, want := range []string{"Notes", "@14", "the ", "WHALE", "."} {
		if !strings.Contains(got, want) {
			t.Errorf("SearchHit() = %q, want it to contain %q", got, want)
		}
	}
	if strings.Contains(got, "[WHALE]") {
		t.Errorf("colored hit still brackets the match: %q", got)
	}
}
