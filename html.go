package epub

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockTags is the set of tags that start a new line during text extraction.
var blockTags = map[atom.Atom]bool{
	atom.P:          true,
	atom.Br:         true,
	atom.Div:        true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Li:         true,
	atom.Tr:         true,
	atom.Blockquote: true,
	atom.Hr:         true,
	atom.Section:    true,
	atom.Pre:        true,
}

// ReadableText returns the body text with whitespace runs collapsed and
// block-level elements on their own lines. Unlike Text, it does not map
// back to DOM offsets.
func (d *ContentDocument) ReadableText() string {
	if d.body == nil {
		return ""
	}
	return readableText(d.body)
}

// extractText returns the readable text of an XHTML document.
func extractText(htmlData []byte) (string, error) {
	doc, err := parseMarkup(stripBOM(htmlData))
	if err != nil {
		return "", err
	}
	body := findElement(doc, atom.Body)
	if body == nil {
		return "", nil
	}
	return readableText(body), nil
}

func readableText(n *html.Node) string {
	w := textWriter{lastNewline: true}
	w.walk(n)
	return strings.TrimSpace(w.sb.String())
}

type textWriter struct {
	sb           strings.Builder
	lastNewline  bool
	pendingSpace bool
}

func (w *textWriter) walk(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			w.text(c.Data)
		case html.ElementNode:
			if textSkipTags[c.DataAtom] {
				continue
			}
			block := blockTags[c.DataAtom]
			if block {
				w.newline()
			}
			w.walk(c)
			if block {
				w.newline()
			}
		}
	}
}

// text writes s with whitespace runs collapsed to one space. Whitespace at
// the start of a line is dropped.
func (w *textWriter) text(s string) {
	for _, r := range s {
		if isHTMLSpace(r) {
			if !w.lastNewline {
				w.pendingSpace = true
			}
			continue
		}
		if w.pendingSpace {
			w.sb.WriteByte(' ')
			w.pendingSpace = false
		}
		w.sb.WriteRune(r)
		w.lastNewline = false
	}
}

func (w *textWriter) newline() {
	w.pendingSpace = false
	if w.sb.Len() > 0 && !w.lastNewline {
		w.sb.WriteByte('\n')
		w.lastNewline = true
	}
}

// isHTMLSpace reports ASCII whitespace; U+00A0 is content.
func isHTMLSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f'
}
