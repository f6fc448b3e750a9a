package epub

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ContentDocument is one parsed spine document. It exposes the plain text
// of the body together with a map from text offsets back to DOM text nodes.
// Offsets count Unicode code points. A ContentDocument must not be modified
// after ParseContentDocument returns; the nodes it hands out are shared.
type ContentDocument struct {
	// ID is the manifest id of the document.
	ID string

	// Href is the ZIP-internal path of the document.
	Href string

	// SpineIndex is the position of the document in the spine.
	SpineIndex int

	// Raw is the markup as stored in the archive, without BOM.
	Raw []byte

	// Text is the concatenation of all body text nodes, verbatim, with
	// script and style content excluded.
	Text string

	root     *html.Node // <html>
	body     *html.Node
	segments []textSegment
	starts   map[*html.Node]int
	ids      map[string]*html.Node
	length   int
}

// textSegment locates one DOM text node inside Text.
type textSegment struct {
	node   *html.Node
	start  int // rune offset in Text
	length int // rune count
}

// TextPosition is a point inside a DOM text node.
type TextPosition struct {
	Node   *html.Node
	Offset int // rune offset inside Node.Data
}

// textSkipTags never contribute to Text.
var textSkipTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Template: true,
}

// ParseContentDocument parses the markup of one spine document. The tree
// follows the XML structure of the markup, so step indices match what
// other reading systems compute. Markup that is not well-formed XML is
// parsed as HTML instead.
func ParseContentDocument(id, href string, spineIndex int, raw []byte) (*ContentDocument, error) {
	raw = stripBOM(raw)
	doc, err := parseMarkup(raw)
	if err != nil {
		return nil, fmt.Errorf("epub: parse content document %s: %w", href, err)
	}

	d := &ContentDocument{
		ID:         id,
		Href:       href,
		SpineIndex: spineIndex,
		Raw:        raw,
		starts:     make(map[*html.Node]int),
		ids:        make(map[string]*html.Node),
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			d.root = c
			break
		}
	}
	if d.root == nil {
		return nil, fmt.Errorf("epub: content document %s has no root element", href)
	}

	d.indexIDs(d.root)

	var sb strings.Builder
	if d.body = findElement(d.root, atom.Body); d.body != nil {
		d.collectText(d.body, &sb)
	}
	d.Text = sb.String()
	return d, nil
}

func (d *ContentDocument) indexIDs(n *html.Node) {
	if n.Type == html.ElementNode {
		if id := htmlAttr(n, "id"); id != "" {
			if _, exists := d.ids[id]; !exists {
				d.ids[id] = n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.indexIDs(c)
	}
}

func (d *ContentDocument) collectText(n *html.Node, sb *strings.Builder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			l := utf8.RuneCountInString(c.Data)
			if l == 0 {
				continue
			}
			d.starts[c] = d.length
			d.segments = append(d.segments, textSegment{node: c, start: d.length, length: l})
			d.length += l
			sb.WriteString(c.Data)
		case html.ElementNode:
			if textSkipTags[c.DataAtom] {
				continue
			}
			d.collectText(c, sb)
		}
	}
}

// TextLength returns the number of code points in Text.
func (d *ContentDocument) TextLength() int {
	return d.length
}

// PositionAt maps a plain-text offset to the text node containing it. An
// offset on the boundary of two nodes maps to the start of the later one;
// TextLength() maps to the end of the last node.
func (d *ContentDocument) PositionAt(offset int) (TextPosition, bool) {
	if offset < 0 || offset > d.length || len(d.segments) == 0 {
		return TextPosition{}, false
	}
	i := sort.Search(len(d.segments), func(i int) bool {
		return d.segments[i].start+d.segments[i].length > offset
	})
	if i == len(d.segments) {
		last := d.segments[len(d.segments)-1]
		return TextPosition{Node: last.node, Offset: last.length}, true
	}
	seg := d.segments[i]
	return TextPosition{Node: seg.node, Offset: offset - seg.start}, true
}

// OffsetOf maps a point inside a text node back to a plain-text offset.
// ok is false for nodes that do not contribute to Text.
func (d *ContentDocument) OffsetOf(pos TextPosition) (int, bool) {
	start, ok := d.starts[pos.Node]
	if !ok {
		return 0, false
	}
	off := min(max(pos.Offset, 0), utf8.RuneCountInString(pos.Node.Data))
	return start + off, true
}

// ElementByID returns the first element with the given id attribute.
func (d *ContentDocument) ElementByID(id string) (*html.Node, bool) {
	n, ok := d.ids[id]
	return n, ok
}

// TextRange returns the code points [start, end) of Text, clipped to its bounds.
func (d *ContentDocument) TextRange(start, end int) string {
	start = min(max(start, 0), d.length)
	end = min(max(end, start), d.length)
	return runeSlice(d.Text, start, end)
}

// Sanitized returns the markup with unsafe constructs removed.
func (d *ContentDocument) Sanitized(opts SanitizeOptions) ([]byte, error) {
	return SanitizeHTML(d.Raw, d.Href, opts)
}

// runeSlice returns the code points [start, end) of s.
func runeSlice(s string, start, end int) string {
	if start >= end {
		return ""
	}
	i, bs, be := 0, len(s), len(s)
	for b := range s {
		if i == start {
			bs = b
		}
		if i == end {
			be = b
			break
		}
		i++
	}
	return s[bs:be]
}

// parseMarkup builds the DOM of an XHTML document: from the XML tree when
// the markup is well-formed, from the HTML5 parser otherwise.
func parseMarkup(raw []byte) (*html.Node, error) {
	if doc, err := readXML(raw, xmlReadOptions{}); err == nil {
		return xmlDocumentNode(doc), nil
	}
	return html.Parse(bytes.NewReader(expandSelfClosingTags(raw)))
}

// foreignNamespaces maps XML namespace URIs to the x/net/html namespace
// names of foreign content.
var foreignNamespaces = map[string]string{
	"http://www.w3.org/2000/svg":         "svg",
	"http://www.w3.org/1998/Math/MathML": "math",
}

// xmlDocumentNode converts an etree document into an html.Node tree without
// restructuring it. Prefixed attributes keep their prefix in the key
// ("epub:type"); adjacent character data merges into one text node.
func xmlDocumentNode(doc *etree.Document) *html.Node {
	root := &html.Node{Type: html.DocumentNode}
	appendXMLChildren(root, &doc.Element)
	return root
}

func appendXMLChildren(parent *html.Node, el *etree.Element) {
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.Element:
			n := &html.Node{Type: html.ElementNode, Namespace: foreignNamespaces[t.NamespaceURI()]}
			n.Data = t.Tag
			if n.Namespace == "" {
				n.Data = strings.ToLower(t.Tag)
			}
			n.DataAtom = atom.Lookup([]byte(n.Data))
			for _, a := range t.Attr {
				n.Attr = append(n.Attr, html.Attribute{Key: a.FullKey(), Val: a.Value})
			}
			parent.AppendChild(n)
			appendXMLChildren(n, t)
		case *etree.CharData:
			if last := parent.LastChild; last != nil && last.Type == html.TextNode {
				last.Data += t.Data
				continue
			}
			parent.AppendChild(&html.Node{Type: html.TextNode, Data: t.Data})
		case *etree.Comment:
			parent.AppendChild(&html.Node{Type: html.CommentNode, Data: t.Data})
		}
	}
}

// voidElements never have content; every other element written as <x/>
// in XHTML must be expanded for the HTML parser.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

var selfClosingTagPattern = regexp.MustCompile(`<([A-Za-z][\w:.-]*)(\s[^<>]*?)?/>`)

// expandSelfClosingTags rewrites XHTML self-closing non-void elements such
// as <div/> or <script src="x"/> into start/end tag pairs, which the HTML
// parser would otherwise treat as unclosed start tags.
func expandSelfClosingTags(data []byte) []byte {
	if !bytes.Contains(data, []byte("/>")) {
		return data
	}
	return selfClosingTagPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := selfClosingTagPattern.FindSubmatch(m)
		name := string(sub[1])
		if voidElements[strings.ToLower(name)] {
			return m
		}
		var buf bytes.Buffer
		buf.Grow(len(m) + len(name) + 3)
		buf.WriteByte('<')
		buf.Write(sub[1])
		buf.Write(sub[2])
		buf.WriteString("></")
		buf.Write(sub[1])
		buf.WriteByte('>')
		return buf.Bytes()
	})
}
