package epub

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// ContentLoader loads the parsed content document of a spine item. Book
// implements it.
type ContentLoader interface {
	ContentDocument(spineIndex int) (*ContentDocument, error)
}

// Location is a resolved position inside a publication.
type Location struct {
	SpineIndex int
	Href       string

	// Path holds the structural step indices inside the content document,
	// starting below the root element. It is nil when the location is the
	// spine item itself.
	Path []int

	// Offset is the character offset inside the target text chunk, or -1.
	Offset int

	Side Side

	// TextOffset is the matching offset into ContentDocument.Text, or -1
	// when the target lies outside the body.
	TextOffset int

	// Node is the target element, or the first text node of the target
	// text chunk. It is nil for spine-level locations and empty chunks.
	Node *html.Node
}

// ResolveCFI resolves the start point of c.
func ResolveCFI(pkg *Package, c CFI, loader ContentLoader) (Location, error) {
	return resolvePath(pkg, c.StartPath(), loader, c)
}

// ResolveCFIRange resolves both points of c. A non-range CFI yields the same
// location twice.
func ResolveCFIRange(pkg *Package, c CFI, loader ContentLoader) (start, end Location, err error) {
	if start, err = resolvePath(pkg, c.StartPath(), loader, c); err != nil {
		return Location{}, Location{}, err
	}
	if end, err = resolvePath(pkg, c.EndPath(), loader, c); err != nil {
		return Location{}, Location{}, err
	}
	return start, end, nil
}

func notFound(c CFI, format string, args ...any) error {
	return fmt.Errorf("epub: resolve %s: %s: %w", c, fmt.Sprintf(format, args...), ErrCFINotFound)
}

func resolvePath(pkg *Package, steps []Step, loader ContentLoader, c CFI) (Location, error) {
	if len(steps) < 2 {
		return Location{}, notFound(c, "path is shorter than spine/itemref")
	}
	spineStep, itemStep := steps[0], steps[1]
	if spineStep.Kind != StepStructural || spineStep.Indirect || spineStep.Index != pkg.Spine.StepIndex {
		return Location{}, notFound(c, "first step does not address the spine")
	}
	if itemStep.Kind != StepStructural || itemStep.Indirect || itemStep.Index%2 != 0 || itemStep.Index == 0 {
		return Location{}, notFound(c, "second step does not address an itemref")
	}

	i := itemStep.Index/2 - 1
	if itemStep.ID != "" && (i >= len(pkg.Spine.Items) || !matchesItemref(pkg.Spine.Items[i], itemStep.ID)) {
		if j := slices.IndexFunc(pkg.Spine.Items, func(it SpineItem) bool {
			return matchesItemref(it, itemStep.ID)
		}); j >= 0 {
			i = j
		}
	}
	if i >= len(pkg.Spine.Items) {
		return Location{}, notFound(c, "spine has no item %d", i)
	}

	loc := Location{SpineIndex: i, Href: pkg.Spine.Items[i].Href, Offset: -1, TextOffset: -1}
	if len(steps) == 2 {
		return loc, nil
	}
	if steps[2].Kind != StepStructural || !steps[2].Indirect {
		return Location{}, notFound(c, "itemref step must be followed by an indirection")
	}

	doc, err := loader.ContentDocument(i)
	if err != nil {
		return Location{}, fmt.Errorf("epub: resolve %s: %w", c, err)
	}
	inner, err := doc.resolveSteps(steps[2:])
	if err != nil {
		return Location{}, notFound(c, "%v", err)
	}
	inner.SpineIndex, inner.Href = loc.SpineIndex, loc.Href
	return inner, nil
}

func matchesItemref(it SpineItem, id string) bool {
	return it.ID == id || it.IDRef == id
}

// resolveSteps walks the in-document steps from the root element.
func (d *ContentDocument) resolveSteps(steps []Step) (Location, error) {
	loc := Location{Offset: -1, TextOffset: -1}
	cur := d.root
	chunk := -1 // text chunk index once an odd step was taken

	for n, st := range steps {
		if st.Kind == StepTerminal {
			if n != len(steps)-1 {
				return Location{}, fmt.Errorf("offset before step %d", n+1)
			}
			loc.Offset = max(st.Offset, 0)
			loc.Side = st.Side
			break
		}
		if n > 0 && st.Indirect {
			return Location{}, fmt.Errorf("nested indirection is not supported")
		}
		if chunk >= 0 {
			return Location{}, fmt.Errorf("step %d descends into a text chunk", n+1)
		}
		if st.Index == 0 {
			return Location{}, fmt.Errorf("step index 0")
		}
		if st.Index%2 == 1 {
			k := (st.Index - 1) / 2
			if _, ok := textChunk(cur, k); !ok {
				return Location{}, fmt.Errorf("no text chunk %d", st.Index)
			}
			chunk = k
			continue
		}
		el := elementChild(cur, st.Index/2)
		if st.ID != "" && (el == nil || htmlAttr(el, "id") != st.ID) {
			if byID, ok := d.ElementByID(st.ID); ok {
				el = byID
			}
		}
		if el == nil {
			return Location{}, fmt.Errorf("no element at step %d", n+1)
		}
		cur = el
	}

	if chunk < 0 {
		loc.Path = d.elementPath(cur)
		loc.Node = cur
		loc.TextOffset = d.textBefore(cur)
		return loc, nil
	}

	nodes, _ := textChunk(cur, chunk)
	loc.Path = append(d.elementPath(cur), 2*chunk+1)
	if len(nodes) > 0 {
		loc.Node = nodes[0]
	}
	loc.TextOffset = d.chunkTextOffset(cur, chunk, nodes, max(loc.Offset, 0))
	return loc, nil
}

// chunkTextOffset maps an offset inside text chunk k of parent to an offset
// into Text. Offsets past the chunk clamp to its end.
func (d *ContentDocument) chunkTextOffset(parent *html.Node, k int, nodes []*html.Node, offset int) int {
	remaining := offset
	for _, t := range nodes {
		l := utf8.RuneCountInString(t.Data)
		if remaining <= l {
			if start, ok := d.starts[t]; ok {
				return start + remaining
			}
			return -1
		}
		remaining -= l
	}
	if len(nodes) > 0 {
		last := nodes[len(nodes)-1]
		if start, ok := d.starts[last]; ok {
			return start + utf8.RuneCountInString(last.Data)
		}
		return -1
	}
	// Empty chunk: the position right before the next element, or the end
	// of parent's content.
	if next := elementChild(parent, k+1); next != nil {
		return d.textBefore(next)
	}
	return d.textThrough(parent)
}

// LocationAt returns the location of a plain-text offset, in the form
// ResolveCFI produces. SpineIndex and Href are taken from the document.
func (d *ContentDocument) LocationAt(offset int) (Location, error) {
	pos, ok := d.PositionAt(offset)
	if !ok {
		return Location{}, fmt.Errorf("epub: %s: text offset %d out of range [0, %d]: %w", d.Href, offset, d.length, ErrCFINotFound)
	}

	t := pos.Node
	k, chunkStart := 0, 0
	first := t
	for s := t.PrevSibling; s != nil; s = s.PrevSibling {
		switch s.Type {
		case html.ElementNode:
			k++
		case html.TextNode:
			if k == 0 {
				chunkStart += utf8.RuneCountInString(s.Data)
				first = s
			}
		}
	}

	return Location{
		SpineIndex: d.SpineIndex,
		Href:       d.Href,
		Path:       append(d.elementPath(t.Parent), 2*k+1),
		Offset:     chunkStart + pos.Offset,
		TextOffset: offset,
		Node:       first,
	}, nil
}

// GenerateCFI builds the canonical CFI of loc. doc must be the content
// document of loc.SpineIndex; it may be nil when loc.Path is empty. Element
// steps carry id assertions for elements that have an id.
func GenerateCFI(pkg *Package, doc *ContentDocument, loc Location) (CFI, error) {
	steps, err := generateSteps(pkg, doc, loc)
	if err != nil {
		return CFI{}, err
	}
	return CFI{Parent: steps}, nil
}

// GenerateRangeCFI builds a range CFI from two locations. The shared parent
// path is the longest common run of element steps.
func GenerateRangeCFI(pkg *Package, startDoc *ContentDocument, start Location, endDoc *ContentDocument, end Location) (CFI, error) {
	a, err := generateSteps(pkg, startDoc, start)
	if err != nil {
		return CFI{}, err
	}
	b, err := generateSteps(pkg, endDoc, end)
	if err != nil {
		return CFI{}, err
	}

	n := 0
	for n < len(a)-1 && n < len(b)-1 && sameElementStep(a[n], b[n]) {
		n++
	}
	return CFI{Parent: a[:n], Start: a[n:], End: b[n:]}, nil
}

func sameElementStep(a, b Step) bool {
	return a.Kind == StepStructural && b.Kind == StepStructural &&
		a.Index%2 == 0 && a.Index == b.Index && a.ID == b.ID && a.Indirect == b.Indirect
}

func generateSteps(pkg *Package, doc *ContentDocument, loc Location) ([]Step, error) {
	if loc.SpineIndex < 0 || loc.SpineIndex >= len(pkg.Spine.Items) {
		return nil, fmt.Errorf("epub: generate CFI: spine index %d: %w", loc.SpineIndex, ErrSpineIndex)
	}
	steps := []Step{
		ElementStep(pkg.Spine.StepIndex, ""),
		ElementStep(2*(loc.SpineIndex+1), pkg.Spine.Items[loc.SpineIndex].ID),
	}
	if len(loc.Path) == 0 {
		return steps, nil
	}
	if doc == nil {
		return nil, fmt.Errorf("epub: generate CFI: no content document for spine item %d", loc.SpineIndex)
	}

	cur := doc.root
	for n, idx := range loc.Path {
		st := ElementStep(idx, "")
		st.Indirect = n == 0
		switch {
		case idx <= 0:
			return nil, fmt.Errorf("epub: generate CFI: step index %d: %w", idx, ErrCFINotFound)
		case idx%2 == 1:
			if n != len(loc.Path)-1 {
				return nil, fmt.Errorf("epub: generate CFI: text step %d is not last: %w", idx, ErrCFINotFound)
			}
			if _, ok := textChunk(cur, (idx-1)/2); !ok {
				return nil, fmt.Errorf("epub: generate CFI: no text chunk %d: %w", idx, ErrCFINotFound)
			}
		default:
			el := elementChild(cur, idx/2)
			if el == nil {
				return nil, fmt.Errorf("epub: generate CFI: no element at index %d: %w", idx, ErrCFINotFound)
			}
			st.ID = htmlAttr(el, "id")
			cur = el
		}
		steps = append(steps, st)
	}
	if loc.Offset >= 0 {
		steps = append(steps, OffsetStep(loc.Offset, loc.Side))
	}
	return steps, nil
}

// elementChild returns the k-th (1-based) element child of n.
func elementChild(n *html.Node, k int) *html.Node {
	if n == nil || k < 1 {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if k--; k == 0 {
			return c
		}
	}
	return nil
}

// textChunk returns the text nodes of chunk k (0-based) of n, the run of
// children between element children k and k+1. ok is false when n has
// fewer than k element children.
func textChunk(n *html.Node, k int) (nodes []*html.Node, ok bool) {
	elems := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			if elems == k {
				return nodes, true
			}
			elems++
			continue
		}
		if elems == k && c.Type == html.TextNode {
			nodes = append(nodes, c)
		}
	}
	return nodes, elems == k
}

// elementPath returns the even step indices from the root element down to n.
func (d *ContentDocument) elementPath(n *html.Node) []int {
	var path []int
	for c := n; c != nil && c != d.root; c = c.Parent {
		pos := 1
		for s := c.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode {
				pos++
			}
		}
		path = append(path, 2*pos)
	}
	slices.Reverse(path)
	if path == nil {
		path = []int{}
	}
	return path
}

func (d *ContentDocument) inBody(n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c == d.body {
			return true
		}
	}
	return false
}

// textBefore returns the amount of body text preceding n in document
// order, or -1 when n lies outside the body.
func (d *ContentDocument) textBefore(n *html.Node) int {
	if d.body == nil || !d.inBody(n) {
		return -1
	}
	count := 0
	var walk func(*html.Node) bool
	walk = func(c *html.Node) bool {
		if c == n {
			return true
		}
		if start, ok := d.starts[c]; ok {
			count = start + utf8.RuneCountInString(c.Data)
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			if walk(ch) {
				return true
			}
		}
		return false
	}
	walk(d.body)
	return count
}

// textThrough returns the amount of body text up to the end of n.
func (d *ContentDocument) textThrough(n *html.Node) int {
	end := d.textBefore(n)
	if end < 0 {
		return -1
	}
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if start, ok := d.starts[c]; ok {
			end = max(end, start+utf8.RuneCountInString(c.Data))
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return end
}
