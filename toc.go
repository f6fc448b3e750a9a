package epub

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Navigation is the parsed navigation of a publication. Every field may be
// empty; a missing navigation document is not an error.
type Navigation struct {
	TOC       []TOCItem
	Landmarks []TOCItem
	PageList  []TOCItem
}

// buildNavigation determines the TOC source (nav document or NCX), parses
// it and assigns spine indices. ePub 3 prefers the nav document and falls
// back to the NCX. Failures degrade to an empty TOC and a warning.
func buildNavigation(pkg *Package, read func(string) ([]byte, error), log *zap.Logger) (Navigation, []string) {
	var warnings []string
	warn := func(msg string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v", msg, err))
		log.Warn(msg, zap.Error(err))
	}

	if strings.HasPrefix(pkg.Version, "3") {
		if item, ok := pkg.Manifest.WithProperty("nav"); ok {
			data, err := read(item.Href)
			if err != nil {
				warn("failed to read nav document", err)
			} else if nav, err := ParseNavDocument(data, item.Href); err != nil {
				warn("failed to parse nav document", err)
			} else if len(nav.TOC) > 0 {
				finishNavigation(&nav, pkg.Spine)
				return nav, warnings
			}
		}
	}

	if pkg.Spine.TocID != "" {
		if item, ok := pkg.Manifest.ByID(pkg.Spine.TocID); ok {
			data, err := read(item.Href)
			if err != nil {
				warn("failed to read NCX file", err)
			} else if nav, err := ParseNCX(data, item.Href); err != nil {
				warn("failed to parse NCX file", err)
			} else {
				finishNavigation(&nav, pkg.Spine)
				return nav, warnings
			}
		}
	}

	log.Debug("no table of contents found")
	return Navigation{TOC: []TOCItem{}}, warnings
}

// finishNavigation assigns spine indices and spine ranges to every tree.
func finishNavigation(nav *Navigation, spine Spine) {
	spineMap := make(map[string]int, len(spine.Items))
	for i, si := range spine.Items {
		if _, exists := spineMap[si.Href]; !exists {
			spineMap[si.Href] = i
		}
	}
	for _, items := range [][]TOCItem{nav.TOC, nav.Landmarks, nav.PageList} {
		assignSpineIndices(items, spineMap)
	}
	computeSpineRanges(nav.TOC, len(spine.Items))
	if nav.TOC == nil {
		nav.TOC = []TOCItem{}
	}
}

// walkTOC calls fn on every item of the tree in document order.
func walkTOC(items []TOCItem, fn func(*TOCItem)) {
	for i := range items {
		fn(&items[i])
		walkTOC(items[i].Children, fn)
	}
}

// assignSpineIndices points every item whose href, fragment removed, names a
// spine document at that document.
func assignSpineIndices(items []TOCItem, spineMap map[string]int) {
	walkTOC(items, func(it *TOCItem) {
		if it.Href == "" {
			return
		}
		if idx, ok := spineMap[RemoveFragment(it.Href)]; ok {
			it.SpineIndex = idx
		}
	})
}

// computeSpineRanges sets SpineEndIndex so that each item covers
// spine[SpineIndex:SpineEndIndex]. A range ends where the next item by spine
// position starts, or at spineLen. Unmatched items get -1.
func computeSpineRanges(items []TOCItem, spineLen int) {
	starts := make(map[int]struct{})
	walkTOC(items, func(it *TOCItem) {
		if it.SpineIndex >= 0 {
			starts[it.SpineIndex] = struct{}{}
		}
	})
	sorted := slices.Sorted(maps.Keys(starts))

	walkTOC(items, func(it *TOCItem) {
		if it.SpineIndex < 0 {
			it.SpineEndIndex = -1
			return
		}
		i, _ := slices.BinarySearch(sorted, it.SpineIndex)
		if i+1 < len(sorted) {
			it.SpineEndIndex = sorted[i+1]
		} else {
			it.SpineEndIndex = spineLen
		}
	})
}

// --- NCX (ePub 2) ---

// ParseNCX parses an NCX document stored at ncxPath. Relative hrefs are
// resolved to ZIP root-relative paths. Element lookups ignore namespace
// prefixes.
func ParseNCX(data []byte, ncxPath string) (Navigation, error) {
	doc, err := readXML(data, xmlReadOptions{permissive: true})
	if err != nil {
		return Navigation{}, fmt.Errorf("epub: parse NCX: %w", err)
	}
	root := doc.Root()
	if root.Tag != "ncx" {
		return Navigation{}, fmt.Errorf("epub: parse NCX: root element is <%s>", root.Tag)
	}

	var nav Navigation
	if navMap := findDescendant(root, "navMap"); navMap != nil {
		nav.TOC = convertNavPoints(childElements(navMap, "navPoint"), ncxPath, 1)
	}
	if pageList := findDescendant(root, "pageList"); pageList != nil {
		nav.PageList = convertNavPoints(childElements(pageList, "pageTarget"), ncxPath, 1)
	}
	return nav, nil
}

// convertNavPoints recursively converts navPoint (or pageTarget) elements
// into TOCItem entries.
func convertNavPoints(points []*etree.Element, ncxPath string, level int) []TOCItem {
	if len(points) == 0 {
		return nil
	}

	items := make([]TOCItem, 0, len(points))
	for _, np := range points {
		item := TOCItem{
			Level:         level,
			SpineIndex:    -1,
			SpineEndIndex: -1,
		}
		if label := childElement(np, "navLabel"); label != nil {
			item.Title = collapseSpaces(textContent(childElement(label, "text")))
		}
		if content := childElement(np, "content"); content != nil {
			item.Href = resolveContentRef(ncxPath, attrValue(content, "src"))
		}
		item.Children = convertNavPoints(childElements(np, np.Tag), ncxPath, level+1)
		items = append(items, item)
	}

	return items
}

// --- Nav Document (ePub 3) ---

// ParseNavDocument parses an ePub 3 XHTML navigation document stored at
// navPath and returns the toc, landmarks and page-list navs.
func ParseNavDocument(data []byte, navPath string) (Navigation, error) {
	doc, err := html.Parse(bytes.NewReader(stripBOM(data)))
	if err != nil {
		return Navigation{}, fmt.Errorf("epub: parse nav document: %w", err)
	}

	var nav Navigation
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode || n.Data != "nav" {
			continue
		}
		ol := firstDescendant(n, "ol")
		if ol == nil {
			continue
		}
		switch {
		case hasEpubType(n, "toc") && nav.TOC == nil:
			nav.TOC = parseNavOL(ol, navPath, 1)
		case hasEpubType(n, "landmarks") && nav.Landmarks == nil:
			nav.Landmarks = parseNavOL(ol, navPath, 1)
		case hasEpubType(n, "page-list") && nav.PageList == nil:
			nav.PageList = parseNavOL(ol, navPath, 1)
		}
	}

	return nav, nil
}

func parseNavOL(ol *html.Node, basePath string, level int) []TOCItem {
	var items []TOCItem
	for li := range ol.ChildNodes() {
		if li.Type == html.ElementNode && li.Data == "li" {
			items = append(items, parseNavLI(li, basePath, level))
		}
	}
	return items
}

// parseNavLI converts one <li>. The first <a> supplies href and title; a
// <span> heading supplies only a title. A nested <ol> holds the children.
func parseNavLI(li *html.Node, basePath string, level int) TOCItem {
	item := TOCItem{Level: level, SpineIndex: -1, SpineEndIndex: -1}
	for c := range li.ChildNodes() {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "a":
			if item.Href == "" {
				item.Href = resolveContentRef(basePath, htmlAttr(c, "href"))
				item.Title = collapseSpaces(innerText(c))
			}
		case "span":
			if item.Title == "" {
				item.Title = collapseSpaces(innerText(c))
			}
		case "ol":
			item.Children = parseNavOL(c, basePath, level+1)
		}
	}
	return item
}

// hasEpubType reports whether the epub:type attribute of n lists token.
func hasEpubType(n *html.Node, token string) bool {
	return slices.Contains(strings.Fields(htmlAttr(n, "epub:type")), token)
}

// htmlAttr returns the value of the attribute with the given key on n.
func htmlAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// firstDescendant returns the first element named tag below n.
func firstDescendant(n *html.Node, tag string) *html.Node {
	for d := range n.Descendants() {
		if d.Type == html.ElementNode && d.Data == tag {
			return d
		}
	}
	return nil
}

// innerText concatenates the text nodes below n.
func innerText(n *html.Node) string {
	var sb strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			sb.WriteString(d.Data)
		}
	}
	return sb.String()
}

// collapseSpaces trims s and collapses internal whitespace runs to one space.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
