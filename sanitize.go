package epub

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SanitizeOptions controls SanitizeHTML.
type SanitizeOptions struct {
	// AllowRemote keeps resource references (src, poster, stylesheet
	// links, SVG image hrefs) that point outside the archive.
	AllowRemote bool

	// StripStyles removes <style> elements and style attributes.
	StripStyles bool

	// BodyOnly renders the children of <body> instead of the whole document.
	BodyOnly bool

	// RewriteImages rewrites relative image references to ZIP-internal
	// paths resolved against the document path.
	RewriteImages bool
}

// activeTags are removed together with their content.
var activeTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Applet:   true,
	atom.Frame:    true,
	atom.Frameset: true,
	atom.Base:     true,
}

// SanitizeHTML removes active content and disallowed references from the
// markup of the document stored at basePath and renders the result.
func SanitizeHTML(raw []byte, basePath string, opts SanitizeOptions) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(expandSelfClosingTags(stripBOM(raw))))
	if err != nil {
		return nil, fmt.Errorf("epub: sanitize %s: %w", basePath, err)
	}

	sanitizeNode(doc, opts)
	if opts.RewriteImages {
		rewriteImageNode(doc, basePath)
	}

	var buf bytes.Buffer
	if !opts.BodyOnly {
		if err := html.Render(&buf, doc); err != nil {
			return nil, fmt.Errorf("epub: sanitize %s: %w", basePath, err)
		}
		return buf.Bytes(), nil
	}

	body := findElement(doc, atom.Body)
	if body == nil {
		return []byte{}, nil
	}
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return nil, fmt.Errorf("epub: sanitize %s: %w", basePath, err)
		}
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}

// findElement performs a depth-first search for a node with the given atom tag.
func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if result := findElement(c, a); result != nil {
			return result
		}
	}
	return nil
}

// sanitizeNode removes dropped elements below n and cleans the attributes
// of the ones that stay.
func sanitizeNode(n *html.Node, opts SanitizeOptions) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type != html.ElementNode {
			continue
		}
		if dropElement(c, opts) {
			n.RemoveChild(c)
			continue
		}
		cleanAttributes(c, opts)
		sanitizeNode(c, opts)
	}
}

func dropElement(n *html.Node, opts SanitizeOptions) bool {
	if activeTags[n.DataAtom] {
		return true
	}
	switch n.DataAtom {
	case atom.Meta:
		return strings.EqualFold(strings.TrimSpace(htmlAttr(n, "http-equiv")), "refresh")
	case atom.Style:
		return opts.StripStyles
	case atom.Link:
		href := htmlAttr(n, "href")
		if !isSafeURI(href) {
			return true
		}
		return !opts.AllowRemote && isRemoteRef(href)
	}
	return false
}

// cleanAttributes strips event handlers, unsafe URIs and, unless allowed,
// remote resource references from n.
func cleanAttributes(n *html.Node, opts SanitizeOptions) {
	cleaned := n.Attr[:0]
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		switch {
		case strings.HasPrefix(key, "on"):
			continue
		case key == "style" && opts.StripStyles:
			continue
		case isURIAttribute(attr):
			if !isSafeURI(attr.Val) {
				continue
			}
			if !opts.AllowRemote && isResourceAttribute(n, attr) && isRemoteRef(attr.Val) {
				continue
			}
		}
		cleaned = append(cleaned, attr)
	}
	n.Attr = cleaned
}

// isURIAttribute reports whether attr may contain a URL and should be
// protocol-sanitized.
func isURIAttribute(attr html.Attribute) bool {
	switch attr.Key {
	case "href", "src", "poster", "background", "action", "formaction", "xlink:href":
		return true
	}
	return attr.Namespace == "xlink" && attr.Key == "href"
}

// isResourceAttribute reports whether attr makes a renderer fetch
// something, as opposed to a link the reader may follow.
func isResourceAttribute(n *html.Node, attr html.Attribute) bool {
	switch attr.Key {
	case "src", "poster", "background":
		return true
	}
	// href on <a> is navigation; on <image>, <use> and friends it loads.
	return n.DataAtom != atom.A && (attr.Key == "href" || attr.Key == "xlink:href" || attr.Namespace == "xlink")
}

// isRemoteRef reports whether the reference leaves the archive.
func isRemoteRef(raw string) bool {
	v := stripURLControls(raw)
	if strings.HasPrefix(v, "//") {
		return true
	}
	if !hasURIScheme(v) {
		return false
	}
	lower := strings.ToLower(v)
	return !strings.HasPrefix(lower, "data:") && !strings.HasPrefix(lower, "mailto:")
}

// isSafeURI validates URI values for href/src-like attributes.
// Allowed values:
//   - relative paths and fragments
//   - schemes: http, https, mailto
//   - data:image/*
//
// Values still holding a control character after browser-style cleanup
// are rejected.
func isSafeURI(raw string) bool {
	v := stripURLControls(raw)
	if strings.ContainsFunc(v, isASCIIControl) {
		return false
	}
	if v == "" || !hasURIScheme(v) {
		return true
	}
	u, err := url.Parse(v)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "mailto":
		return true
	case "data":
		return strings.HasPrefix(strings.ToLower(v), "data:image/")
	default:
		return false
	}
}

func isASCIIControl(r rune) bool {
	return r < ' ' || r == 0x7f
}

// rewriteImageNode recursively walks the DOM tree, rewriting image paths.
func rewriteImageNode(n *html.Node, basePath string) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Img:
			rewriteAttr(n, "", "src", basePath)
		case atom.Image:
			// SVG <image> uses xlink:href or href
			rewriteAttr(n, "xlink", "href", basePath)
			rewriteAttr(n, "", "href", basePath)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rewriteImageNode(c, basePath)
	}
}

// rewriteAttr points a relative reference at its ZIP-internal path.
// namespace is the XML namespace prefix (empty for no namespace).
func rewriteAttr(n *html.Node, namespace, key, basePath string) {
	for i, attr := range n.Attr {
		if !matchAttr(attr, namespace, key) {
			continue
		}
		if resolved := resolveContentRef(basePath, attr.Val); resolved != "" {
			n.Attr[i].Val = resolved
		}
	}
}

// matchAttr checks if an html.Attribute matches the given namespace and key.
func matchAttr(attr html.Attribute, namespace, key string) bool {
	if namespace == "" {
		return attr.Key == key && attr.Namespace == ""
	}
	// x/net/html stores foreign attributes either with a Namespace or
	// with a prefixed key.
	if attr.Namespace == namespace && attr.Key == key {
		return true
	}
	return attr.Key == namespace+":"+key
}
