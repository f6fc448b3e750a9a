package epub

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

// nsOPF is the OPF namespace of the ePub 2 opf:role, opf:file-as and
// opf:scheme attributes.
const nsOPF = "http://www.idpf.org/2007/opf"

// xmlReadOptions configures a single readXML call.
type xmlReadOptions struct {
	// permissive tolerates unquoted attributes, unknown entities and
	// similar producer mistakes.
	permissive bool
}

// readXML parses data into an etree document. The settings are built per
// call: non-UTF-8 charsets are decoded through x/net/html/charset and HTML
// named entities (&nbsp;, &mdash;, ...) are accepted.
func readXML(data []byte, opts xmlReadOptions) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: charset.NewReaderLabel,
		Permissive:    opts.permissive,
		Entity:        xml.HTMLEntity,
	}
	if err := doc.ReadFromBytes(stripBOM(data)); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("epub: XML document has no root element")
	}
	return doc, nil
}

// childElement returns the first child element of el whose local name is
// local, regardless of namespace prefix, or nil.
func childElement(el *etree.Element, local string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, c := range el.ChildElements() {
		if c.Tag == local {
			return c
		}
	}
	return nil
}

// requireChild is childElement for mandatory children. A missing child is a
// PackageError of the given kind.
func requireChild(el *etree.Element, local string, kind error) (*etree.Element, error) {
	if c := childElement(el, local); c != nil {
		return c, nil
	}
	return nil, packageError(kind, "no <%s> element", local)
}

// findDescendant returns the first element below el, depth first, whose
// local name is local.
func findDescendant(el *etree.Element, local string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, c := range el.ChildElements() {
		if c.Tag == local {
			return c
		}
		if d := findDescendant(c, local); d != nil {
			return d
		}
	}
	return nil
}

// childElements returns all child elements of el with the given local name
// in document order.
func childElements(el *etree.Element, local string) []*etree.Element {
	if el == nil {
		return nil
	}
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == local {
			out = append(out, c)
		}
	}
	return out
}

// attrValue returns the value of the attribute named local on el. When
// nsURI is given, only an attribute in that namespace matches; otherwise
// the first attribute with that local name wins, whatever its prefix.
func attrValue(el *etree.Element, local string, nsURI ...string) string {
	if el == nil {
		return ""
	}
	for i := range el.Attr {
		a := &el.Attr[i]
		if a.Key != local {
			continue
		}
		if len(nsURI) > 0 && a.NamespaceURI() != nsURI[0] {
			continue
		}
		return a.Value
	}
	return ""
}

// textContent concatenates all character data below el in document order,
// ignoring element boundaries.
func textContent(el *etree.Element) string {
	if el == nil {
		return ""
	}
	var sb strings.Builder
	appendText(&sb, el)
	return sb.String()
}

func appendText(sb *strings.Builder, el *etree.Element) {
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			sb.WriteString(t.Data)
		case *etree.Element:
			appendText(sb, t)
		}
	}
}

// stripBOM removes a leading UTF-8 BOM (0xEF 0xBB 0xBF) from data, if present.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
