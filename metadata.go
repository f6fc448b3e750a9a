package epub

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// dcElement holds a Dublin Core element with optional OPF attributes.
// ePub 2 uses opf:file-as, opf:role, opf:scheme attributes directly.
// ePub 3 uses <meta refines="..."> elements to express the same information.
type dcElement struct {
	Value  string
	ID     string
	FileAs string
	Role   string
	Scheme string
}

// rawMetadata groups the metadata children by local name.
type rawMetadata struct {
	dc    map[string][]dcElement
	metas []Meta
}

// collectMetadata walks <metadata>, including the ePub 2 <dc-metadata> and
// <x-metadata> wrappers some producers still emit.
func collectMetadata(el *etree.Element) rawMetadata {
	raw := rawMetadata{dc: make(map[string][]dcElement)}
	var walk func(*etree.Element)
	walk = func(parent *etree.Element) {
		for _, c := range parent.ChildElements() {
			switch c.Tag {
			case "dc-metadata", "x-metadata":
				walk(c)
			case "meta":
				raw.metas = append(raw.metas, Meta{
					Name:     attrValue(c, "name"),
					Content:  attrValue(c, "content"),
					Property: attrValue(c, "property"),
					Refines:  attrValue(c, "refines"),
					Scheme:   attrValue(c, "scheme"),
					Value:    textContent(c),
				})
			default:
				raw.dc[c.Tag] = append(raw.dc[c.Tag], dcElement{
					Value:  textContent(c),
					ID:     attrValue(c, "id"),
					FileAs: opfAttr(c, "file-as"),
					Role:   opfAttr(c, "role"),
					Scheme: opfAttr(c, "scheme"),
				})
			}
		}
	}
	walk(el)
	return raw
}

// opfAttr prefers the opf-namespaced attribute and falls back to any
// attribute with that local name, for producers that drop the prefix.
func opfAttr(el *etree.Element, local string) string {
	if v := attrValue(el, local, nsOPF); v != "" {
		return v
	}
	return attrValue(el, local)
}

// extractMetadata builds Metadata from <metadata>. ePub 3 refinements fill
// in what ePub 2 expresses with opf: attributes.
func extractMetadata(el *etree.Element, version string, log *zap.Logger) Metadata {
	raw := collectMetadata(el)
	refs := refinementsOf(raw.metas)
	md := Metadata{
		Version:     version,
		Metas:       raw.metas,
		Titles:      orderedTitles(raw.dc["title"], refs),
		Authors:     authorsOf(raw.dc["creator"], refs),
		Publisher:   firstValue(raw.dc["publisher"]),
		Date:        firstValue(raw.dc["date"]),
		Description: firstValue(raw.dc["description"]),
		Rights:      firstValue(raw.dc["rights"]),
		Source:      firstValue(raw.dc["source"]),
		Subjects:    values(raw.dc["subject"]),
	}
	for _, v := range values(raw.dc["language"]) {
		md.Language = append(md.Language, normalizeLanguage(v, log))
	}
	for _, id := range raw.dc["identifier"] {
		v := strings.TrimSpace(id.Value)
		if v == "" {
			continue
		}
		scheme := id.Scheme
		if scheme == "" {
			scheme = refs.get(id.ID, "identifier-type")
		}
		md.Identifiers = append(md.Identifiers, Identifier{Value: v, Scheme: scheme, ID: id.ID})
	}
	return md
}

// normalizeLanguage returns the canonical form of a BCP 47 tag ("EN-us" →
// "en-US"). Unparseable values are returned trimmed but otherwise verbatim.
func normalizeLanguage(v string, log *zap.Logger) string {
	tag, err := language.Parse(v)
	if err != nil {
		log.Debug("unparseable dc:language", zap.String("value", v), zap.Error(err))
		return v
	}
	return tag.String()
}

// firstValue returns the first non-empty trimmed value.
func firstValue(els []dcElement) string {
	if vs := values(els); len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// values returns the non-empty trimmed values in document order.
func values(els []dcElement) []string {
	var out []string
	for _, e := range els {
		if v := strings.TrimSpace(e.Value); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// refinements indexes <meta refines="#id"> elements by the refined id.
type refinements map[string][]Meta

func refinementsOf(metas []Meta) refinements {
	refs := make(refinements)
	for _, m := range metas {
		if id, ok := strings.CutPrefix(m.Refines, "#"); ok && id != "" {
			refs[id] = append(refs[id], m)
		}
	}
	return refs
}

// get returns the first non-empty value of property refining id.
func (r refinements) get(id, property string) string {
	if id == "" {
		return ""
	}
	for _, m := range r[id] {
		if m.Property != property {
			continue
		}
		if v := strings.TrimSpace(m.Value); v != "" {
			return v
		}
	}
	return ""
}

// orderedTitles returns the dc:title values. Titles refined with a
// display-seq come first in sequence order; the rest keep document order.
func orderedTitles(titles []dcElement, refs refinements) []string {
	type title struct {
		value string
		seq   int // 0 when unsequenced
	}
	var list []title
	for _, t := range titles {
		v := strings.TrimSpace(t.Value)
		if v == "" {
			continue
		}
		seq, err := strconv.Atoi(refs.get(t.ID, "display-seq"))
		if err != nil || seq < 1 {
			seq = 0
		}
		list = append(list, title{value: v, seq: seq})
	}
	slices.SortStableFunc(list, func(a, b title) int {
		switch {
		case a.seq == b.seq:
			return 0
		case a.seq == 0:
			return 1
		case b.seq == 0:
			return -1
		}
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]string, 0, len(list))
	for _, t := range list {
		out = append(out, t.value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func authorsOf(creators []dcElement, refs refinements) []Author {
	var authors []Author
	for _, c := range creators {
		name := strings.TrimSpace(c.Value)
		if name == "" {
			continue
		}
		a := Author{Name: name, FileAs: c.FileAs, Role: c.Role}
		if a.FileAs == "" {
			a.FileAs = refs.get(c.ID, "file-as")
		}
		if a.Role == "" {
			a.Role = refs.get(c.ID, "role")
		}
		authors = append(authors, a)
	}
	return authors
}
