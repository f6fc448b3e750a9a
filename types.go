package epub

import "slices"

// Metadata is the Dublin Core metadata of a package, plus every <meta>.
// Single-valued fields keep the first non-empty occurrence.
type Metadata struct {
	// Version mirrors Package.Version.
	Version string

	// Titles are ordered by display-seq when the package refines them;
	// Titles[0] is the main title.
	Titles []string

	Authors []Author

	// Language contains canonical BCP 47 tags ("en", "zh-CN"). Values that
	// do not parse as tags are kept verbatim.
	Language []string

	Identifiers []Identifier
	Publisher   string

	// Date is kept as written; it is not parsed.
	Date        string
	Description string
	Subjects    []string
	Rights      string
	Source      string

	// Metas lists every <meta> element in document order.
	Metas []Meta
}

// Title returns the primary title, or "" when there is none.
func (m Metadata) Title() string {
	if len(m.Titles) == 0 {
		return ""
	}
	return m.Titles[0]
}

// Author is one dc:creator. FileAs and Role come from opf: attributes in
// ePub 2 and from refining metas in ePub 3.
type Author struct {
	Name   string
	FileAs string // "Melville, Herman"
	Role   string // MARC relator code such as "aut" or "trl"
}

// Identifier is one dc:identifier.
type Identifier struct {
	Value string

	// Scheme is the opf:scheme attribute or the identifier-type refinement.
	Scheme string

	// ID is the element id; Package.UniqueIdentifier names one of them.
	ID string
}

// Meta is a <meta> element of the package metadata.
// ePub 2 uses Name/Content, ePub 3 uses Property/Refines/Value.
type Meta struct {
	Name     string
	Content  string
	Property string
	Refines  string
	Scheme   string
	Value    string
}

// TOCItem is a node of a navigation tree: the TOC, the landmarks or the
// page list.
type TOCItem struct {
	Title string

	// Href is the ZIP-internal content path, possibly with a fragment
	// (e.g., "OEBPS/chapter01.xhtml#section2").
	Href string

	// Level is the nesting depth; top-level entries have level 1.
	Level int

	Children []TOCItem

	// SpineIndex and SpineEndIndex delimit the spine documents the entry
	// covers, spine[SpineIndex:SpineEndIndex]. Both are -1 when Href names
	// no spine document.
	SpineIndex    int
	SpineEndIndex int
}

// Chapter is a handle on one spine item. The zero value is invalid; get
// chapters from Book.Chapters.
type Chapter struct {
	// Index is the spine position.
	Index int

	// Title comes from the TOC and is empty for documents it does not name.
	Title string

	Href string

	// ID is the manifest id of the document.
	ID string

	Linear bool

	// IsLicense marks Project Gutenberg license pages. It is filled in by
	// Book.ContentChapters.
	IsLicense bool

	book resourceReader
}

// resourceReader is implemented by Book for lazy content loading.
type resourceReader interface {
	readResource(path string) ([]byte, error)
}

// CoverImage is a cover found by Book.Cover.
type CoverImage struct {
	Path      string // ZIP-internal
	MediaType string
	Data      []byte
}

// Package is the parsed package (OPF) document.
type Package struct {
	// Path is the ZIP-internal path of the OPF file.
	Path string

	// Version is the package version attribute ("2.0" when absent).
	Version string

	// UniqueIdentifier is the id of the dc:identifier named by the
	// unique-identifier attribute.
	UniqueIdentifier string

	Metadata Metadata
	Manifest Manifest
	Spine    Spine
	Guide    []GuideReference
}

// Dir returns the directory of the OPF file ("." at the archive root).
func (p *Package) Dir() string {
	return PathDir(p.Path)
}

// ManifestItem is one <item> of the manifest.
type ManifestItem struct {
	ID string

	// Href is the resolved ZIP-internal path, or the verbatim URL for
	// remote resources.
	Href string

	MediaType string

	// Properties holds the space-separated properties (ePub 3, e.g. "nav").
	Properties []string

	Fallback     string
	MediaOverlay string

	// Remote is true when Href carries a URI scheme.
	Remote bool
}

// HasProperty reports whether the item declares prop.
func (m ManifestItem) HasProperty(prop string) bool {
	return slices.Contains(m.Properties, prop)
}

// Manifest holds the manifest items in document order.
type Manifest struct {
	Items []ManifestItem

	byID   map[string]int
	byHref map[string]int
}

// ByID returns the item with the given id.
func (m Manifest) ByID(id string) (ManifestItem, bool) {
	i, ok := m.byID[id]
	if !ok {
		return ManifestItem{}, false
	}
	return m.Items[i], true
}

// ByHref returns the item whose resolved href equals href (fragment ignored).
func (m Manifest) ByHref(href string) (ManifestItem, bool) {
	i, ok := m.byHref[RemoveFragment(href)]
	if !ok {
		return ManifestItem{}, false
	}
	return m.Items[i], true
}

// WithProperty returns the first item declaring prop, in document order.
func (m Manifest) WithProperty(prop string) (ManifestItem, bool) {
	for _, it := range m.Items {
		if it.HasProperty(prop) {
			return it, true
		}
	}
	return ManifestItem{}, false
}

// SpineItem is one <itemref> of the spine.
type SpineItem struct {
	// IDRef is the manifest id referenced by this itemref.
	IDRef string

	// ID is the itemref's own id attribute, used as CFI id assertion.
	ID string

	// Linear is false for itemrefs with linear="no".
	Linear bool

	Properties []string

	// Href and MediaType are copied from the referenced manifest item.
	Href      string
	MediaType string
}

// Spine is the ordered reading sequence.
type Spine struct {
	Items []SpineItem

	// TocID is the manifest id of the NCX (ePub 2 toc attribute).
	TocID string

	// PageProgressionDirection is "ltr", "rtl" or "".
	PageProgressionDirection string

	// StepIndex is the CFI step index of the <spine> element among the
	// children of <package> (6 for the usual metadata/manifest/spine order).
	StepIndex int
}

// IndexOfHref returns the spine position of the document at href
// (fragment ignored), or -1.
func (s Spine) IndexOfHref(href string) int {
	href = RemoveFragment(href)
	for i, it := range s.Items {
		if it.Href == href {
			return i
		}
	}
	return -1
}

// GuideReference is an ePub 2 <guide> reference.
type GuideReference struct {
	Type  string
	Title string

	// Href is the resolved ZIP-internal path, fragment included.
	Href string
}
