package epub

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

// ParsePackage parses the package (OPF) document stored at opfPath.
//
// Parsing is strict: a missing <metadata>, dc:title, dc:identifier,
// <manifest> or <spine>, a spine itemref naming no manifest item, and a
// manifest href escaping the archive root all fail with a *PackageError.
// Manifest hrefs are resolved against the OPF directory. log may be nil.
func ParsePackage(data []byte, opfPath string, log *zap.Logger) (*Package, error) {
	if log == nil {
		log = zap.NewNop()
	}

	doc, err := readXML(data, xmlReadOptions{permissive: true})
	if err != nil {
		return nil, fmt.Errorf("epub: parse OPF: %v: %w", err, ErrInvalidEPub)
	}
	root := doc.Root()
	if root.Tag != "package" {
		return nil, fmt.Errorf("epub: OPF root element is <%s>, want <package>: %w", root.Tag, ErrInvalidEPub)
	}

	pkg := &Package{
		Path:             NormalizePath(opfPath),
		Version:          strings.TrimSpace(attrValue(root, "version")),
		UniqueIdentifier: strings.TrimSpace(attrValue(root, "unique-identifier")),
	}
	if pkg.Version == "" {
		// Default to 2.0 if version attribute is missing.
		pkg.Version = "2.0"
	}

	mdEl, err := requireChild(root, "metadata", ErrMissingMetadata)
	if err != nil {
		return nil, err
	}
	manifestEl, err := requireChild(root, "manifest", ErrMissingManifest)
	if err != nil {
		return nil, err
	}
	spineEl, err := requireChild(root, "spine", ErrMissingSpine)
	if err != nil {
		return nil, err
	}

	pkg.Metadata = extractMetadata(mdEl, pkg.Version, log)
	if len(pkg.Metadata.Titles) == 0 {
		return nil, packageError(ErrMissingMetadata, "no dc:title")
	}
	if len(pkg.Metadata.Identifiers) == 0 {
		return nil, packageError(ErrMissingMetadata, "no dc:identifier")
	}
	if len(pkg.Metadata.Language) == 0 {
		log.Warn("package has no dc:language", zap.String("opf", pkg.Path))
	}

	if pkg.Manifest, err = buildManifest(manifestEl, pkg.Path, log); err != nil {
		return nil, err
	}
	if pkg.Spine, err = buildSpine(spineEl, pkg.Manifest); err != nil {
		return nil, err
	}
	pkg.Spine.StepIndex = childStepIndex(root, spineEl)
	pkg.Guide = buildGuide(childElement(root, "guide"), pkg.Path)

	log.Debug("parsed package",
		zap.String("opf", pkg.Path),
		zap.String("version", pkg.Version),
		zap.Int("manifest", len(pkg.Manifest.Items)),
		zap.Int("spine", len(pkg.Spine.Items)))

	return pkg, nil
}

// buildManifest creates the manifest from the <manifest> element and its
// id/href lookup maps. Items without id or href are skipped; on duplicate
// ids the first item wins.
func buildManifest(el *etree.Element, opfPath string, log *zap.Logger) (Manifest, error) {
	items := childElements(el, "item")
	m := Manifest{
		Items:  make([]ManifestItem, 0, len(items)),
		byID:   make(map[string]int, len(items)),
		byHref: make(map[string]int, len(items)),
	}

	for _, it := range items {
		id := strings.TrimSpace(attrValue(it, "id"))
		rawHref := strings.TrimSpace(attrValue(it, "href"))
		if id == "" || rawHref == "" {
			log.Warn("skipping manifest item without id or href",
				zap.String("id", id), zap.String("href", rawHref))
			continue
		}
		if _, dup := m.byID[id]; dup {
			log.Warn("duplicate manifest id", zap.String("id", id))
			continue
		}

		mi := ManifestItem{
			ID:           id,
			MediaType:    strings.TrimSpace(attrValue(it, "media-type")),
			Properties:   strings.Fields(attrValue(it, "properties")),
			Fallback:     strings.TrimSpace(attrValue(it, "fallback")),
			MediaOverlay: strings.TrimSpace(attrValue(it, "media-overlay")),
		}
		if hasURIScheme(rawHref) {
			mi.Href = rawHref
			mi.Remote = true
		} else {
			resolved, err := ResolveHrefStrict(opfPath, URLDecode(RemoveFragment(rawHref)))
			if err != nil {
				return Manifest{}, packageError(ErrPathEscapesRoot, "manifest item %q href %q", id, rawHref)
			}
			mi.Href = resolved
		}

		m.byID[id] = len(m.Items)
		if _, exists := m.byHref[mi.Href]; !exists {
			m.byHref[mi.Href] = len(m.Items)
		}
		m.Items = append(m.Items, mi)
	}

	return m, nil
}

// buildSpine creates the spine from the <spine> element, resolving each
// itemref against the manifest.
func buildSpine(el *etree.Element, manifest Manifest) (Spine, error) {
	refs := childElements(el, "itemref")
	s := Spine{
		Items:                    make([]SpineItem, 0, len(refs)),
		TocID:                    strings.TrimSpace(attrValue(el, "toc")),
		PageProgressionDirection: strings.TrimSpace(attrValue(el, "page-progression-direction")),
	}

	for i, ref := range refs {
		idref := strings.TrimSpace(attrValue(ref, "idref"))
		mi, ok := manifest.ByID(idref)
		if !ok {
			return Spine{}, packageError(ErrUnresolvedSpineRef, "itemref %d idref %q", i, idref)
		}
		s.Items = append(s.Items, SpineItem{
			IDRef:      idref,
			ID:         strings.TrimSpace(attrValue(ref, "id")),
			Linear:     strings.TrimSpace(attrValue(ref, "linear")) != "no",
			Properties: strings.Fields(attrValue(ref, "properties")),
			Href:       mi.Href,
			MediaType:  mi.MediaType,
		})
	}

	return s, nil
}

// buildGuide creates the guide references; el may be nil.
func buildGuide(el *etree.Element, opfPath string) []GuideReference {
	refs := childElements(el, "reference")
	out := make([]GuideReference, 0, len(refs))
	for _, r := range refs {
		out = append(out, GuideReference{
			Type:  strings.TrimSpace(attrValue(r, "type")),
			Title: strings.TrimSpace(attrValue(r, "title")),
			Href:  resolveContentRef(opfPath, attrValue(r, "href")),
		})
	}
	return out
}

// childStepIndex returns the CFI step index (2, 4, 6, ...) of child among
// the element children of parent, or 0 if it is not a child.
func childStepIndex(parent, child *etree.Element) int {
	for i, c := range parent.ChildElements() {
		if c == child {
			return 2 * (i + 1)
		}
	}
	return 0
}
