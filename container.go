package epub

import (
	"fmt"
	"strings"
)

// Well-known META-INF entries.
const (
	containerPath  = "META-INF/container.xml"
	encryptionPath = "META-INF/encryption.xml"
	rightsPath     = "META-INF/rights.xml"
	sinfPath       = "META-INF/sinf.xml"
	lcpLicensePath = "META-INF/license.lcpl"
)

// opfMediaType is the media type of the package document in container.xml.
const opfMediaType = "application/oebps-package+xml"

// locatePackage returns the archive path of the package document, read
// from META-INF/container.xml or, when that is missing, taken from the
// first ".opf" entry.
func locatePackage(a *Archive) (string, error) {
	if !a.Has(containerPath) {
		if name := a.findBySuffix(".opf"); name != "" {
			return name, nil
		}
		return "", fmt.Errorf("epub: no container.xml and no OPF file: %w", ErrInvalidEPub)
	}
	data, err := a.ReadFile(containerPath)
	if err != nil {
		return "", fmt.Errorf("epub: read container.xml: %w", err)
	}
	return parseContainer(data)
}

// parseContainer returns the full-path of the first rootfile declaring the
// package media type, else of the first rootfile with a non-empty path.
func parseContainer(data []byte) (string, error) {
	doc, err := readXML(data, xmlReadOptions{})
	if err != nil {
		return "", fmt.Errorf("epub: parse container.xml: %v: %w", err, ErrInvalidEPub)
	}
	root := doc.Root()
	if root.Tag != "container" {
		return "", fmt.Errorf("epub: container.xml root is <%s>: %w", root.Tag, ErrInvalidEPub)
	}

	var first string
	for _, rf := range childElements(childElement(root, "rootfiles"), "rootfile") {
		p := strings.TrimSpace(attrValue(rf, "full-path"))
		if p == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(attrValue(rf, "media-type")), opfMediaType) {
			return NormalizePath(p), nil
		}
		if first == "" {
			first = p
		}
	}
	if first == "" {
		return "", fmt.Errorf("epub: container.xml names no package document: %w", ErrInvalidEPub)
	}
	return NormalizePath(first), nil
}
