package epub

import (
	"strings"

	"github.com/beevik/etree"
)

// EncryptionType classifies how a resource, or a whole publication, is protected.
type EncryptionType int

const (
	EncryptionNone EncryptionType = iota
	EncryptionAdobeDRM
	EncryptionAppleFairPlay
	EncryptionLCP
	EncryptionFontObfuscation
	EncryptionUnknown
)

func (t EncryptionType) String() string {
	switch t {
	case EncryptionNone:
		return "none"
	case EncryptionAdobeDRM:
		return "adobeDrm"
	case EncryptionAppleFairPlay:
		return "appleFairPlay"
	case EncryptionLCP:
		return "lcp"
	case EncryptionFontObfuscation:
		return "fontObfuscation"
	default:
		return "unknown"
	}
}

// IsDRM reports whether t is a rights-management scheme.
func (t EncryptionType) IsDRM() bool {
	return t != EncryptionNone && t != EncryptionFontObfuscation
}

// idpfUserKeyAlgorithm is the IDPF user-key algorithm used by Adobe ADEPT.
const idpfUserKeyAlgorithm = "http://www.idpf.org/2008/epub/algorithm#user_key"

// encryptionRule maps algorithm URI substrings to a classification.
type encryptionRule struct {
	contains []string
	typ      EncryptionType
}

// encryptionRules is evaluated top to bottom; the first rule with a
// matching substring wins.
var encryptionRules = []encryptionRule{
	{contains: []string{"embedding", "obfuscation"}, typ: EncryptionFontObfuscation},
	{contains: []string{"adobe", idpfUserKeyAlgorithm}, typ: EncryptionAdobeDRM},
	{contains: []string{"lcp", "readium.org"}, typ: EncryptionLCP},
}

// ClassifyAlgorithm classifies an encryption algorithm URI.
func ClassifyAlgorithm(uri string) EncryptionType {
	return classifyWith(encryptionRules, uri)
}

func classifyWith(rules []encryptionRule, s string) EncryptionType {
	for _, r := range rules {
		for _, sub := range r.contains {
			if strings.Contains(s, sub) {
				return r.typ
			}
		}
	}
	return EncryptionUnknown
}

// EncryptedResource is one <EncryptedData> entry of encryption.xml.
type EncryptedResource struct {
	// URI is the CipherReference URI (a ZIP-internal path).
	URI string

	// Algorithm is the EncryptionMethod algorithm URI.
	Algorithm string

	// RetrievalMethod is the KeyInfo RetrievalMethod URI, if any.
	RetrievalMethod string

	// Type is the classification of the algorithm.
	Type EncryptionType

	// KeyScheme names the DRM scheme suggested by the KeyInfo markup
	// (retrieval method and namespaces), or EncryptionUnknown. It does not
	// affect Type.
	KeyScheme EncryptionType
}

// EncryptionInfo describes the encryption declared by a publication.
type EncryptionInfo struct {
	// Type is the publication-level classification.
	Type EncryptionType

	Resources []EncryptedResource

	// HasRightsFile is true when META-INF/rights.xml is present.
	HasRightsFile bool

	// HasLCPLicense is true when META-INF/license.lcpl is present.
	HasLCPLicense bool

	// Algorithms lists the distinct algorithm URIs in first-seen order.
	Algorithms []string
}

// NoEncryption is the EncryptionInfo of an unencrypted publication.
var NoEncryption = EncryptionInfo{Type: EncryptionNone}

// HasDRM reports whether the publication is protected by a DRM scheme.
func (e EncryptionInfo) HasDRM() bool {
	return e.Type.IsDRM()
}

// IsOnlyFontObfuscation reports whether there is at least one encrypted
// resource and every one of them is an obfuscated font.
func (e EncryptionInfo) IsOnlyFontObfuscation() bool {
	if len(e.Resources) == 0 {
		return false
	}
	for _, r := range e.Resources {
		if r.Type != EncryptionFontObfuscation {
			return false
		}
	}
	return true
}

// DRMEncryptedResources returns the resources not classified as font obfuscation.
func (e EncryptionInfo) DRMEncryptedResources() []EncryptedResource {
	var out []EncryptedResource
	for _, r := range e.Resources {
		if r.Type != EncryptionFontObfuscation {
			out = append(out, r)
		}
	}
	return out
}

// FontObfuscatedResources returns the resources classified as font obfuscation.
func (e EncryptionInfo) FontObfuscatedResources() []EncryptedResource {
	var out []EncryptedResource
	for _, r := range e.Resources {
		if r.Type == EncryptionFontObfuscation {
			out = append(out, r)
		}
	}
	return out
}

// Resource returns the encrypted resource declared for the ZIP-internal path p.
func (e EncryptionInfo) Resource(p string) (EncryptedResource, bool) {
	p = NormalizePath(p)
	for _, r := range e.Resources {
		if NormalizePath(r.URI) == p {
			return r, true
		}
	}
	return EncryptedResource{}, false
}

// IsEncrypted reports whether encryption.xml declares the resource at p.
func (e EncryptionInfo) IsEncrypted(p string) bool {
	_, ok := e.Resource(p)
	return ok
}

// ParseEncryption parses the text of META-INF/encryption.xml. It never
// fails: empty input yields NoEncryption, malformed XML yields
// EncryptionUnknown with no resources, and entries missing an algorithm or
// a cipher reference are skipped.
func ParseEncryption(data []byte) EncryptionInfo {
	if len(strings.TrimSpace(string(stripBOM(data)))) == 0 {
		return NoEncryption
	}

	doc, err := readXML(data, xmlReadOptions{})
	if err != nil {
		return EncryptionInfo{Type: EncryptionUnknown}
	}

	info := EncryptionInfo{}
	seen := make(map[string]bool)
	for _, ed := range encryptedDataElements(doc.Root()) {
		res, ok := parseEncryptedData(ed)
		if !ok {
			continue
		}
		info.Resources = append(info.Resources, res)
		if !seen[res.Algorithm] {
			seen[res.Algorithm] = true
			info.Algorithms = append(info.Algorithms, res.Algorithm)
		}
	}

	info.Type = aggregateType(info.Resources)
	return info
}

// encryptedDataElements returns the EncryptedData elements under root; the
// root itself counts when a producer omits the <encryption> wrapper.
func encryptedDataElements(root *etree.Element) []*etree.Element {
	if root.Tag == "EncryptedData" {
		return []*etree.Element{root}
	}
	return childElements(root, "EncryptedData")
}

func parseEncryptedData(ed *etree.Element) (EncryptedResource, bool) {
	algo := strings.TrimSpace(attrValue(childElement(ed, "EncryptionMethod"), "Algorithm"))
	uri := strings.TrimSpace(attrValue(childElement(childElement(ed, "CipherData"), "CipherReference"), "URI"))
	if algo == "" || uri == "" {
		return EncryptedResource{}, false
	}

	res := EncryptedResource{
		URI:       URLDecode(uri),
		Algorithm: algo,
		Type:      ClassifyAlgorithm(algo),
	}

	keyInfo := childElement(ed, "KeyInfo")
	res.RetrievalMethod = strings.TrimSpace(attrValue(findDescendant(keyInfo, "RetrievalMethod"), "URI"))
	res.KeyScheme = classifyWith(encryptionRules[1:], res.RetrievalMethod+" "+keyInfoNamespaces(keyInfo))
	return res, true
}

// keyInfoNamespaces returns the namespace URIs used below KeyInfo,
// space-separated.
func keyInfoNamespaces(keyInfo *etree.Element) string {
	if keyInfo == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*etree.Element)
	walk = func(el *etree.Element) {
		for _, c := range el.ChildElements() {
			sb.WriteString(c.NamespaceURI())
			sb.WriteByte(' ')
			walk(c)
		}
	}
	walk(keyInfo)
	return sb.String()
}

// aggregateType derives the publication-level type: the first non-font
// classification in document order, font obfuscation when every resource
// is a font, and unknown when nothing was parsed.
func aggregateType(resources []EncryptedResource) EncryptionType {
	if len(resources) == 0 {
		return EncryptionUnknown
	}
	for _, r := range resources {
		if r.Type != EncryptionFontObfuscation {
			return r.Type
		}
	}
	return EncryptionFontObfuscation
}

// applyArchiveSignals folds the presence of well-known META-INF files into
// info. Apple FairPlay has no encryption.xml vocabulary of its own and is
// detected from sinf.xml alone.
func applyArchiveSignals(info EncryptionInfo, hasRights, hasLCPLicense, hasSinf bool) EncryptionInfo {
	info.HasRightsFile = hasRights
	info.HasLCPLicense = hasLCPLicense
	undecided := info.Type == EncryptionNone || info.Type == EncryptionUnknown
	switch {
	case hasSinf && undecided:
		info.Type = EncryptionAppleFairPlay
	case hasLCPLicense && undecided:
		info.Type = EncryptionLCP
	case hasRights && undecided:
		info.Type = EncryptionAdobeDRM
	}
	return info
}
