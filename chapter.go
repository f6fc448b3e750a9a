package epub

import (
	"slices"
	"strings"
)

// licenseMarkers identify a Project Gutenberg license page. A page matches
// a marker when its lowercased text contains every phrase of it.
var licenseMarkers = [][]string{
	{"project gutenberg license"},
	{"gutenberg.org/license"},
	{"end of this project gutenberg ebook"},
	{"start of this project gutenberg ebook"},
	{"project gutenberg", "terms of use"},
	{"gutenberg", "full license"},
}

// isGutenbergLicense reports whether the XHTML page raw is a Project
// Gutenberg license page. Only text content is inspected; markup that
// does not parse is matched as raw bytes.
func isGutenbergLicense(raw []byte) bool {
	text, err := extractText(raw)
	if err != nil {
		text = string(raw)
	}
	text = strings.ToLower(text)

	return slices.ContainsFunc(licenseMarkers, func(phrases []string) bool {
		for _, p := range phrases {
			if !strings.Contains(text, p) {
				return false
			}
		}
		return true
	})
}

// bodyHTMLOptions is the sanitizer configuration of Chapter.BodyHTML.
var bodyHTMLOptions = SanitizeOptions{
	AllowRemote:   true,
	StripStyles:   true,
	BodyOnly:      true,
	RewriteImages: true,
}

// RawContent reads the raw XHTML bytes of this chapter from the ePub archive.
// Leading UTF-8 BOM is stripped if present.
func (c Chapter) RawContent() ([]byte, error) {
	if c.book == nil {
		return nil, ErrInvalidChapter
	}
	data, err := c.book.readResource(c.Href)
	if err != nil {
		return nil, err
	}
	return stripBOM(data), nil
}

// TextContent extracts the plain text content from this chapter's XHTML.
// Block-level elements produce line breaks; script and style content is skipped.
func (c Chapter) TextContent() (string, error) {
	data, err := c.RawContent()
	if err != nil {
		return "", err
	}
	return extractText(data)
}

// BodyHTML returns the sanitized inner HTML of the <body> element. Image
// paths are rewritten to ZIP-root-relative paths; scripts, styles, other
// active content and event handler attributes are removed.
func (c Chapter) BodyHTML() (string, error) {
	data, err := c.RawContent()
	if err != nil {
		return "", err
	}
	out, err := SanitizeHTML(data, c.Href, bodyHTMLOptions)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Document parses the chapter into a ContentDocument. Book.ContentDocument
// returns the same result cached.
func (c Chapter) Document() (*ContentDocument, error) {
	data, err := c.RawContent()
	if err != nil {
		return nil, err
	}
	return ParseContentDocument(c.ID, c.Href, c.Index, data)
}
