package epub

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"slices"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Cover locates the cover image. The first of these that yields a local
// image wins:
//
//   - the manifest item with the "cover-image" property
//   - the item named by <meta name="cover">, or the first image of that page
//   - the first image of the guide's cover reference
//   - an image item whose id or href mentions "cover"
//   - the first image of the first spine document
//
// ErrNoCover is returned when none does.
func (b *Book) Cover() (CoverImage, error) {
	strategies := []func() (ManifestItem, bool){
		b.coverFromManifestProperties,
		b.coverFromMetaCover,
		b.coverFromGuide,
		b.coverFromManifestHeuristic,
		b.coverFromFirstSpine,
	}
	for _, find := range strategies {
		if item, ok := find(); ok {
			return b.loadCoverImage(item)
		}
	}
	return CoverImage{}, ErrNoCover
}

// Dimensions decodes the image header and returns its size in pixels.
// JPEG, PNG, GIF, WebP and BMP are recognised.
func (c CoverImage) Dimensions() (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(c.Data))
	if err != nil {
		return 0, 0, fmt.Errorf("epub: decode cover %s: %w", c.Path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// coverFromManifestProperties returns the first manifest item, in document
// order, whose properties contain "cover-image" (ePub 3).
func (b *Book) coverFromManifestProperties() (ManifestItem, bool) {
	item, ok := b.pkg.Manifest.WithProperty("cover-image")
	if !ok || item.Remote {
		return ManifestItem{}, false
	}
	return item, true
}

// coverFromMetaCover follows the ePub 2 <meta name="cover" content="id">.
// Some producers point it at a cover page instead of the image.
func (b *Book) coverFromMetaCover() (ManifestItem, bool) {
	for _, m := range b.pkg.Metadata.Metas {
		if !strings.EqualFold(m.Name, "cover") || m.Content == "" {
			continue
		}
		item, ok := b.pkg.Manifest.ByID(m.Content)
		if !ok || item.Remote {
			continue
		}
		if isImageMediaType(item.MediaType) {
			return item, true
		}
		if img, ok := b.imageInDocument(item.Href); ok {
			return img, true
		}
	}
	return ManifestItem{}, false
}

// coverFromGuide searches the <guide> for a reference with type="cover"
// and resolves the first image of that page.
func (b *Book) coverFromGuide() (ManifestItem, bool) {
	for _, ref := range b.pkg.Guide {
		if !strings.EqualFold(ref.Type, "cover") {
			continue
		}
		if img, ok := b.imageInDocument(RemoveFragment(ref.Href)); ok {
			return img, true
		}
	}
	return ManifestItem{}, false
}

// coverFromManifestHeuristic picks the first image item whose id or href
// contains "cover" in any case.
func (b *Book) coverFromManifestHeuristic() (ManifestItem, bool) {
	for _, item := range b.pkg.Manifest.Items {
		if item.Remote || !isImageMediaType(item.MediaType) {
			continue
		}
		if strings.Contains(strings.ToLower(item.ID+" "+item.Href), "cover") {
			return item, true
		}
	}
	return ManifestItem{}, false
}

// coverFromFirstSpine resolves the first image of the first spine document.
func (b *Book) coverFromFirstSpine() (ManifestItem, bool) {
	if len(b.pkg.Spine.Items) == 0 || b.pkg.Spine.Items[0].Href == "" {
		return ManifestItem{}, false
	}
	return b.imageInDocument(b.pkg.Spine.Items[0].Href)
}

// imageInDocument reads the XHTML page at docPath and resolves its first
// image to a manifest item.
func (b *Book) imageInDocument(docPath string) (ManifestItem, bool) {
	data, err := b.readResource(docPath)
	if err != nil {
		return ManifestItem{}, false
	}
	imgPath := findFirstImageInHTML(data, docPath)
	if imgPath == "" {
		return ManifestItem{}, false
	}
	return b.resolveImageManifestItem(imgPath)
}

func (b *Book) loadCoverImage(item ManifestItem) (CoverImage, error) {
	data, err := b.readResource(item.Href)
	if err != nil {
		return CoverImage{}, err
	}
	return CoverImage{
		Path:      item.Href,
		MediaType: item.MediaType,
		Data:      data,
	}, nil
}

// resolveImageManifestItem resolves a ZIP-internal image path to an image
// manifest item, falling back to a case-insensitive comparison.
func (b *Book) resolveImageManifestItem(absPath string) (ManifestItem, bool) {
	if item, ok := b.pkg.Manifest.ByHref(absPath); ok && isImageMediaType(item.MediaType) {
		return item, true
	}
	for _, item := range b.pkg.Manifest.Items {
		if isImageMediaType(item.MediaType) && strings.EqualFold(item.Href, absPath) {
			return item, true
		}
	}
	return ManifestItem{}, false
}

// findFirstImageInHTML returns the resolved ZIP-internal path of the first
// <img src> or SVG <image href> in htmlData, or "" when there is none.
// basePath is the ZIP-internal path of the HTML file.
func findFirstImageInHTML(htmlData []byte, basePath string) string {
	z := html.NewTokenizer(bytes.NewReader(htmlData))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := z.TagName()
			if !hasAttr {
				continue
			}
			var keys []string
			switch atom.Lookup(tn) {
			case atom.Img:
				keys = []string{"src"}
			case atom.Image:
				keys = []string{"href", "xlink:href"}
			default:
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if slices.Contains(keys, string(key)) && len(val) > 0 {
					return RemoveFragment(resolveContentRef(basePath, string(val)))
				}
				if !more {
					break
				}
			}
		}
	}
}

// isImageMediaType reports whether mediaType is an image/* type.
func isImageMediaType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}

