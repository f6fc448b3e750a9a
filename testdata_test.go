package epub

import (
	"archive/zip"
	"bytes"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
)

const validContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const sampleOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="bookid">urn:uuid:0c6e3e38-5f0a-4d5c-9d1e-5f6b1c2a7e01</dc:identifier>
    <dc:title>Sample Book</dc:title>
    <dc:creator id="author">Jane Doe</dc:creator>
    <meta refines="#author" property="role" scheme="marc:relators">aut</meta>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="chap01" href="Text/chapter01.xhtml" media-type="application/xhtml+xml"/>
    <item id="chap02" href="Text/chapter02.xhtml" media-type="application/xhtml+xml"/>
    <item id="chap03" href="Text/chapter03.xhtml" media-type="application/xhtml+xml"/>
    <item id="cover-img" href="Images/cover.png" media-type="image/png" properties="cover-image"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="chap01" id="ref-chap01"/>
    <itemref idref="chap02"/>
    <itemref idref="chap03" linear="no"/>
  </spine>
</package>`

const sampleNav = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Contents</title></head>
<body>
<nav epub:type="toc"><ol>
  <li><a href="Text/chapter01.xhtml">Chapter One</a>
    <ol><li><a href="Text/chapter01.xhtml#c1">Opening</a></li></ol>
  </li>
  <li><a href="Text/chapter02.xhtml">Chapter Two</a></li>
  <li><span>Appendix</span>
    <ol><li><a href="Text/chapter03.xhtml">Notes</a></li></ol>
  </li>
</ol></nav>
<nav epub:type="landmarks"><ol>
  <li><a epub:type="bodymatter" href="Text/chapter01.xhtml">Start of Content</a></li>
</ol></nav>
<nav epub:type="page-list"><ol>
  <li><a href="Text/chapter02.xhtml#p2">2</a></li>
</ol></nav>
</body>
</html>`

const sampleNCX = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="np1" playOrder="1">
      <navLabel><text>NCX Chapter One</text></navLabel>
      <content src="Text/chapter01.xhtml"/>
    </navPoint>
  </navMap>
</ncx>`

const sampleChapter01 = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>Chapter One</title>
  <style>p { color: red; }</style>
</head>
<body>
  <section id="c1">
    <h1>Chapter One</h1>
    <p>It was a bright cold day in April, and the whale was <!-- note -->striking thirteen.</p>
    <div class="spacer"/>
    <p>A whale-book and two books.</p>
  </section>
</body>
</html>`

const sampleChapter02 = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Chapter Two</title></head>
<body>
<p>The whale surfaced near the ship.</p>
<p id="p2">Second <em>emphatic</em> paragraph about the Whale.</p>
</body>
</html>`

const sampleChapter03 = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Notes</title></head>
<body><p>A note on the WHALE. <img src="../Images/cover.png" alt="cover"/></p></body>
</html>`

// samplePNG returns a w×h PNG image.
func samplePNG(w, h int) string {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		panic(err)
	}
	return buf.String()
}

// sampleEPubFiles returns a small three-chapter ePub 3 book with a nav
// document, an NCX fallback and a cover image.
func sampleEPubFiles() map[string]string {
	return map[string]string{
		"mimetype":                   expectedMimetype,
		"META-INF/container.xml":     validContainerXML,
		"OEBPS/content.opf":          sampleOPF,
		"OEBPS/nav.xhtml":            sampleNav,
		"OEBPS/toc.ncx":              sampleNCX,
		"OEBPS/Text/chapter01.xhtml": sampleChapter01,
		"OEBPS/Text/chapter02.xhtml": sampleChapter02,
		"OEBPS/Text/chapter03.xhtml": sampleChapter03,
		"OEBPS/Images/cover.png":     samplePNG(3, 2),
	}
}

// buildTestZipBytes creates an in-memory ZIP archive from the provided files
// map (path → content). The mimetype entry, when present, is written first
// and uncompressed; the remaining entries follow in sorted order.
func buildTestZipBytes(t testing.TB, files map[string]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	write := func(name, content string, method uint16) {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			t.Fatalf("buildTestZipBytes: create %s: %v", name, err)
		}
		if _, err := io.WriteString(fw, content); err != nil {
			t.Fatalf("buildTestZipBytes: write %s: %v", name, err)
		}
	}

	if mt, ok := files["mimetype"]; ok {
		write("mimetype", mt, zip.Store)
	}
	names := make([]string, 0, len(files))
	for name := range files {
		if name != "mimetype" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		write(name, files[name], zip.Deflate)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("buildTestZipBytes: close writer: %v", err)
	}
	return buf.Bytes()
}

// buildTestArchive returns an Archive over an in-memory ZIP of files.
func buildTestArchive(t testing.TB, files map[string]string) *Archive {
	t.Helper()
	data := buildTestZipBytes(t, files)
	a, err := NewArchive(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("buildTestArchive: %v", err)
	}
	return a
}

// buildTestEPubFile writes an ePub (ZIP) archive to a temporary file and
// returns the file path. This variant is useful for testing Open.
func buildTestEPubFile(t testing.TB, files map[string]string) string {
	t.Helper()
	fp := filepath.Join(t.TempDir(), "test.epub")
	if err := os.WriteFile(fp, buildTestZipBytes(t, files), 0o644); err != nil {
		t.Fatalf("buildTestEPubFile: write file: %v", err)
	}
	return fp
}

// openTestBook opens files as a Book through NewReader.
func openTestBook(t testing.TB, files map[string]string, opts ...Option) *Book {
	t.Helper()
	data := buildTestZipBytes(t, files)
	book, err := NewReader(bytes.NewReader(data), int64(len(data)), opts...)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	t.Cleanup(func() { book.Close() })
	return book
}

// testOPF assembles a package document from its parts.
func testOPF(version, metadata, manifest, spine string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/" version="` + version + `" unique-identifier="bookid">
<metadata>` + metadata + `</metadata>
<manifest>` + manifest + `</manifest>
<spine>` + spine + `</spine>
</package>`
}

// minimalMetadata is the smallest metadata block ParsePackage accepts.
const minimalMetadata = `<dc:identifier id="bookid">id-1</dc:identifier><dc:title>T</dc:title><dc:language>en</dc:language>`

// diffText returns a unified diff of want and got for failure messages.
func diffText(want, got string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	})
	if err != nil {
		return err.Error()
	}
	return diff
}
