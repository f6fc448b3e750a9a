package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testBook = map[string]string{
	"mimetype": "application/epub+zip",
	"META-INF/container.xml": `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
<rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`,
	"OEBPS/content.opf": `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/" version="3.0" unique-identifier="id">
<metadata><dc:identifier id="id">urn:isbn:9780000000000</dc:identifier><dc:title>CLI Book</dc:title><dc:creator>Ann Author</dc:creator><dc:language>en</dc:language></metadata>
<manifest>
<item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
<item id="a" href="a.xhtml" media-type="application/xhtml+xml"/>
<item id="b" href="b.xhtml" media-type="application/xhtml+xml"/>
</manifest>
<spine><itemref idref="a"/><itemref idref="b"/></spine>
</package>`,
	"OEBPS/nav.xhtml": `<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops"><head><title>toc</title></head><body>
<nav epub:type="toc"><ol><li><a href="a.xhtml">Chapter A</a></li><li><a href="b.xhtml">Chapter B</a></li></ol></nav>
</body></html>`,
	"OEBPS/a.xhtml": `<html xmlns="http://www.w3.org/1999/xhtml"><head><title>A</title></head><body><p>The whale.</p></body></html>`,
	"OEBPS/b.xhtml": `<html xmlns="http://www.w3.org/1999/xhtml"><head><title>B</title></head><body><p>Another whale and a WHALE.</p></body></html>`,
}

func writeTestBook(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := []string{"mimetype", "META-INF/container.xml", "OEBPS/content.opf", "OEBPS/nav.xhtml", "OEBPS/a.xhtml", "OEBPS/b.xhtml"}
	for _, name := range names {
		method := zip.Deflate
		if name == "mimetype" {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(testBook[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	fp := filepath.Join(t.TempDir(), "book.epub")
	if err := os.WriteFile(fp, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return fp
}

func runCLI(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRun_Commands(t *testing.T) {
	book := writeTestBook(t)
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"info", []string{"info", book}, []string{"Title:      CLI Book\n", "Author:     Ann Author\n", "Spine:      2 items\n", "Encryption: none\n"}},
		{"toc", []string{"toc", "--spine", book}, []string{"CLI Book\n", "Chapter A [0-1)", "Chapter B [1-2)"}},
		{"text one chapter", []string{"text", "-c", "1", book}, []string{"## Chapter B\n\nAnother whale and a WHALE.\n\n"}},
		{"search", []string{"search", book, "whale"}, []string{"0 Chapter A @4: The [whale].\n", "1 Chapter B @20: Another whale and a [WHALE].\n"}},
		{"search count", []string{"search", "--count", book, "whale"}, []string{"3\n"}},
		{"search case-sensitive", []string{"search", "-c", "--count", book, "WHALE"}, []string{"1\n"}},
		{"search regexp", []string{"search", "-e", `wh\w+`, "--count", book}, []string{"3\n"}},
		{"search cfi", []string{"search", "--cfi", "--chapters", "0", book, "whale"}, []string{"    epubcfi(/6/2!/4/2/1:4)\n"}},
		{"cfi generate", []string{"cfi", "--spine", "1", "--offset", "8", book}, []string{"epubcfi(/6/4!/4/2/1:8)\n"}},
		{"cfi resolve", []string{"cfi", book, "epubcfi(/6/4!/4/2/1:8)"}, []string{"start: spine 1 OEBPS/b.xhtml", "text offset 8\n"}},
		{"encryption", []string{"encryption", book}, []string{"Type:          none\n", "DRM:           false\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := runCLI(tt.args...)
			if code != 0 {
				t.Fatalf("run(%v) = %d, stderr:\n%s", tt.args, code, stderr)
			}
			for _, w := range tt.want {
				if !strings.Contains(stdout, w) {
					t.Errorf("run(%v) output:\n%s\nwant it to contain %q", tt.args, stdout, w)
				}
			}
		})
	}
}

func TestRun_Errors(t *testing.T) {
	book := writeTestBook(t)
	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantStderr string
	}{
		{"no command", nil, 2, "Usage: epubkit"},
		{"unknown command", []string{"frobnicate"}, 2, `unknown command "frobnicate"`},
		{"missing book", []string{"info"}, 2, "Usage: epubkit info"},
		{"extra argument", []string{"info", book, "x"}, 2, "Usage: epubkit info"},
		{"bad flag", []string{"toc", "--nope", book}, 2, "unknown flag"},
		{"search without query", []string{"search", book}, 2, "Usage: epubkit search"},
		{"missing file", []string{"info", filepath.Join(t.TempDir(), "none.epub")}, 1, "epubkit info:"},
		{"bad cfi", []string{"cfi", book, "epubcfi(/6/"}, 1, "invalid CFI"},
		{"bad pattern", []string{"search", "-e", "(", book}, 1, "epubkit search:"},
		{"help", []string{"--help"}, 0, "Commands:"},
		{"command help", []string{"text", "--help"}, 0, "--skip-license"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(tt.args...)
			if code != tt.wantCode {
				t.Errorf("run(%v) = %d, want %d; stderr:\n%s", tt.args, code, tt.wantCode, stderr)
			}
			if !strings.Contains(stderr, tt.wantStderr) {
				t.Errorf("run(%v) stderr:\n%s\nwant it to contain %q", tt.args, stderr, tt.wantStderr)
			}
		})
	}
}

func TestEqualLocation(t *testing.T) {
	book := writeTestBook(t)
	code, stdout, _ := runCLI("cfi", book, "epubcfi(/6/4!/4/2,/1:0,/1:7)")
	if code != 0 {
		t.Fatalf("run() = %d", code)
	}
	if !strings.Contains(stdout, "start: ") || !strings.Contains(stdout, "end: ") || !strings.Contains(stdout, "text offset 7\n") {
		t.Errorf("range output = %q", stdout)
	}
}
