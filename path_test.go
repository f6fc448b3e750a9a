package epub

import (
	"errors"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"OEBPS/Text/../Images/cover.jpg", "OEBPS/Images/cover.jpg"},
		{"OEBPS/./Text/chapter1.xhtml", "OEBPS/Text/chapter1.xhtml"},
		{"/OEBPS//Text/a.xhtml", "OEBPS/Text/a.xhtml"},
		{"../a.xhtml", "a.xhtml"},
		{"a/b/../../..", ""},
		{"", ""},
		{".", ""},
		{"a/b/", "a/b"},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizePath_Idempotent(t *testing.T) {
	refs := [][2]string{
		{"OEBPS/content.opf", "Text/../Images/./a.png"},
		{"OEBPS/Text/ch1.xhtml", "../../../x.css"},
		{"content.opf", "/abs/path.xhtml"},
		{"a/b/c.xhtml", "d//e/./f.xhtml"},
	}
	for _, r := range refs {
		once := NormalizePath(ResolveHref(r[0], r[1]))
		if twice := NormalizePath(once); twice != once {
			t.Errorf("NormalizePath(%q) = %q, want it unchanged", once, twice)
		}
	}
}

func TestNormalizePathStrict(t *testing.T) {
	if got, err := NormalizePathStrict("OEBPS/../a.xhtml"); err != nil || got != "a.xhtml" {
		t.Errorf("NormalizePathStrict() = %q, %v; want %q, nil", got, err, "a.xhtml")
	}

	_, err := NormalizePathStrict("OEBPS/../../secret")
	if !errors.Is(err, ErrPathEscapesRoot) {
		t.Errorf("error = %v, want ErrPathEscapesRoot", err)
	}
	if !errors.Is(err, ErrInvalidEPub) {
		t.Errorf("error = %v, want it to match ErrInvalidEPub", err)
	}
}

func TestResolveHref(t *testing.T) {
	tests := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{"same directory", "OEBPS/content.opf", "Text/ch1.xhtml", "OEBPS/Text/ch1.xhtml"},
		{"parent directory", "OEBPS/Text/ch1.xhtml", "../Images/a.png", "OEBPS/Images/a.png"},
		{"root relative", "OEBPS/content.opf", "/Images/a.png", "Images/a.png"},
		{"root level base", "content.opf", "ch1.xhtml", "ch1.xhtml"},
		{"surrounding space", "OEBPS/content.opf", "  ch1.xhtml ", "OEBPS/ch1.xhtml"},
		{"escape clamps at root", "OEBPS/content.opf", "../../x.txt", "x.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveHref(tt.base, tt.ref); got != tt.want {
				t.Errorf("ResolveHref(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
			}
		})
	}
}

func TestResolveHrefStrict_Escape(t *testing.T) {
	if _, err := ResolveHrefStrict("OEBPS/content.opf", "../../x.txt"); !errors.Is(err, ErrPathEscapesRoot) {
		t.Errorf("error = %v, want ErrPathEscapesRoot", err)
	}
}

func TestPathParts(t *testing.T) {
	tests := []struct {
		path, dir, base, ext string
	}{
		{"content.opf", ".", "content.opf", ".opf"},
		{"OEBPS/Text/a.xhtml", "OEBPS/Text", "a.xhtml", ".xhtml"},
		{"OEBPS/./b/../c.tar.gz", "OEBPS", "c.tar.gz", ".gz"},
		{"docs/README", "docs", "README", ""},
	}
	for _, tt := range tests {
		if got := PathDir(tt.path); got != tt.dir {
			t.Errorf("PathDir(%q) = %q, want %q", tt.path, got, tt.dir)
		}
		if got := PathBase(tt.path); got != tt.base {
			t.Errorf("PathBase(%q) = %q, want %q", tt.path, got, tt.base)
		}
		if got := PathExt(tt.path); got != tt.ext {
			t.Errorf("PathExt(%q) = %q, want %q", tt.path, got, tt.ext)
		}
	}
}

func TestFragment(t *testing.T) {
	tests := []struct {
		href    string
		path    string
		frag    string
		hasFrag bool
	}{
		{"a.xhtml#sec1", "a.xhtml", "sec1", true},
		{"a.xhtml", "a.xhtml", "", false},
		{"a.xhtml#", "a.xhtml", "", true},
		{"#top", "", "top", true},
		{"a.xhtml#x#y", "a.xhtml", "x#y", true},
	}
	for _, tt := range tests {
		if got := RemoveFragment(tt.href); got != tt.path {
			t.Errorf("RemoveFragment(%q) = %q, want %q", tt.href, got, tt.path)
		}
		frag, ok := Fragment(tt.href)
		if frag != tt.frag || ok != tt.hasFrag {
			t.Errorf("Fragment(%q) = %q, %t; want %q, %t", tt.href, frag, ok, tt.frag, tt.hasFrag)
		}
	}
}

func TestURLDecode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"My%20Book.xhtml", "My Book.xhtml"},
		{"a+b.xhtml", "a+b.xhtml"},
		{"caf%C3%A9.xhtml", "café.xhtml"},
		{"bad%zz.xhtml", "bad%zz.xhtml"},
		{"plain.xhtml", "plain.xhtml"},
	}
	for _, tt := range tests {
		if got := URLDecode(tt.in); got != tt.want {
			t.Errorf("URLDecode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHasURIScheme(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"http://example.com/a.png", true},
		{"javascript:alert(1)", true},
		{"mailto:someone@example.com", true},
		{"data:image/png;base64,AAAA", true},
		{"Text/a.xhtml", false},
		{"#frag", false},
		{"c:/windows", false},
		{"1http://x", false},
		{"", false},
		{"java\tscript:x", true},
		{" \njavascript:x", true},
	}
	for _, tt := range tests {
		if got := hasURIScheme(tt.in); got != tt.want {
			t.Errorf("hasURIScheme(%q) = %t, want %t", tt.in, got, tt.want)
		}
	}
}

func TestResolveContentRef(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"OEBPS/Text/a.xhtml", "b.xhtml#s1", "OEBPS/Text/b.xhtml#s1"},
		{"OEBPS/Text/a.xhtml", "#s2", "OEBPS/Text/a.xhtml#s2"},
		{"OEBPS/Text/a.xhtml", "../Images/My%20Pic.png", "OEBPS/Images/My Pic.png"},
		{"OEBPS/Text/a.xhtml", "http://example.com/x.png", ""},
		{"OEBPS/a.xhtml", "../../x.png", ""},
		{"OEBPS/a.xhtml", "  ", ""},
	}
	for _, tt := range tests {
		if got := resolveContentRef(tt.base, tt.href); got != tt.want {
			t.Errorf("resolveContentRef(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}
}
