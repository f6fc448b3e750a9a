package epub

import (
	"strings"
	"testing"
)

func wrapBody(body string) string {
	return `<html xmlns="http://www.w3.org/1999/xhtml"><head><title>t</title></head><body>` + body + `</body></html>`
}

func TestSanitizeHTML_BodyOnly(t *testing.T) {
	tests := []struct {
		name string
		body string
		opts SanitizeOptions
		want string
	}{
		{
			name: "script and handlers",
			body: `<p onclick="x()" class="c">Hi<script>bad()</script></p>`,
			want: `<p class="c">Hi</p>`,
		},
		{
			name: "javascript link",
			body: `<a href="javascript:alert(1)">x</a><a href="https://example.com/">y</a><a href="#n2">z</a>`,
			want: `<a>x</a><a href="https://example.com/">y</a><a href="#n2">z</a>`,
		},
		{
			name: "javascript split by tab and newline",
			body: `<a href="java&#x09;script:alert(1)">x</a><img src="java&#10;script:alert(2)"/><a href="&#x0D;javascript:alert(3)">y</a>`,
			want: `<a>x</a><img/><a>y</a>`,
		},
		{
			name: "remote image blocked",
			body: `<img src="http://tracker.example/t.png" alt="t"/>`,
			want: `<img alt="t"/>`,
		},
		{
			name: "remote image allowed",
			body: `<img src="http://tracker.example/t.png" alt="t"/>`,
			opts: SanitizeOptions{AllowRemote: true},
			want: `<img src="http://tracker.example/t.png" alt="t"/>`,
		},
		{
			name: "data uris",
			body: `<img src="data:image/png;base64,AAAA"/><img src="data:text/html,x"/>`,
			want: `<img src="data:image/png;base64,AAAA"/><img/>`,
		},
		{
			name: "embedded frames",
			body: `<iframe src="a.html"></iframe><object data="a.swf"></object><p>after</p>`,
			want: `<p>after</p>`,
		},
		{
			name: "styles kept",
			body: `<p style="color:red">x</p>`,
			want: `<p style="color:red">x</p>`,
		},
		{
			name: "styles stripped",
			body: `<style>p{}</style><p style="color:red">x</p>`,
			opts: SanitizeOptions{StripStyles: true},
			want: `<p>x</p>`,
		},
		{
			name: "images rewritten",
			body: `<img src="../Images/a%20b.png"/><a href="ch2.xhtml#x">next</a>`,
			opts: SanitizeOptions{RewriteImages: true},
			want: `<img src="OEBPS/Images/a b.png"/><a href="ch2.xhtml#x">next</a>`,
		},
		{
			name: "self-closing div",
			body: `<div class="spacer"/><p>after</p>`,
			want: `<div class="spacer"></div><p>after</p>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.BodyOnly = true
			got, err := SanitizeHTML([]byte(wrapBody(tt.body)), "OEBPS/Text/ch1.xhtml", tt.opts)
			if err != nil {
				t.Fatalf("SanitizeHTML() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("SanitizeHTML() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeHTML_Document(t *testing.T) {
	raw := `<html><head>
<meta http-equiv="Refresh" content="0;url=http://evil.example/"/>
<meta charset="utf-8"/>
<link rel="stylesheet" href="https://cdn.example/x.css"/>
<link rel="stylesheet" href="../Styles/local.css"/>
<link rel="stylesheet" href="javascript:x"/>
<base href="http://evil.example/"/>
<style>p { color: red; }</style>
<title>t</title>
</head><body><p>x</p></body></html>`

	got, err := SanitizeHTML([]byte(raw), "OEBPS/Text/ch1.xhtml", SanitizeOptions{})
	if err != nil {
		t.Fatalf("SanitizeHTML() error = %v", err)
	}
	out := string(got)
	for _, gone := range []string{"Refresh", "cdn.example", "javascript:", "<base"} {
		if strings.Contains(out, gone) {
			t.Errorf("output still contains %q:\n%s", gone, out)
		}
	}
	for _, kept := range []string{`<meta charset="utf-8"/>`, "../Styles/local.css", "<style>", "<title>t</title>", "<p>x</p>"} {
		if !strings.Contains(out, kept) {
			t.Errorf("output lost %q:\n%s", kept, out)
		}
	}
}

func TestSanitizeHTML_SVGImage(t *testing.T) {
	body := `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink"><image xlink:href="../Images/cover.png"/></svg>`
	got, err := SanitizeHTML([]byte(wrapBody(body)), "OEBPS/Text/ch1.xhtml", SanitizeOptions{BodyOnly: true, RewriteImages: true})
	if err != nil {
		t.Fatalf("SanitizeHTML() error = %v", err)
	}
	if !strings.Contains(string(got), "OEBPS/Images/cover.png") {
		t.Errorf("SanitizeHTML() = %s, want the rewritten image path", got)
	}
}

func TestIsSafeURI(t *testing.T) {
	tests := []struct {
		uri  string
		want bool
	}{
		{"", true},
		{"chapter2.xhtml", true},
		{"#note", true},
		{"../Images/a.png", true},
		{"http://example.com", true},
		{"HTTPS://example.com", true},
		{"mailto:a@example.com", true},
		{"data:image/png;base64,AA", true},
		{"javascript:alert(1)", false},
		{" JavaScript:alert(1)", false},
		{"vbscript:x", false},
		{"data:text/html,x", false},
		{"file:///etc/passwd", false},
		{"java\tscript:alert(1)", false},
		{"java\nscript:alert(1)", false},
		{"\x01javascript:alert(1)", false},
		{"jav\x00ascript:alert(1)", false},
		{"Images/a\x0b.png", false},
		{"ht\ttp://example.com", true},
	}
	for _, tt := range tests {
		if got := isSafeURI(tt.uri); got != tt.want {
			t.Errorf("isSafeURI(%q) = %t, want %t", tt.uri, got, tt.want)
		}
	}
}

func TestIsRemoteRef(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"http://example.com/a.png", true},
		{"//cdn.example/a.png", true},
		{"../a.png", false},
		{"data:image/png;base64,AA", false},
		{"mailto:a@example.com", false},
	}
	for _, tt := range tests {
		if got := isRemoteRef(tt.ref); got != tt.want {
			t.Errorf("isRemoteRef(%q) = %t, want %t", tt.ref, got, tt.want)
		}
	}
}
