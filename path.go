package epub

import (
	"net/url"
	"strings"
)

// NormalizePath cleans a ZIP-internal path: empty and "." segments are
// dropped and ".." removes the preceding segment. A ".." at the archive
// root is ignored. The result never starts with "/" and is "" for the root.
//
//	NormalizePath("OEBPS/Text/../Images/cover.jpg") == "OEBPS/Images/cover.jpg"
func NormalizePath(p string) string {
	out, _ := normalizePath(p, false)
	return out
}

// NormalizePathStrict is like NormalizePath but reports ErrPathEscapesRoot
// when a ".." segment would climb above the archive root.
func NormalizePathStrict(p string) (string, error) {
	return normalizePath(p, true)
}

func normalizePath(p string, strict bool) (string, error) {
	segs := strings.Split(p, "/")
	stack := make([]string, 0, len(segs))
	for _, s := range segs {
		switch s {
		case "", ".":
		case "..":
			if len(stack) == 0 {
				if strict {
					return "", packageError(ErrPathEscapesRoot, "%q", p)
				}
				continue
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, s)
		}
	}
	return strings.Join(stack, "/"), nil
}

// ResolveHref resolves ref against the document at basePath. A ref starting
// with "/" is taken relative to the archive root; anything else is joined
// with the directory of basePath. The result is normalized.
// Fragments are not interpreted; split them off with RemoveFragment first.
func ResolveHref(basePath, ref string) string {
	out, _ := resolveHref(basePath, ref, false)
	return out
}

// ResolveHrefStrict is like ResolveHref but reports ErrPathEscapesRoot
// for references that climb above the archive root.
func ResolveHrefStrict(basePath, ref string) (string, error) {
	return resolveHref(basePath, ref, true)
}

func resolveHref(basePath, ref string, strict bool) (string, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "/") {
		return normalizePath(ref[1:], strict)
	}
	dir := PathDir(basePath)
	if dir == "." {
		return normalizePath(ref, strict)
	}
	return normalizePath(dir+"/"+ref, strict)
}

// PathDir returns the directory part of a normalized path, or "." for a
// root-level file.
func PathDir(p string) string {
	p = NormalizePath(p)
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return "."
}

// PathBase returns the last segment of the normalized path.
func PathBase(p string) string {
	p = NormalizePath(p)
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// PathExt returns the file name extension of the path, including the dot,
// or "" when the last segment has none.
func PathExt(p string) string {
	base := PathBase(p)
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		return base[i:]
	}
	return ""
}

// RemoveFragment returns href without its fragment (everything from the
// first "#").
func RemoveFragment(href string) string {
	if idx := strings.IndexByte(href, '#'); idx >= 0 {
		return href[:idx]
	}
	return href
}

// Fragment returns the fragment of href (without "#"). ok is false when
// href has no "#".
func Fragment(href string) (frag string, ok bool) {
	if idx := strings.IndexByte(href, '#'); idx >= 0 {
		return href[idx+1:], true
	}
	return "", false
}

// URLDecode percent-decodes s. A "+" is left alone because hrefs are not
// form data. Malformed escapes leave s unchanged.
func URLDecode(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	return s
}

// stripURLControls removes what a browser ignores when it parses a URL:
// C0 controls and spaces at either end, and ASCII tab and newline anywhere.
func stripURLControls(s string) string {
	s = strings.TrimFunc(s, func(r rune) bool { return r <= ' ' })
	if !strings.ContainsAny(s, "\t\n\r") {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, s)
}

// hasURIScheme reports whether s starts with a URI scheme like "http:" or
// "javascript:".
func hasURIScheme(s string) bool {
	s = stripURLControls(s)
	if s == "" {
		return false
	}
	// RFC 3986: URI scheme must start with a letter.
	if !((s[0] >= 'A' && s[0] <= 'Z') || (s[0] >= 'a' && s[0] <= 'z')) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ':' {
			return i > 1
		}
		if !(c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) {
			return false
		}
	}
	return false
}

// resolveContentRef resolves an href found inside the document at basePath
// into a ZIP-internal path, keeping any fragment. Remote references and
// references escaping the root yield "".
func resolveContentRef(basePath, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || hasURIScheme(href) {
		return ""
	}
	frag, hasFrag := Fragment(href)
	target := URLDecode(RemoveFragment(href))
	var resolved string
	if target == "" {
		resolved = NormalizePath(basePath)
	} else {
		var err error
		if resolved, err = ResolveHrefStrict(basePath, target); err != nil {
			return ""
		}
	}
	if hasFrag {
		return resolved + "#" + frag
	}
	return resolved
}
