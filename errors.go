package epub

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the epub package.
var (
	// ErrDRMProtected indicates the ePub (or the requested resource) is
	// protected by DRM (e.g., Adobe ADEPT, Apple FairPlay, Readium LCP).
	ErrDRMProtected = errors.New("epub: file is DRM protected")

	// ErrInvalidEPub indicates the file is not a valid ePub. Every
	// structural package error also matches this sentinel.
	ErrInvalidEPub = errors.New("epub: invalid ePub file")

	// ErrInvalidChapter indicates a Chapter handle is invalid
	// (for example, a zero-value Chapter without an associated Book).
	ErrInvalidChapter = errors.New("epub: invalid chapter handle")

	// ErrFileNotFound indicates the requested file does not exist
	// in the ePub archive.
	ErrFileNotFound = errors.New("epub: file not found in archive")

	// ErrNoCover indicates no cover image could be detected
	// using any of the supported strategies.
	ErrNoCover = errors.New("epub: no cover image found")

	// ErrMissingMetadata indicates the package has no <metadata> element
	// or lacks a required dc:title or dc:identifier.
	ErrMissingMetadata = errors.New("epub: missing required metadata")

	// ErrMissingManifest indicates the package has no <manifest> element.
	ErrMissingManifest = errors.New("epub: missing manifest")

	// ErrMissingSpine indicates the package has no <spine> element.
	ErrMissingSpine = errors.New("epub: missing spine")

	// ErrUnresolvedSpineRef indicates a spine itemref whose idref names no
	// manifest item.
	ErrUnresolvedSpineRef = errors.New("epub: unresolved spine reference")

	// ErrPathEscapesRoot indicates a path whose ".." segments climb above
	// the archive root.
	ErrPathEscapesRoot = errors.New("epub: path escapes archive root")

	// ErrInvalidCFI indicates a string that does not follow the EPUB CFI grammar.
	ErrInvalidCFI = errors.New("epub: invalid CFI")

	// ErrCFINotFound indicates a syntactically valid CFI that does not
	// address anything in this publication.
	ErrCFINotFound = errors.New("epub: CFI does not resolve")

	// ErrSpineIndex indicates a spine index outside the spine.
	ErrSpineIndex = errors.New("epub: spine index out of range")
)

// PackageError reports a structural problem in the package document.
// It matches both its Kind sentinel and ErrInvalidEPub with errors.Is.
type PackageError struct {
	// Kind is one of ErrMissingMetadata, ErrMissingManifest, ErrMissingSpine,
	// ErrUnresolvedSpineRef or ErrPathEscapesRoot.
	Kind error

	// Detail describes the offending element or value.
	Detail string
}

func (e *PackageError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *PackageError) Unwrap() []error {
	return []error{e.Kind, ErrInvalidEPub}
}

func packageError(kind error, format string, args ...any) error {
	return &PackageError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// CFIError reports a CFI syntax error at a byte position of the input.
type CFIError struct {
	Input  string
	Pos    int
	Reason string
}

func (e *CFIError) Error() string {
	return fmt.Sprintf("epub: invalid CFI %q at offset %d: %s", e.Input, e.Pos, e.Reason)
}

func (e *CFIError) Unwrap() error { return ErrInvalidCFI }
