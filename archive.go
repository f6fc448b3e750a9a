package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
)

// defaultMaxEntrySize is the maximum allowed decompressed size for a single
// ZIP entry. This guards against zip bomb attacks.
const defaultMaxEntrySize int64 = 256 * 1024 * 1024

// Archive gives byte access to the entries of an ePub container by their
// ZIP-internal path. It is the only component that performs I/O.
type Archive struct {
	zip      *zip.Reader
	exact    map[string]*zip.File // exact-match index
	lower    map[string]*zip.File // lowercase index
	closer   io.Closer            // non-nil only when created via OpenArchive
	maxEntry int64
}

// OpenArchive opens the ZIP file at path. The caller must call Close.
func OpenArchive(path string) (*Archive, error) {
	zrc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("epub: open %s: %w", path, err)
	}
	a := newArchive(&zrc.Reader)
	a.closer = zrc
	return a, nil
}

// NewArchive reads a ZIP container from r. The caller is responsible for
// the lifetime of r.
func NewArchive(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("epub: open zip: %w", err)
	}
	return newArchive(zr), nil
}

func newArchive(zr *zip.Reader) *Archive {
	a := &Archive{
		zip:      zr,
		exact:    make(map[string]*zip.File, len(zr.File)),
		lower:    make(map[string]*zip.File, len(zr.File)),
		maxEntry: defaultMaxEntrySize,
	}
	for _, f := range zr.File {
		if _, exists := a.exact[f.Name]; !exists {
			a.exact[f.Name] = f // first match wins for exact
		}
		lower := strings.ToLower(f.Name)
		if _, exists := a.lower[lower]; !exists {
			a.lower[lower] = f // first match wins for case-insensitive
		}
	}
	return a
}

// Close releases the underlying file when the Archive was created by
// OpenArchive. Close is idempotent.
func (a *Archive) Close() error {
	if a.closer != nil {
		err := a.closer.Close()
		a.closer = nil
		return err
	}
	return nil
}

// Names returns the entry names in archive order.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.zip.File))
	for _, f := range a.zip.File {
		names = append(names, f.Name)
	}
	return names
}

// Has reports whether an entry exists at name (case-insensitive fallback).
func (a *Archive) Has(name string) bool {
	return a.find(name) != nil
}

// ReadFile returns the decompressed bytes of the entry at name. The lookup
// tries an exact match first, then a case-insensitive one.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	f := a.find(name)
	if f == nil {
		return nil, fmt.Errorf("epub: %s: %w", name, ErrFileNotFound)
	}
	return readZipFileWithLimit(f, a.maxEntry)
}

func (a *Archive) find(name string) *zip.File {
	if f, ok := a.exact[name]; ok {
		return f
	}
	if f, ok := a.lower[strings.ToLower(name)]; ok {
		return f
	}
	return nil
}

// first returns the first entry in archive order, or nil.
func (a *Archive) first() *zip.File {
	if len(a.zip.File) == 0 {
		return nil
	}
	return a.zip.File[0]
}

// findBySuffix returns the first entry whose lowercased name ends in suffix.
func (a *Archive) findBySuffix(suffix string) string {
	for _, f := range a.zip.File {
		if strings.HasSuffix(strings.ToLower(f.Name), suffix) {
			return f.Name
		}
	}
	return ""
}

// isSafePath checks whether p is a safe ZIP-internal path that does not
// escape the archive root via path traversal (e.g., "../../../etc/passwd").
func isSafePath(p string) bool {
	if strings.HasPrefix(p, "/") {
		return false
	}
	_, err := NormalizePathStrict(p)
	return err == nil
}

// readZipFileWithLimit reads the full contents of a ZIP entry, enforcing
// limit to guard against zip bombs and rejecting unsafe entry paths.
func readZipFileWithLimit(f *zip.File, limit int64) ([]byte, error) {
	if !isSafePath(f.Name) {
		return nil, fmt.Errorf("epub: unsafe zip entry path: %s", f.Name)
	}

	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("epub: zip entry %s too large: %d bytes (max %d)", f.Name, f.UncompressedSize64, limit)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("epub: open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	// Read up to limit+1 to detect if the actual decompressed data
	// exceeds the limit (the declared size might be wrong/forged).
	lr := io.LimitReader(rc, limit+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("epub: read zip entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("epub: zip entry %s decompressed size exceeds limit (%d bytes)", f.Name, limit)
	}

	return data, nil
}
