package epub

import (
	"fmt"
	"io"
	"iter"
	"slices"

	"go.uber.org/zap"
)

// expectedMimetype is the content of the leading "mimetype" entry.
const expectedMimetype = "application/epub+zip"

// Book is an opened publication. Create one with Open or NewReader.
//
// A Book is not safe for concurrent use by multiple goroutines. The values
// it hands out (Package, ContentDocument, Searcher) are immutable and may
// be shared.
type Book struct {
	archive    *Archive
	pkg        *Package
	nav        Navigation
	encryption EncryptionInfo
	log        *zap.Logger

	chapters        []Chapter
	docs            map[int]*ContentDocument
	searcher        *Searcher
	warnings        []string
	licenseDetected bool
}

// Open reads the publication stored at path. Close the Book to release
// the file.
func Open(path string, opts ...Option) (*Book, error) {
	a, err := OpenArchive(path)
	if err != nil {
		return nil, err
	}
	b, err := newBook(a, opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	return b, nil
}

// NewReader reads a publication of size bytes from r. r must stay readable
// while the Book is in use; Close does not close it.
func NewReader(r io.ReaderAt, size int64, opts ...Option) (*Book, error) {
	a, err := NewArchive(r, size)
	if err != nil {
		return nil, err
	}
	return newBook(a, opts)
}

// newBook performs common initialisation: mimetype validation, container
// parsing, encryption detection, package and navigation parsing.
func newBook(a *Archive, opts []Option) (*Book, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	a.maxEntry = o.maxEntrySize

	b := &Book{
		archive: a,
		log:     o.log,
		docs:    make(map[int]*ContentDocument),
	}

	b.validateMimetype()

	opfPath, err := locatePackage(a)
	if err != nil {
		return nil, err
	}

	b.encryption = b.detectEncryption()
	if b.encryption.HasDRM() {
		if o.rejectDRM {
			return nil, fmt.Errorf("epub: %s: %w", b.encryption.Type, ErrDRMProtected)
		}
		b.warn(fmt.Sprintf("publication is protected by %s; %d resources are unreadable",
			b.encryption.Type, len(b.encryption.DRMEncryptedResources())))
	} else if b.encryption.IsOnlyFontObfuscation() {
		b.warn("font obfuscation detected; obfuscated fonts may not render correctly")
	}

	opfData, err := a.ReadFile(opfPath)
	if err != nil {
		return nil, fmt.Errorf("epub: read OPF file %s: %v: %w", opfPath, err, ErrInvalidEPub)
	}
	if b.pkg, err = ParsePackage(opfData, opfPath, b.log); err != nil {
		return nil, err
	}

	// A missing or broken TOC is not fatal; it degrades to an empty slice.
	var navWarnings []string
	b.nav, navWarnings = buildNavigation(b.pkg, b.readResource, b.log)
	b.warnings = append(b.warnings, navWarnings...)

	return b, nil
}

func (b *Book) detectEncryption() EncryptionInfo {
	info := NoEncryption
	if b.archive.Has(encryptionPath) {
		data, err := b.archive.ReadFile(encryptionPath)
		if err != nil {
			b.warn(fmt.Sprintf("cannot read %s: %v", encryptionPath, err))
			info = EncryptionInfo{Type: EncryptionUnknown}
		} else {
			info = ParseEncryption(data)
		}
	}
	info = applyArchiveSignals(info,
		b.archive.Has(rightsPath),
		b.archive.Has(lcpLicensePath),
		b.archive.Has(sinfPath))
	b.log.Debug("encryption detected",
		zap.Stringer("type", info.Type),
		zap.Int("resources", len(info.Resources)))
	return info
}

func (b *Book) warn(msg string) {
	b.warnings = append(b.warnings, msg)
	b.log.Warn(msg)
}

// validateMimetype warns unless the archive starts with a "mimetype" entry
// holding expectedMimetype.
func (b *Book) validateMimetype() {
	first := b.archive.first()
	if first == nil {
		b.warn("empty ZIP archive; mimetype entry missing")
		return
	}
	if first.Name != "mimetype" {
		b.warn("first ZIP entry is not \"mimetype\"")
		return
	}

	data, err := readZipFileWithLimit(first, b.archive.maxEntry)
	if err != nil {
		b.warn(fmt.Sprintf("cannot read mimetype entry: %v", err))
		return
	}
	if string(data) != expectedMimetype {
		b.warn(fmt.Sprintf("unexpected mimetype: %q", string(data)))
	}
}

// Close closes the file opened by Open. It is safe to call more than once.
func (b *Book) Close() error {
	return b.archive.Close()
}

// ReadFile returns the archive entry at name, falling back to a
// case-insensitive match.
// Resources encrypted by a DRM scheme yield ErrDRMProtected.
func (b *Book) ReadFile(name string) ([]byte, error) {
	return b.readResource(name)
}

// readResource implements resourceReader for lazy content loading.
func (b *Book) readResource(name string) ([]byte, error) {
	if r, ok := b.encryption.Resource(name); ok && r.Type.IsDRM() {
		return nil, fmt.Errorf("epub: %s: %w", name, ErrDRMProtected)
	}
	return b.archive.ReadFile(name)
}

// Package returns the parsed package document. It must not be modified.
func (b *Book) Package() *Package {
	return b.pkg
}

// HasTOC reports whether a non-empty table of contents was found.
func (b *Book) HasTOC() bool {
	return len(b.nav.TOC) > 0
}

// Metadata returns a copy of the package metadata.
func (b *Book) Metadata() Metadata {
	return copyMetadata(b.pkg.Metadata)
}

// Encryption returns the encryption classification of the publication.
func (b *Book) Encryption() EncryptionInfo {
	out := b.encryption
	out.Resources = slices.Clone(b.encryption.Resources)
	out.Algorithms = slices.Clone(b.encryption.Algorithms)
	return out
}

// Warnings returns the problems that were tolerated while opening the book.
func (b *Book) Warnings() []string {
	return slices.Clone(b.warnings)
}

// TOC returns a copy of the table of contents tree. SpineIndex is -1 for
// entries that point at no spine document.
func (b *Book) TOC() []TOCItem {
	return copyTOCItems(b.nav.TOC)
}

// Landmarks returns the landmarks nav of an ePub 3 navigation document, or nil.
func (b *Book) Landmarks() []TOCItem {
	return copyTOCItems(b.nav.Landmarks)
}

// PageList returns the page list from the nav document or the NCX.
func (b *Book) PageList() []TOCItem {
	return copyTOCItems(b.nav.PageList)
}

// Chapters returns one handle per spine item. Content is read lazily by the
// Chapter methods; titles come from the TOC entry pointing at the document.
// IsLicense is only set once ContentChapters has run.
func (b *Book) Chapters() []Chapter {
	if b.chapters != nil {
		return copyChapters(b.chapters)
	}

	titles := chapterTitles(b.nav.TOC)

	chapters := make([]Chapter, 0, len(b.pkg.Spine.Items))
	for i, si := range b.pkg.Spine.Items {
		chapters = append(chapters, Chapter{
			Index:  i,
			ID:     si.IDRef,
			Href:   si.Href,
			Title:  titles[si.Href],
			Linear: si.Linear,
			book:   b,
		})
	}

	b.chapters = chapters
	return copyChapters(b.chapters)
}

// ContentChapters returns the chapters that are not Project Gutenberg
// license pages. The first call reads every chapter.
func (b *Book) ContentChapters() []Chapter {
	b.detectLicenses()
	return slices.DeleteFunc(copyChapters(b.chapters), func(ch Chapter) bool {
		return ch.IsLicense
	})
}

func (b *Book) detectLicenses() {
	if b.licenseDetected {
		return
	}
	b.Chapters()
	for i, ch := range b.chapters {
		raw, err := b.readResource(ch.Href)
		if err != nil {
			continue
		}
		b.chapters[i].IsLicense = isGutenbergLicense(raw)
	}
	b.licenseDetected = true
}

// ContentDocument returns the parsed content document of spine item i.
// Documents are parsed once and cached.
func (b *Book) ContentDocument(i int) (*ContentDocument, error) {
	if i < 0 || i >= len(b.pkg.Spine.Items) {
		return nil, fmt.Errorf("epub: content document %d of %d: %w", i, len(b.pkg.Spine.Items), ErrSpineIndex)
	}
	if d, ok := b.docs[i]; ok {
		return d, nil
	}
	si := b.pkg.Spine.Items[i]
	data, err := b.readResource(si.Href)
	if err != nil {
		return nil, err
	}
	d, err := ParseContentDocument(si.IDRef, si.Href, i, data)
	if err != nil {
		return nil, err
	}
	b.docs[i] = d
	return d, nil
}

// Sanitized returns the sanitized markup of spine item i.
func (b *Book) Sanitized(i int, opts SanitizeOptions) ([]byte, error) {
	d, err := b.ContentDocument(i)
	if err != nil {
		return nil, err
	}
	return d.Sanitized(opts)
}

// Searcher returns a Searcher over the text of every spine item; chapter
// indices are spine indices. Unreadable documents are searched as empty.
func (b *Book) Searcher() *Searcher {
	if b.searcher != nil {
		return b.searcher
	}
	chapters := b.Chapters()
	list := make([]SearchChapter, len(chapters))
	for i, ch := range chapters {
		list[i] = SearchChapter{ID: ch.ID, Title: ch.Title, Href: ch.Href}
		d, err := b.ContentDocument(i)
		if err != nil {
			b.log.Warn("chapter excluded from search", zap.String("href", ch.Href), zap.Error(err))
			continue
		}
		list[i].Text = d.Text
	}
	b.searcher = NewSearcher(list, WithSearchLogger(b.log))
	return b.searcher
}

// Search runs a full-text search over the book. See Searcher.Search.
func (b *Book) Search(query string, opts SearchOptions) iter.Seq[SearchResult] {
	return b.Searcher().Search(query, opts)
}

// CountMatches returns the number of results Search yields.
func (b *Book) CountMatches(query string, opts SearchOptions) int {
	return b.Searcher().CountMatches(query, opts)
}

// ResolveCFI parses and resolves a CFI string to its start location.
func (b *Book) ResolveCFI(s string) (Location, error) {
	c, err := ParseCFI(s)
	if err != nil {
		return Location{}, err
	}
	return ResolveCFI(b.pkg, c, b)
}

// ResolveCFIRange parses and resolves both ends of a CFI string.
func (b *Book) ResolveCFIRange(s string) (start, end Location, err error) {
	c, err := ParseCFI(s)
	if err != nil {
		return Location{}, Location{}, err
	}
	return ResolveCFIRange(b.pkg, c, b)
}

// GenerateCFI returns the canonical CFI string of loc.
func (b *Book) GenerateCFI(loc Location) (string, error) {
	doc, err := b.docFor(loc)
	if err != nil {
		return "", err
	}
	c, err := GenerateCFI(b.pkg, doc, loc)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// GenerateRangeCFI returns the canonical range CFI spanning start to end.
func (b *Book) GenerateRangeCFI(start, end Location) (string, error) {
	startDoc, err := b.docFor(start)
	if err != nil {
		return "", err
	}
	endDoc, err := b.docFor(end)
	if err != nil {
		return "", err
	}
	c, err := GenerateRangeCFI(b.pkg, startDoc, start, endDoc, end)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// CFIForOffset returns the CFI of a plain-text offset in spine item i, for
// example the Start of a SearchResult.
func (b *Book) CFIForOffset(i, offset int) (string, error) {
	d, err := b.ContentDocument(i)
	if err != nil {
		return "", err
	}
	loc, err := d.LocationAt(offset)
	if err != nil {
		return "", err
	}
	return b.GenerateCFI(loc)
}

func (b *Book) docFor(loc Location) (*ContentDocument, error) {
	if len(loc.Path) == 0 {
		return nil, nil
	}
	return b.ContentDocument(loc.SpineIndex)
}

// chapterTitles maps each document path named by the TOC to the title of
// the first entry pointing into it.
func chapterTitles(items []TOCItem) map[string]string {
	titles := make(map[string]string)
	walkTOC(items, func(it *TOCItem) {
		if it.Href == "" {
			return
		}
		doc := RemoveFragment(it.Href)
		if _, ok := titles[doc]; !ok {
			titles[doc] = it.Title
		}
	})
	return titles
}

func copyMetadata(m Metadata) Metadata {
	m.Titles = slices.Clone(m.Titles)
	m.Authors = slices.Clone(m.Authors)
	m.Language = slices.Clone(m.Language)
	m.Identifiers = slices.Clone(m.Identifiers)
	m.Subjects = slices.Clone(m.Subjects)
	m.Metas = slices.Clone(m.Metas)
	return m
}

func copyTOCItems(items []TOCItem) []TOCItem {
	out := slices.Clone(items)
	for i := range out {
		out[i].Children = copyTOCItems(out[i].Children)
	}
	return out
}

func copyChapters(chapters []Chapter) []Chapter {
	return slices.Clone(chapters)
}
