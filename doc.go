// Package epub is a document model and addressing engine for ePub 2 and
// ePub 3 publications.
//
// It parses the package structure (container, metadata, manifest, spine),
// builds the navigation trees (nav document or NCX), classifies the
// encryption declared in META-INF, resolves and generates Canonical
// Fragment Identifiers, and runs full-text searches over chapter text.
//
// # Opening an ePub
//
// Use [Open] to open a file by path, or [NewReader] to read from an [io.ReaderAt]:
//
//	book, err := epub.Open("book.epub", epub.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer book.Close()
//
// Publications protected by a DRM scheme open by default; reading one of
// their encrypted resources fails with [ErrDRMProtected]. Pass
// [WithRejectDRM] to refuse them up front. [Book.Encryption] reports the
// classification.
//
// # Package and navigation
//
// [Book.Package] returns the parsed [Package]; [Book.Metadata], [Book.TOC],
// [Book.Landmarks] and [Book.PageList] expose the parts most callers need.
// All hrefs are ZIP-internal paths resolved against the document that
// declared them. Package parsing is strict and fails with a [*PackageError];
// navigation parsing is lenient and degrades to an empty TOC.
//
// # Chapters and content documents
//
// Chapters are returned in spine order via [Book.Chapters]. Content is loaded lazily;
// call [Chapter.RawContent] for raw XHTML, [Chapter.TextContent] for readable text, or
// [Chapter.BodyHTML] for sanitised inner HTML with rewritten image paths.
// [Book.ContentDocument] returns the [ContentDocument] of a spine item: its
// plain text with a mapping from text offsets back to DOM text nodes.
//
// # CFI
//
// [ParseCFI] parses strings such as "epubcfi(/6/4!/4/2,/1:0,/1:10)";
// [CFI.String] regenerates them bit-exactly, [CompareCFI] orders them, and
// [Book.ResolveCFI] / [Book.GenerateCFI] map between CFIs and [Location]s.
//
//	loc, err := book.ResolveCFI("epubcfi(/6/4[chap01]!/4/2/1:12)")
//	cfi, err := book.CFIForOffset(loc.SpineIndex, loc.TextOffset)
//
// # Search
//
// [Book.Search] returns a lazy sequence of [SearchResult]; stop ranging to
// stop scanning.
//
//	for r := range book.Search("whale", epub.DefaultSearchOptions()) {
//	    fmt.Println(r.ChapterTitle, r.FullContext())
//	}
//
// # Error Handling
//
// The package defines sentinel errors for common failure cases:
//   - [ErrDRMProtected] – the resource or publication is DRM encrypted
//   - [ErrInvalidEPub] – structural validation failed
//   - [ErrInvalidCFI] – a CFI string is malformed
//   - [ErrCFINotFound] – a CFI does not address anything in the book
//   - [ErrFileNotFound] – a requested file is not in the archive
//   - [ErrNoCover] – no cover image could be detected
package epub
