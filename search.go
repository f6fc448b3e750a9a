package epub

import (
	"fmt"
	"iter"
	"regexp"
	"slices"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultContextChars is the context window of DefaultSearchOptions.
const DefaultContextChars = 50

// SearchOptions configures a search. The zero value searches
// case-insensitively for the literal query, without context and without a
// result cap.
type SearchOptions struct {
	// CaseSensitive disables case folding.
	CaseSensitive bool

	// WholeWord only keeps matches that are neither preceded nor followed
	// by a letter, mark, digit or underscore, in any script.
	WholeWord bool

	// Pattern is a regular expression (RE2 syntax) used instead of the
	// literal query when non-empty.
	Pattern string

	// ContextChars is the number of characters of context kept on each
	// side of a match.
	ContextChars int

	// MaxResults stops the search after that many results; 0 means no cap.
	MaxResults int

	// Chapters restricts the search to these chapter indices. Indices are
	// visited in ascending order; duplicates and out-of-range values are
	// ignored. Nil searches every chapter.
	Chapters []int
}

// DefaultSearchOptions returns the options used by Book.Search callers that
// have no preference.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{ContextChars: DefaultContextChars}
}

// Validate reports options a search would silently degrade on.
func (o SearchOptions) Validate() error {
	if o.ContextChars < 0 {
		return fmt.Errorf("epub: search: negative context window %d", o.ContextChars)
	}
	if o.MaxResults < 0 {
		return fmt.Errorf("epub: search: negative result cap %d", o.MaxResults)
	}
	if o.Pattern != "" {
		if _, err := regexp.Compile(o.Pattern); err != nil {
			return fmt.Errorf("epub: search: invalid pattern: %w", err)
		}
	}
	return nil
}

// SearchChapter is the searchable text of one chapter.
type SearchChapter struct {
	ID    string
	Title string
	Href  string
	Text  string
}

// SearchResult is one match. Start and Length count characters (Unicode
// code points) in the chapter text.
type SearchResult struct {
	ChapterIndex int
	ChapterID    string
	ChapterTitle string

	Match  string
	Before string
	After  string

	Start  int
	Length int
}

// End returns the offset just past the match.
func (r SearchResult) End() int {
	return r.Start + r.Length
}

// FullContext returns Before, Match and After joined.
func (r SearchResult) FullContext() string {
	return r.Before + r.Match + r.After
}

// Searcher runs full-text searches over a fixed list of chapters. It is
// immutable and safe for concurrent use.
type Searcher struct {
	chapters []SearchChapter
	log      *zap.Logger
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithSearchLogger sets the logger used to report rejected patterns.
func WithSearchLogger(log *zap.Logger) SearcherOption {
	return func(s *Searcher) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSearcher returns a Searcher over a copy of chapters. Chapter indices
// are positions in that list.
func NewSearcher(chapters []SearchChapter, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		chapters: slices.Clone(chapters),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of chapters.
func (s *Searcher) Len() int {
	return len(s.chapters)
}

// Search returns the matches of query in chapter order, then in text order.
// The sequence is lazy: chapters are scanned as the caller ranges over it,
// and no chapter past the one yielding the MaxResults-th result, or past
// the point where the caller stops, is scanned. An empty term or an invalid
// pattern yields nothing.
func (s *Searcher) Search(query string, opts SearchOptions) iter.Seq[SearchResult] {
	return func(yield func(SearchResult) bool) {
		m := s.compile(query, opts)
		if m == nil {
			return
		}
		n := 0
		for _, i := range s.chapterOrder(opts.Chapters) {
			for _, r := range s.scan(i, m, opts.ContextChars) {
				if !yield(r) {
					return
				}
				if n++; opts.MaxResults > 0 && n >= opts.MaxResults {
					return
				}
			}
		}
	}
}

// SearchChapter returns every match in one chapter, ignoring MaxResults and
// Chapters. An out-of-range index yields nil.
func (s *Searcher) SearchChapter(index int, query string, opts SearchOptions) []SearchResult {
	if index < 0 || index >= len(s.chapters) {
		return nil
	}
	m := s.compile(query, opts)
	if m == nil {
		return nil
	}
	return s.scan(index, m, opts.ContextChars)
}

// CountMatches returns the number of results Search yields for the same
// arguments.
func (s *Searcher) CountMatches(query string, opts SearchOptions) int {
	n := 0
	for range s.Search(query, opts) {
		n++
	}
	return n
}

// matcher finds the effective term in chapter text.
type matcher struct {
	re *regexp.Regexp

	// wholeWord means re starts with a consumed word boundary and captures
	// the term in group 1; the trailing boundary is checked by scan.
	wholeWord bool
}

// nonWordPrefix matches the start of the text or one non-word character.
const nonWordPrefix = `(?:^|[^\p{L}\p{M}\p{N}_])`

// compile builds the matcher for the effective term, or returns nil when
// there is nothing to search for.
func (s *Searcher) compile(query string, opts SearchOptions) *matcher {
	expr := regexp.QuoteMeta(query)
	if opts.Pattern != "" {
		expr = opts.Pattern
	}
	if expr == "" {
		return nil
	}
	if opts.WholeWord {
		expr = nonWordPrefix + `(` + expr + `)`
	}
	if !opts.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		s.log.Warn("rejected search pattern", zap.String("pattern", opts.Pattern), zap.Error(err))
		return nil
	}
	return &matcher{re: re, wholeWord: opts.WholeWord}
}

// find returns the byte ranges of the non-empty matches in text.
func (m *matcher) find(text string) [][2]int {
	var out [][2]int
	for _, loc := range m.re.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		if m.wholeWord {
			start, end = loc[2], loc[3]
			if start < 0 || !wordEndsAt(text, end) {
				continue
			}
		}
		if start == end {
			continue
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// wordEndsAt reports whether no word character follows byte offset i.
func wordEndsAt(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r)
}

// chapterOrder returns the chapter indices to visit.
func (s *Searcher) chapterOrder(subset []int) []int {
	if subset == nil {
		order := make([]int, len(s.chapters))
		for i := range order {
			order[i] = i
		}
		return order
	}
	order := make([]int, 0, len(subset))
	for _, i := range subset {
		if i >= 0 && i < len(s.chapters) {
			order = append(order, i)
		}
	}
	slices.Sort(order)
	return slices.Compact(order)
}

// scan returns all non-empty matches in chapter i.
func (s *Searcher) scan(i int, m *matcher, contextChars int) []SearchResult {
	if ce := s.log.Check(zap.DebugLevel, "scanning chapter"); ce != nil {
		ce.Write(zap.Int("chapter", i))
	}
	ch := s.chapters[i]
	text := ch.Text
	contextChars = max(contextChars, 0)

	var results []SearchResult
	bytePos, runePos := 0, 0
	for _, span := range m.find(text) {
		runePos += utf8.RuneCountInString(text[bytePos:span[0]])
		bytePos = span[0]
		match := text[span[0]:span[1]]
		results = append(results, SearchResult{
			ChapterIndex: i,
			ChapterID:    ch.ID,
			ChapterTitle: ch.Title,
			Match:        match,
			Before:       lastRunes(text[:span[0]], contextChars),
			After:        firstRunes(text[span[1]:], contextChars),
			Start:        runePos,
			Length:       utf8.RuneCountInString(match),
		})
	}
	return results
}

// lastRunes returns the last n code points of s.
func lastRunes(s string, n int) string {
	i := len(s)
	for ; n > 0 && i > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return s[i:]
}

// firstRunes returns the first n code points of s.
func firstRunes(s string, n int) string {
	i := 0
	for ; n > 0 && i < len(s); n-- {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}
