package epub

import (
	"bytes"
	"strings"
	"testing"
)

func BenchmarkNewReader(b *testing.B) {
	data := buildTestZipBytes(b, sampleEPubFiles())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		book, err := NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			b.Fatal(err)
		}
		book.Close()
	}
}

func BenchmarkSearch(b *testing.B) {
	text := strings.Repeat("It was the best of times, it was the worst of times, it was the age of wisdom. ", 2000)
	s := NewSearcher([]SearchChapter{{Text: text}, {Text: text}})
	opts := DefaultSearchOptions()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if n := s.CountMatches("times", opts); n != 8000 {
			b.Fatalf("CountMatches() = %d", n)
		}
	}
}

func BenchmarkParseContentDocument(b *testing.B) {
	raw := []byte(sampleChapter01)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ParseContentDocument("chap01", "OEBPS/Text/chapter01.xhtml", 0, raw); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCFIRoundTrip(b *testing.B) {
	book := openTestBook(b, sampleEPubFiles())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cfi, err := book.CFIForOffset(1, 42)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := book.ResolveCFI(cfi); err != nil {
			b.Fatal(err)
		}
	}
}
