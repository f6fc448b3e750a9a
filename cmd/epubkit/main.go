// Command epubkit inspects ePub files: metadata, navigation, text, search,
// CFI resolution and encryption.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"

	epub "github.com/simp-lee/epubkit"
	"github.com/simp-lee/epubkit/internal/output"
)

const usage = `Usage: epubkit [--verbose] <command> [flags] <file.epub> [args]

Commands:
  info        print metadata, spine size, cover and warnings
  toc         print the table of contents as a tree
  text        print the readable text of one or all chapters
  search      search the chapter text
  cfi         resolve a CFI, or generate one with --spine/--offset
  encryption  print the encryption classification

Run "epubkit <command> --help" for command flags.
`

// errUsage marks errors already reported together with usage help.
var errUsage = errors.New("usage")

type app struct {
	stdout io.Writer
	stderr io.Writer
	log    *zap.Logger
	color  bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := pflag.NewFlagSet("epubkit", pflag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	verbose := global.BoolP("verbose", "v", false, "log parse diagnostics to stderr")
	noColor := global.Bool("no-color", false, "disable colored output")
	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "epubkit: %v\n\n", err)
		global.Usage()
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	a := &app{stdout: stdout, stderr: stderr, log: zap.NewNop()}
	if *verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			a.log = l
			defer l.Sync()
		}
	}
	if f, ok := stdout.(*os.File); ok && !*noColor {
		a.color = term.IsTerminal(int(f.Fd()))
	}

	commands := map[string]func([]string) error{
		"info":       a.info,
		"toc":        a.toc,
		"text":       a.text,
		"search":     a.search,
		"cfi":        a.cfi,
		"encryption": a.encryption,
	}
	name, rest := global.Arg(0), global.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "epubkit: unknown command %q\n\n%s", name, usage)
		return 2
	}
	if err := cmd(rest); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "epubkit %s: %v\n", name, err)
		return 1
	}
	return 0
}

// flags returns a flag set for a command; argsUsage describes the
// positional arguments after the book path.
func (a *app) flags(name, argsUsage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "Usage: epubkit %s [flags] <file.epub>%s\n\nFlags:\n", name, argsUsage)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args and opens the book named by the first positional
// argument. Between minArgs and maxArgs further arguments are accepted.
func (a *app) parse(fs *pflag.FlagSet, args []string, minArgs, maxArgs int) (*epub.Book, []string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, nil, err
		}
		fmt.Fprintf(a.stderr, "epubkit %s: %v\n", fs.Name(), err)
		fs.Usage()
		return nil, nil, errUsage
	}
	if n := fs.NArg() - 1; n < minArgs || n > maxArgs {
		fs.Usage()
		return nil, nil, errUsage
	}
	book, err := epub.Open(fs.Arg(0), epub.WithLogger(a.log))
	if err != nil {
		return nil, nil, err
	}
	return book, fs.Args()[1:], nil
}

func (a *app) info(args []string) error {
	fs := a.flags("info", "")
	book, _, err := a.parse(fs, args, 0, 0)
	if err != nil {
		return err
	}
	defer book.Close()

	md := book.Metadata()
	pkg := book.Package()
	w := a.stdout
	fmt.Fprintf(w, "Title:      %s\n", md.Title())
	for _, au := range md.Authors {
		if au.Role != "" {
			fmt.Fprintf(w, "Author:     %s (%s)\n", au.Name, au.Role)
		} else {
			fmt.Fprintf(w, "Author:     %s\n", au.Name)
		}
	}
	if len(md.Language) > 0 {
		fmt.Fprintf(w, "Language:   %s\n", strings.Join(md.Language, ", "))
	}
	for _, id := range md.Identifiers {
		if id.Scheme != "" {
			fmt.Fprintf(w, "Identifier: %s (%s)\n", id.Value, id.Scheme)
		} else {
			fmt.Fprintf(w, "Identifier: %s\n", id.Value)
		}
	}
	if md.Publisher != "" {
		fmt.Fprintf(w, "Publisher:  %s\n", md.Publisher)
	}
	fmt.Fprintf(w, "Version:    %s\n", pkg.Version)
	fmt.Fprintf(w, "Package:    %s\n", pkg.Path)
	fmt.Fprintf(w, "Spine:      %d items\n", len(pkg.Spine.Items))
	fmt.Fprintf(w, "TOC:        %t\n", book.HasTOC())
	fmt.Fprintf(w, "Encryption: %s\n", book.Encryption().Type)

	if cover, err := book.Cover(); err == nil {
		if wd, ht, err := cover.Dimensions(); err == nil {
			fmt.Fprintf(w, "Cover:      %s (%s, %dx%d)\n", cover.Path, cover.MediaType, wd, ht)
		} else {
			fmt.Fprintf(w, "Cover:      %s (%s)\n", cover.Path, cover.MediaType)
		}
	}
	for _, warning := range book.Warnings() {
		fmt.Fprintf(w, "Warning:    %s\n", warning)
	}
	return nil
}

func (a *app) toc(args []string) error {
	fs := a.flags("toc", "")
	landmarks := fs.BoolP("landmarks", "l", false, "print the landmarks instead of the TOC")
	pages := fs.BoolP("pages", "p", false, "print the page list instead of the TOC")
	spine := fs.BoolP("spine", "s", false, "show the spine range of each entry")
	book, _, err := a.parse(fs, args, 0, 0)
	if err != nil {
		return err
	}
	defer book.Close()

	label, items := book.Metadata().Title(), book.TOC()
	switch {
	case *landmarks:
		label, items = "Landmarks", book.Landmarks()
	case *pages:
		label, items = "Pages", book.PageList()
	}
	fmt.Fprint(a.stdout, output.TOCTree(label, items, *spine))
	return nil
}

func (a *app) text(args []string) error {
	fs := a.flags("text", "")
	chapter := fs.IntP("chapter", "c", -1, "spine index of the chapter to print (default all)")
	skipLicense := fs.Bool("skip-license", false, "leave out Project Gutenberg license pages")
	book, _, err := a.parse(fs, args, 0, 0)
	if err != nil {
		return err
	}
	defer book.Close()

	chapters := book.Chapters()
	if *skipLicense {
		chapters = book.ContentChapters()
	}
	for _, ch := range chapters {
		if *chapter >= 0 && ch.Index != *chapter {
			continue
		}
		text, err := ch.TextContent()
		if err != nil {
			a.log.Warn("skipping chapter", zap.String("href", ch.Href), zap.Error(err))
			continue
		}
		if ch.Title != "" {
			fmt.Fprintf(a.stdout, "## %s\n\n", ch.Title)
		}
		fmt.Fprintf(a.stdout, "%s\n\n", text)
	}
	return nil
}

func (a *app) search(args []string) error {
	fs := a.flags("search", " <query>")
	opts := epub.DefaultSearchOptions()
	fs.BoolVarP(&opts.CaseSensitive, "case-sensitive", "c", false, "match case")
	fs.BoolVarP(&opts.WholeWord, "word", "w", false, "match whole words only")
	fs.StringVarP(&opts.Pattern, "regexp", "e", "", "search for a regular expression instead of the query")
	fs.IntVar(&opts.ContextChars, "context", opts.ContextChars, "characters of context on each side")
	fs.IntVarP(&opts.MaxResults, "max", "n", 0, "stop after this many results (0 = all)")
	fs.IntSliceVar(&opts.Chapters, "chapters", nil, "spine indices to search (default all)")
	withCFI := fs.Bool("cfi", false, "print the CFI of each hit")
	count := fs.Bool("count", false, "only print the number of matches")

	// The query may be omitted when --regexp is given.
	book, rest, err := a.parse(fs, args, 0, 1)
	if err != nil {
		return err
	}
	defer book.Close()

	query := ""
	if len(rest) > 0 {
		query = rest[0]
	}
	if query == "" && opts.Pattern == "" {
		fs.Usage()
		return errUsage
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if *count {
		fmt.Fprintln(a.stdout, book.CountMatches(query, opts))
		return nil
	}
	for r := range book.Search(query, opts) {
		fmt.Fprintln(a.stdout, output.SearchHit(r, a.color))
		if *withCFI {
			cfi, err := book.CFIForOffset(r.ChapterIndex, r.Start)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "    %s\n", cfi)
		}
	}
	return nil
}

func (a *app) cfi(args []string) error {
	fs := a.flags("cfi", " [cfi]")
	spine := fs.Int("spine", -1, "spine index to generate a CFI for")
	offset := fs.Int("offset", 0, "text offset inside the spine item (with --spine)")

	book, rest, err := a.parse(fs, args, 0, 1)
	if err != nil {
		return err
	}
	defer book.Close()
	if *spine < 0 && len(rest) == 0 {
		fs.Usage()
		return errUsage
	}

	if *spine >= 0 {
		s, err := book.CFIForOffset(*spine, *offset)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, s)
		return nil
	}

	start, end, err := book.ResolveCFIRange(rest[0])
	if err != nil {
		return err
	}
	printLocation(a.stdout, "start", start)
	if !equalLocation(start, end) {
		printLocation(a.stdout, "end", end)
	}
	return nil
}

func printLocation(w io.Writer, label string, loc epub.Location) {
	fmt.Fprintf(w, "%s: spine %d %s path %v offset %d text offset %d\n",
		label, loc.SpineIndex, loc.Href, loc.Path, loc.Offset, loc.TextOffset)
}

func equalLocation(a, b epub.Location) bool {
	if a.SpineIndex != b.SpineIndex || a.Offset != b.Offset || len(a.Path) != len(b.Path) {
		return false
	}
	for i := range a.Path {
		if a.Path[i] != b.Path[i] {
			return false
		}
	}
	return true
}

func (a *app) encryption(args []string) error {
	fs := a.flags("encryption", "")
	book, _, err := a.parse(fs, args, 0, 0)
	if err != nil {
		return err
	}
	defer book.Close()

	info := book.Encryption()
	fmt.Fprintf(a.stdout, "Type:          %s\n", info.Type)
	fmt.Fprintf(a.stdout, "DRM:           %t\n", info.HasDRM())
	fmt.Fprintf(a.stdout, "Fonts only:    %t\n", info.IsOnlyFontObfuscation())
	fmt.Fprintf(a.stdout, "rights.xml:    %t\n", info.HasRightsFile)
	fmt.Fprintf(a.stdout, "license.lcpl:  %t\n", info.HasLCPLicense)
	for _, r := range info.Resources {
		fmt.Fprintf(a.stdout, "  %-16s %s\n", r.Type, r.URI)
	}
	return nil
}
