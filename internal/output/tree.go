// Package output renders book structures for the epubkit command.
package output

import (
	"fmt"

	"github.com/disiqueira/gotree/v3"

	epub "github.com/simp-lee/epubkit"
)

// TOCTree renders a navigation tree under rootLabel. Entries that point at
// a spine item are suffixed with their spine range when showSpine is set.
func TOCTree(rootLabel string, items []epub.TOCItem, showSpine bool) string {
	tree := gotree.New(rootLabel)
	addTOCItems(tree, items, showSpine)
	return tree.Print()
}

func addTOCItems(parent gotree.Tree, items []epub.TOCItem, showSpine bool) {
	for _, item := range items {
		label := item.Title
		if label == "" {
			label = "(untitled)"
		}
		if showSpine && item.SpineIndex >= 0 {
			label = fmt.Sprintf("%s [%d-%d)", label, item.SpineIndex, item.SpineEndIndex)
		}
		addTOCItems(parent.Add(label), item.Children, showSpine)
	}
}
