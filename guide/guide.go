// Package guide reads markdown guides and checks their fenced snippets.
package guide

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Snippet is a fenced code block taken from a guide.
type Snippet struct {
	File string `json:"file"`
	// Language is the declared info-string tag, lower-cased; empty when missing.
	Language string `json:"language,omitempty"`
	Content  string `json:"content"`
	// Line is the 1-based line of the opening fence.
	Line    int    `json:"line"`
	Section string `json:"section,omitempty"`
}

// Parse returns every fenced code block in src, in document order.
func Parse(name string, src []byte) ([]Snippet, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src), parser.WithContext(parser.NewContext()))

	var snippets []Snippet
	section := ""
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			section = headingText(node, src)
		case *ast.FencedCodeBlock:
			snippets = append(snippets, Snippet{
				File:     name,
				Language: strings.ToLower(string(node.Language(src))),
				Content:  blockContent(node, src),
				Line:     fenceLine(node, src),
				Section:  section,
			})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return snippets, nil
}

func headingText(node ast.Node, src []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}

func blockContent(node *ast.FencedCodeBlock, src []byte) string {
	var buf bytes.Buffer
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return buf.String()
}

func fenceLine(node *ast.FencedCodeBlock, src []byte) int {
	if node.Info != nil {
		return lineAt(src, node.Info.Segment.Start)
	}
	if node.Lines().Len() > 0 {
		return lineAt(src, node.Lines().At(0).Start) - 1
	}
	// An empty block without an info string has no position of its own.
	return 0
}

func lineAt(src []byte, offset int) int {
	if offset > len(src) {
		offset = len(src)
	}
	return bytes.Count(src[:offset], []byte("\n")) + 1
}
