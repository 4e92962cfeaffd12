// ABOUTME: Conversation title derivation from a user's first message
// ABOUTME: Strips markdown via the goldmark AST and truncates to a short plain-text title

package backend

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const maxTitleRunes = 40

var markdown = goldmark.New()

// deriveTitle returns the plain text of src, whitespace-collapsed and cut to
// maxTitleRunes.
func deriveTitle(src string) string {
	plain := strings.Join(strings.Fields(plainText([]byte(src))), " ")
	if plain == "" {
		plain = strings.Join(strings.Fields(src), " ")
	}
	runes := []rune(plain)
	if len(runes) > maxTitleRunes {
		plain = strings.TrimSpace(string(runes[:maxTitleRunes]))
	}
	return plain
}

func plainText(src []byte) string {
	doc := markdown.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		default:
			if n.Type() == ast.TypeBlock && b.Len() > 0 {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
