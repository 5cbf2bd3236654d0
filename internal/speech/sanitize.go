// Package speech provides the text-to-speech and speech-to-text sinks
// and the sanitizer that prepares assistant text for voice playback.
package speech

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// SanitizeForVoice converts assistant reply text to plain speakable
// text: inline highlight markup is unwrapped, residual markup tags are
// stripped, and markdown emphasis/code is unwrapped. The result is
// whitespace-normalized.
func SanitizeForVoice(s string) string {
	s = stripTags(s)
	s = flattenMarkdown(s)
	return strings.Join(strings.Fields(s), " ")
}

// stripTags removes markup tags, keeping their text content. Highlight
// wrappers and any other inline elements unwrap to their inner text;
// script and style bodies are discarded outright.
func stripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skipDepth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := z.TagName()
			if isSkippedTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isSkippedTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isSkippedTag(name string) bool {
	return name == "script" || name == "style"
}

// flattenMarkdown parses s as markdown and returns only its text
// content: emphasis, strong, links and code unwrap to their plain
// text; block boundaries become spaces.
func flattenMarkdown(s string) string {
	src := []byte(s)
	doc := goldmark.New().Parser().Parse(gtext.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			// Separate blocks so headings don't run into paragraphs.
			if n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}

		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.FencedCodeBlock:
			writeCodeLines(&b, t.BaseBlock, src)
		case *ast.CodeBlock:
			writeCodeLines(&b, t.BaseBlock, src)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func writeCodeLines(b *strings.Builder, block ast.BaseBlock, src []byte) {
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
		b.WriteByte(' ')
	}
}
