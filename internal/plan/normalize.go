package plan

import (
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// NormalizeBullet strips Markdown markup from a bullet string, returning its
// plain-text content. Upstream extractors occasionally emit emphasis, inline
// code or links in bullet text; the LaTeX prompt should see clean prose.
func NormalizeBullet(bullet string) string {
	trimmed := strings.TrimSpace(bullet)
	if trimmed == "" {
		return ""
	}
	if !strings.ContainsAny(trimmed, "*_`[#") {
		return strings.Join(strings.Fields(trimmed), " ")
	}

	src := []byte(trimmed)
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.Text:
			sb.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *gmast.CodeSpan:
			// Children are Text nodes; handled above.
		case *gmast.AutoLink:
			sb.Write(node.URL(src))
		}
		return gmast.WalkContinue, nil
	})

	out := strings.Join(strings.Fields(sb.String()), " ")
	if out == "" {
		return trimmed
	}
	return out
}
