// Package synth turns a presentation plan into complete LaTeX Beamer source
// by prompting a language model and validating what comes back.
package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/deckforge/internal/llm"
	"git.home.luguber.info/inful/deckforge/internal/plan"
	"git.home.luguber.info/inful/deckforge/internal/texsrc"
)

// GenerationError reports model output that cannot be used as document
// source. It is terminal: re-prompting with the same plan is the caller's
// decision, not a compile retry.
type GenerationError struct {
	Op     string
	Reason string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Synthesizer generates Beamer source for a resolved plan.
type Synthesizer struct {
	client llm.Client
	theme  string
}

// New creates a Synthesizer. theme may be empty, in which case the model
// picks a default Beamer theme.
func New(client llm.Client, theme string) *Synthesizer {
	return &Synthesizer{client: client, theme: theme}
}

const systemPrompt = `You are an expert LaTeX Beamer author. You produce complete,
compilable Beamer documents from structured slide plans. Reply with LaTeX
source only, no commentary.`

// Generate produces validated LaTeX source for the plan. The returned source
// has code fences stripped and carries the structural markers of a complete
// document.
func (s *Synthesizer) Generate(ctx context.Context, p *plan.Plan) (string, error) {
	prompt, err := s.buildPrompt(p)
	if err != nil {
		return "", err
	}
	raw, err := s.client.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate source: %w", err)
	}
	src := texsrc.Clean(raw)
	if err := texsrc.Validate(src); err != nil {
		return "", &GenerationError{Op: "generate", Reason: err.Error()}
	}
	return src, nil
}

func (s *Synthesizer) buildPrompt(p *plan.Plan) (llm.Prompt, error) {
	planJSON, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return llm.Prompt{}, fmt.Errorf("encode plan: %w", err)
	}

	var b strings.Builder
	b.WriteString("Create a complete LaTeX Beamer presentation from this plan:\n\n")
	b.Write(planJSON)
	b.WriteString("\n\nRequirements:\n")
	fmt.Fprintf(&b, "- Write all slide text in language %q.\n", p.Language)
	if s.theme != "" {
		fmt.Fprintf(&b, "- Use the Beamer theme %q.\n", s.theme)
	}
	if p.IsCJK() {
		b.WriteString("- Use the ctex package so CJK text renders under XeLaTeX.\n")
	}
	b.WriteString(`- Produce one frame per slide in the plan, preserving order.
- Give every frame a \frametitle matching the slide title exactly.
- Include figures with \includegraphics using the plan's figure paths verbatim.
- Scale figure captions to the plan's caption_length: short captions one line, long captions may wrap.
- Start with a title frame and a table of contents frame before the planned slides.
- Output only LaTeX source, starting at \documentclass and ending at \end{document}.
`)
	return llm.Prompt{System: systemPrompt, User: b.String()}, nil
}
