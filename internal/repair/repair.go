// Package repair asks the language model to fix LaTeX source that failed to
// compile, guided by the classified compiler error.
package repair

import (
	"context"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/deckforge/internal/classify"
	"git.home.luguber.info/inful/deckforge/internal/llm"
	"git.home.luguber.info/inful/deckforge/internal/texsrc"
)

// Agent produces repaired full-document source. Each repair replaces the
// previous source wholesale; there is no patch format to go wrong.
type Agent struct {
	client llm.Client
}

func New(client llm.Client) *Agent {
	return &Agent{client: client}
}

const systemPrompt = `You are an expert LaTeX debugger. You receive Beamer source that
failed to compile together with the compiler error. Return the corrected,
complete document. Change as little as possible and never drop slide
content. Reply with LaTeX source only.`

// Repair returns corrected source for a failed compile. The result is
// validated the same way as freshly generated source, and a reply that
// changes nothing is an error: resubmitting identical source cannot succeed.
func (a *Agent) Repair(ctx context.Context, source string, cls classify.Classification) (string, error) {
	raw, err := a.client.Complete(ctx, buildPrompt(source, cls))
	if err != nil {
		return "", fmt.Errorf("repair source: %w", err)
	}
	fixed := texsrc.Clean(raw)
	if err := texsrc.Validate(fixed); err != nil {
		return "", fmt.Errorf("repair produced unusable source: %w", err)
	}
	if strings.TrimSpace(fixed) == strings.TrimSpace(source) {
		return "", fmt.Errorf("repair changed nothing for %s error", cls.Kind)
	}
	return fixed, nil
}

func buildPrompt(source string, cls classify.Classification) llm.Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "The document below fails to compile with a %s error.\n\n", cls.Kind)
	if cls.Detail != "" {
		fmt.Fprintf(&b, "Compiler message:\n%s\n\n", cls.Detail)
	}
	if cls.Excerpt != "" {
		fmt.Fprintf(&b, "Log excerpt:\n%s\n\n", cls.Excerpt)
	}
	if cls.Hint != "" {
		fmt.Fprintf(&b, "Guidance: %s\n\n", cls.Hint)
	}
	b.WriteString("Document source:\n")
	b.WriteString(source)
	b.WriteString("\n\nReturn the complete corrected document.")
	return llm.Prompt{System: systemPrompt, User: b.String()}
}
