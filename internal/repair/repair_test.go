package repair

import (
	"context"
	"errors"
	"strings"
	"testing"

	"git.home.luguber.info/inful/deckforge/internal/classify"
	"git.home.luguber.info/inful/deckforge/internal/llm"
)

const brokenDoc = `\documentclass{beamer}
\begin{document}
\begin{frame}
\unknowncmd
\end{frame}
\end{document}`

const fixedDoc = `\documentclass{beamer}
\begin{document}
\begin{frame}
fixed
\end{frame}
\end{document}`

func undefinedCmd() classify.Classification {
	return classify.Classification{
		Kind:    classify.KindUndefinedCommand,
		Detail:  "! Undefined control sequence.",
		Excerpt: "! Undefined control sequence.\nl.4 \\unknowncmd",
		Hint:    "A command is undefined.",
	}
}

func TestRepairReturnsCleanedSource(t *testing.T) {
	fake := llm.NewFake("```latex\n" + fixedDoc + "\n```")
	got, err := New(fake).Repair(context.Background(), brokenDoc, undefinedCmd())
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if got != fixedDoc {
		t.Fatalf("unexpected source:\n%s", got)
	}
}

func TestRepairPromptCarriesErrorContext(t *testing.T) {
	fake := llm.NewFake(fixedDoc)
	if _, err := New(fake).Repair(context.Background(), brokenDoc, undefinedCmd()); err != nil {
		t.Fatalf("repair: %v", err)
	}
	user := fake.Prompts[0].User
	for _, want := range []string{"undefined_command", `l.4 \unknowncmd`, `\unknowncmd`, "A command is undefined."} {
		if !strings.Contains(user, want) {
			t.Fatalf("prompt missing %q:\n%s", want, user)
		}
	}
}

func TestRepairRejectsNoOp(t *testing.T) {
	fake := llm.NewFake(brokenDoc)
	_, err := New(fake).Repair(context.Background(), brokenDoc, undefinedCmd())
	if err == nil || !strings.Contains(err.Error(), "changed nothing") {
		t.Fatalf("expected no-op rejection, got %v", err)
	}
}

func TestRepairRejectsBrokenStructure(t *testing.T) {
	fake := llm.NewFake("sorry, I cannot fix this")
	_, err := New(fake).Repair(context.Background(), brokenDoc, undefinedCmd())
	if err == nil || !strings.Contains(err.Error(), "unusable") {
		t.Fatalf("expected structural rejection, got %v", err)
	}
}

func TestRepairPropagatesClientError(t *testing.T) {
	fake := llm.NewFake().QueueError(errors.New("gateway down"))
	_, err := New(fake).Repair(context.Background(), brokenDoc, undefinedCmd())
	if err == nil || !strings.Contains(err.Error(), "gateway down") {
		t.Fatalf("expected client error, got %v", err)
	}
}
