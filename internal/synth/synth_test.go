package synth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"git.home.luguber.info/inful/deckforge/internal/llm"
	"git.home.luguber.info/inful/deckforge/internal/plan"
)

const fakeDoc = `\documentclass{beamer}
\begin{document}
\begin{frame}
\frametitle{Overview}
Body
\end{frame}
\end{document}`

func testPlan() *plan.Plan {
	return &plan.Plan{
		PaperInfo: plan.PaperInfo{Title: "Attention Is All You Need", Authors: []string{"Vaswani"}},
		Slides: []plan.SlideSpec{
			{SlideNumber: 1, Title: "Overview", Content: []string{"Sequence transduction"}},
			{
				SlideNumber:    2,
				Title:          "Architecture",
				Content:        []string{"Encoder-decoder stacks"},
				IncludesFigure: true,
				FigureReference: &plan.FigureReference{
					Path:          "assets/model.png",
					Description:   "The Transformer architecture",
					CaptionLength: plan.CaptionShort,
				},
			},
		},
		Language: "en",
	}
}

func TestGenerateStripsFencesAndValidates(t *testing.T) {
	fake := llm.NewFake("```latex\n" + fakeDoc + "\n```")
	s := New(fake, "Madrid")

	src, err := s.Generate(context.Background(), testPlan())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if src != fakeDoc {
		t.Fatalf("unexpected source:\n%s", src)
	}
}

func TestGeneratePromptCarriesPlanAndTheme(t *testing.T) {
	fake := llm.NewFake(fakeDoc)
	s := New(fake, "Madrid")

	if _, err := s.Generate(context.Background(), testPlan()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	user := fake.Prompts[0].User
	for _, want := range []string{"Attention Is All You Need", "assets/model.png", "Madrid", `"en"`} {
		if !strings.Contains(user, want) {
			t.Fatalf("prompt missing %q:\n%s", want, user)
		}
	}
	if strings.Contains(user, "ctex") {
		t.Fatal("ctex instruction should only appear for CJK plans")
	}
}

func TestGenerateRequestsCJKSupport(t *testing.T) {
	fake := llm.NewFake(fakeDoc)
	p := testPlan()
	p.Language = "zh"

	if _, err := New(fake, "").Generate(context.Background(), p); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(fake.Prompts[0].User, "ctex") {
		t.Fatal("expected ctex instruction for zh plan")
	}
}

func TestGenerateRejectsStructurallyBrokenOutput(t *testing.T) {
	fake := llm.NewFake("just some prose, no document at all")
	_, err := New(fake, "").Generate(context.Background(), testPlan())

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
}

func TestGeneratePropagatesClientError(t *testing.T) {
	fake := llm.NewFake().QueueError(errors.New("rate limited"))
	_, err := New(fake, "").Generate(context.Background(), testPlan())
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected client error, got %v", err)
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		t.Fatal("transport failure must not be a GenerationError")
	}
}
