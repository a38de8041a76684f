package llm

import (
	"context"
	"errors"
	"testing"

	"git.home.luguber.info/inful/deckforge/internal/config"
)

// TestNewRejectsMissingKey covers constructor validation.
func TestNewRejectsMissingKey(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "openai", Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "anthropic", Model: "m", APIKey: "k"})
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestNewOpenAI(t *testing.T) {
	c, err := New(config.LLMConfig{Provider: "openai", Model: "gpt-4o", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.Model() != "gpt-4o" {
		t.Fatalf("model mismatch: %s", c.Model())
	}
}

// TestFakeScript verifies ordered replies, error replies and exhaustion.
func TestFakeScript(t *testing.T) {
	f := NewFake("first", "second").QueueError(errors.New("boom"))

	ctx := context.Background()
	for i, want := range []string{"first", "second"} {
		got, err := f.Complete(ctx, Prompt{User: "u"})
		if err != nil || got != want {
			t.Fatalf("call %d: got (%q, %v), want %q", i, got, err, want)
		}
	}
	if _, err := f.Complete(ctx, Prompt{}); err == nil {
		t.Fatal("expected scripted error")
	}
	if _, err := f.Complete(ctx, Prompt{}); err == nil {
		t.Fatal("expected exhaustion error")
	}
	if f.Calls() != 4 {
		t.Fatalf("expected 4 recorded calls, got %d", f.Calls())
	}
}

// TestFakeHonorsCancellation mirrors the real client's context behavior.
func TestFakeHonorsCancellation(t *testing.T) {
	f := NewFake("unused")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Complete(ctx, Prompt{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
