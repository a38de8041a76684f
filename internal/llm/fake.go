package llm

import (
	"context"
	"errors"
	"sync"
)

// Fake is a scripted Client for tests: each Complete call pops the next
// queued response. It records the prompts it received.
type Fake struct {
	mu        sync.Mutex
	responses []fakeResponse
	Prompts   []Prompt
}

type fakeResponse struct {
	text string
	err  error
}

// NewFake creates a fake client that replies with the given texts in order.
func NewFake(responses ...string) *Fake {
	f := &Fake{}
	for _, r := range responses {
		f.responses = append(f.responses, fakeResponse{text: r})
	}
	return f
}

// QueueError appends an error reply to the script.
func (f *Fake) QueueError(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{err: err})
	return f
}

// Queue appends a text reply to the script.
func (f *Fake) Queue(text string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{text: text})
	return f
}

func (f *Fake) Model() string { return "fake-model" }

func (f *Fake) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, prompt)
	if len(f.responses) == 0 {
		return "", errors.New("fake llm: script exhausted")
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next.text, next.err
}

// Calls returns how many completions have been issued.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Prompts)
}
