package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"git.home.luguber.info/inful/deckforge/internal/config"
)

// TestContextAttrsFlowIntoLogs verifies run/stage context lands in output.
func TestContextAttrsFlowIntoLogs(t *testing.T) {
	var buf bytes.Buffer
	Setup(config.LoggingConfig{Level: config.LogLevelDebug, Format: config.LogFormatText}, &buf)

	ctx := WithStage(WithRunID(context.Background(), "run-42"), "compiling")
	InfoContext(ctx, "attempt started")

	out := buf.String()
	if !strings.Contains(out, "run.id=run-42") {
		t.Fatalf("missing run id in log output: %s", out)
	}
	if !strings.Contains(out, "stage=compiling") {
		t.Fatalf("missing stage in log output: %s", out)
	}
}

// TestStageOverwrite: the most recent stage wins.
func TestStageOverwrite(t *testing.T) {
	var buf bytes.Buffer
	Setup(config.LoggingConfig{Level: config.LogLevelInfo, Format: config.LogFormatText}, &buf)

	ctx := WithStage(context.Background(), "synthesizing")
	ctx = WithStage(ctx, "repairing")
	WarnContext(ctx, "retrying")

	if out := buf.String(); !strings.Contains(out, "stage=repairing") {
		t.Fatalf("expected latest stage, got: %s", out)
	}
}

// TestJSONFormat selects the JSON handler.
func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Setup(config.LoggingConfig{Level: config.LogLevelInfo, Format: config.LogFormatJSON}, &buf)
	InfoContext(context.Background(), "hello")
	if out := buf.String(); !strings.HasPrefix(out, "{") {
		t.Fatalf("expected JSON output, got: %s", out)
	}
}
