package jarvis

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeScript creates an executable shell script standing in for jarvis.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jarvis")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestClient_Args(t *testing.T) {
	tests := []struct {
		mute, verbose bool
		want          string
	}{
		{false, false, "-j -x hello"},
		{true, false, "-j -m -x hello"},
		{false, true, "-j -v -x hello"},
		{true, true, "-j -m -v -x hello"},
	}
	for _, tt := range tests {
		c := NewClient(ClientConfig{Mute: tt.mute, Verbose: tt.verbose, Logger: testLogger()})
		if got := strings.Join(c.Args("hello"), " "); got != tt.want {
			t.Errorf("mute=%v verbose=%v: got %q, want %q", tt.mute, tt.verbose, got, tt.want)
		}
	}
}

func TestNewClient_DefaultProgram(t *testing.T) {
	c := NewClient(ClientConfig{})
	if c.Program() != "jarvis" {
		t.Fatalf("Program: got %q", c.Program())
	}
}

func TestClient_Ask_PassesTextAsSingleArgument(t *testing.T) {
	// Print the argument following -x inside a JSON answer.
	script := writeScript(t, `while [ $# -gt 0 ]; do
  if [ "$1" = "-x" ]; then shift; printf '[{"answer": "%s"}]' "$1"; exit 0; fi
  shift
done
exit 3`)
	c := NewClient(ClientConfig{Program: script, Mute: true, Logger: testLogger()})

	out, err := c.Ask(context.Background(), "what time is it")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if string(out) != `[{"answer": "what time is it"}]` {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestClient_Ask_NonZeroExitIsEmpty(t *testing.T) {
	script := writeScript(t, `echo '[{"answer": "partial"}]'; echo oops >&2; exit 1`)
	c := NewClient(ClientConfig{Program: script, Logger: testLogger()})

	out, err := c.Ask(context.Background(), "hi")
	if err != nil {
		t.Fatalf("non-zero exit should not be an error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestClient_Ask_MissingProgram(t *testing.T) {
	c := NewClient(ClientConfig{Program: filepath.Join(t.TempDir(), "no-such-jarvis"), Logger: testLogger()})
	if _, err := c.Ask(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for missing program")
	}
}

func TestClient_Ask_TimeoutIsEmpty(t *testing.T) {
	script := writeScript(t, `exec sleep 5`)
	c := NewClient(ClientConfig{Program: script, Timeout: 100 * time.Millisecond, Logger: testLogger()})

	out, err := c.Ask(context.Background(), "hi")
	if err != nil {
		t.Fatalf("timeout should not be an error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestClient_Ask_CancelledContext(t *testing.T) {
	script := writeScript(t, `sleep 5`)
	c := NewClient(ClientConfig{Program: script, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Ask(ctx, "hi"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
