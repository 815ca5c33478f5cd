// Package jarvis runs the external Jarvis assistant and decodes its JSON output.
package jarvis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"jarvisrelay/internal/metrics"
)

const (
	defaultProgram    = "jarvis"
	maxStderrLogBytes = 2048
	waitDelay         = 2 * time.Second
)

// Client invokes `jarvis -j [-m] [-v] -x <text>` and returns what it prints.
type Client struct {
	program string
	mute    bool
	verbose bool
	timeout time.Duration
	logger  *slog.Logger
}

type ClientConfig struct {
	Program string
	Mute    bool
	Verbose bool
	Timeout time.Duration // 0 waits for the program to exit on its own
	Logger  *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if strings.TrimSpace(cfg.Program) == "" {
		cfg.Program = defaultProgram
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		program: cfg.Program,
		mute:    cfg.Mute,
		verbose: cfg.Verbose,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// Program returns the executable the client runs.
func (c *Client) Program() string { return c.program }

// Args builds the argument list for one order.
func (c *Client) Args(text string) []string {
	args := []string{"-j"}
	if c.mute {
		args = append(args, "-m")
	}
	if c.verbose {
		args = append(args, "-v")
	}
	return append(args, "-x", text)
}

// Ask runs the assistant with text and returns its standard output.
// A non-zero exit or a timeout yields empty output and no error; failing to
// start the program or cancellation of ctx are errors.
func (c *Client) Ask(ctx context.Context, text string) ([]byte, error) {
	args := c.Args(text)
	c.logger.Debug("sending order to assistant", "program", c.program, "args", args)

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, c.program, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	metrics.AssistantLatency.ObserveSince(start)
	if err == nil {
		return stdout.Bytes(), nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("assistant cancelled: %w", ctx.Err())
	}
	if runCtx.Err() != nil {
		c.logger.Warn("assistant timed out", "timeout", c.timeout)
		return nil, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		c.logger.Debug("assistant exited with error",
			"code", exitErr.ExitCode(),
			"stderr", truncate(stderr.String(), maxStderrLogBytes),
		)
		return nil, nil
	}
	return nil, fmt.Errorf("run %s: %w", c.program, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
