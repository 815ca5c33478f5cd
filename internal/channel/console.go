package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"jarvisrelay/internal/domain"
)

const (
	consoleSelfID   = "jarvis"
	consoleSenderID = "console"
	consoleThreadID = "console"
)

// Console implements domain.Session over a terminal, one line per message.
// It is meant for trying the relay without a chat account.
type Console struct {
	senderID string
	in       io.Reader
	out      io.Writer
	logger   *slog.Logger

	outMu    sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
}

type ConsoleConfig struct {
	SenderID string
	In       io.Reader
	Out      io.Writer
	Logger   *slog.Logger
}

func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.SenderID == "" {
		cfg.SenderID = consoleSenderID
	}
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Console{
		senderID: cfg.SenderID,
		in:       cfg.In,
		out:      cfg.Out,
		logger:   cfg.Logger,
		stop:     make(chan struct{}),
	}
}

func (c *Console) Name() string { return "console" }

func (c *Console) SelfID() string { return consoleSelfID }

// Listen reads lines until EOF, ctx cancellation or StopListening.
func (c *Console) Listen(ctx context.Context, h domain.Handler) error {
	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-c.stop:
				return
			}
		}
		errCh <- scanner.Err()
	}()

	c.prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stop:
			return nil
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("console read: %w", err)
			}
			return nil // EOF
		case line := <-lines:
			deliver(ctx, h, domain.Message{
				SenderID:   c.senderID,
				Text:       strings.TrimRight(line, "\r"),
				ThreadID:   consoleThreadID,
				ThreadType: domain.ThreadUser,
				Timestamp:  time.Now(),
			}, c.logger)
			c.prompt()
		}
	}
}

func (c *Console) prompt() {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprint(c.out, "You> ")
}

func (c *Console) StopListening() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Console) Logout() error {
	c.StopListening()
	return nil
}

func (c *Console) MarkDelivered(ctx context.Context, msg domain.Message) error { return nil }

func (c *Console) MarkRead(ctx context.Context, msg domain.Message) error { return nil }

func (c *Console) Send(ctx context.Context, text, threadID string, threadType domain.ThreadType) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, err := fmt.Fprintf(c.out, "\n--- Jarvis ---\n%s\n--------------\n", text)
	return err
}
