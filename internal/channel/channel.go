// Package channel implements domain.Session for the supported chat platforms.
package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"jarvisrelay/internal/domain"
)

// DialFunc logs in to a platform and returns the session.
type DialFunc func(ctx context.Context, creds domain.Credentials) (domain.Session, error)

// Options carries what the backends need besides credentials.
type Options struct {
	Logger *slog.Logger
	In     io.Reader // console only
	Out    io.Writer // console only
}

// NewDialer returns the DialFunc for platform.
func NewDialer(platform string, opts Options) (DialFunc, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	switch platform {
	case "telegram":
		return func(ctx context.Context, creds domain.Credentials) (domain.Session, error) {
			return DialTelegram(ctx, creds, opts.Logger)
		}, nil
	case "slack":
		return func(ctx context.Context, creds domain.Credentials) (domain.Session, error) {
			return DialSlack(ctx, creds, opts.Logger)
		}, nil
	case "discord":
		return func(ctx context.Context, creds domain.Credentials) (domain.Session, error) {
			return DialDiscord(ctx, creds, opts.Logger)
		}, nil
	case "feishu":
		return func(ctx context.Context, creds domain.Credentials) (domain.Session, error) {
			return DialFeishu(ctx, creds, opts.Logger)
		}, nil
	case "console":
		return func(ctx context.Context, creds domain.Credentials) (domain.Session, error) {
			return NewConsole(ConsoleConfig{
				SenderID: creds.Account,
				In:       opts.In,
				Out:      opts.Out,
				Logger:   opts.Logger,
			}), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown platform: %s", platform)
}

// deliver runs h for one message and logs a failure; one bad message never
// ends the listen loop.
func deliver(ctx context.Context, h domain.Handler, msg domain.Message, logger *slog.Logger) {
	if err := h.HandleMessage(ctx, msg); err != nil {
		logger.Error("message handler failed",
			"sender_id", msg.SenderID,
			"thread_id", msg.ThreadID,
			"err", err,
		)
	}
}

// splitMessage splits a message into chunks of at most maxLen bytes, trying
// to split on newlines when possible. Chunks stay valid UTF-8.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		} else {
			// Never cut inside a multi-byte rune.
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
