// Package relay turns inbound chat messages into Jarvis orders and sends the
// answers back to the conversation they came from.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"jarvisrelay/internal/config"
	"jarvisrelay/internal/domain"
	"jarvisrelay/internal/jarvis"
	"jarvisrelay/internal/metrics"
)

const (
	refusalFormat  = "You don't have right to speak to Jarvis! (Your ID is %s)"
	fallbackFormat = "Can't parse Jarvis response: '%s'"
	revealFormat   = "Your ID is '%s'"
)

// Assistant answers one normalized order with the assistant's raw output.
type Assistant interface {
	Ask(ctx context.Context, text string) ([]byte, error)
}

// Options are the per-process relay settings.
type Options struct {
	Verbose        bool
	RevealSenderID bool
	AllowAll       bool
	AllowedIDs     config.IDList
}

// OptionsFromConfig extracts the handler settings from the startup config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Verbose:        cfg.Verbose,
		RevealSenderID: cfg.RevealSenderID,
		AllowAll:       cfg.AllowAll,
		AllowedIDs:     append(config.IDList(nil), cfg.AllowedIDs...),
	}
}

// Handler implements domain.Handler for a single session.
type Handler struct {
	session   domain.Session
	assistant Assistant
	opts      Options
	logger    *slog.Logger
}

type HandlerConfig struct {
	Session   domain.Session
	Assistant Assistant
	Options   Options
	Logger    *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		session:   cfg.Session,
		assistant: cfg.Assistant,
		opts:      cfg.Options,
		logger:    cfg.Logger,
	}
}

var _ domain.Handler = (*Handler)(nil)

// Factory binds a new Handler to each session the supervisor dials.
func Factory(assistant Assistant, opts Options, logger *slog.Logger) func(domain.Session) domain.Handler {
	return func(s domain.Session) domain.Handler {
		return NewHandler(HandlerConfig{
			Session:   s,
			Assistant: assistant,
			Options:   opts,
			Logger:    logger,
		})
	}
}

// HandleMessage processes one inbound message to completion.
func (h *Handler) HandleMessage(ctx context.Context, msg domain.Message) error {
	if msg.SenderID == h.session.SelfID() {
		return nil
	}
	metrics.MessagesTotal.Inc()

	if err := h.session.MarkDelivered(ctx, msg); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if err := h.session.MarkRead(ctx, msg); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	if !h.opts.AllowAll && !h.opts.AllowedIDs.Contains(msg.SenderID) {
		metrics.RefusedTotal.Inc()
		err := h.reply(ctx, msg, fmt.Sprintf(refusalFormat, msg.SenderID))
		h.logger.Warn("unauthorized sender", "sender_id", msg.SenderID, "thread_id", msg.ThreadID)
		return err
	}

	text := Normalize(msg.Text)
	h.logger.Debug("message received",
		"sender_id", msg.SenderID,
		"thread_id", msg.ThreadID,
		"thread_type", msg.ThreadType,
		"text", text,
	)

	answer, err := h.answer(ctx, text)
	if err != nil {
		return err
	}

	var errs []error
	if answer != "" {
		errs = append(errs, h.reply(ctx, msg, answer))
	}

	if h.opts.RevealSenderID {
		errs = append(errs, h.reply(ctx, msg, fmt.Sprintf(revealFormat, msg.SenderID)))
	}
	return errors.Join(errs...)
}

// answer runs the order and returns the text to send back, which is empty
// when there is nothing to say. Only cancellation of ctx is an error.
func (h *Handler) answer(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", nil
	}

	out, err := h.assistant.Ask(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		h.logger.Error("assistant invocation failed", "err", err)
		metrics.AssistantFailures.Inc()
		return "", nil
	}

	resp, err := jarvis.Parse(out)
	if err != nil {
		h.logger.Warn("can't parse assistant output", "output", string(out), "err", err)
		metrics.AssistantFailures.Inc()
		return "", nil
	}
	h.logger.Debug("assistant response", "raw", resp.Raw())

	reply, err := FormatReply(resp, h.opts.Verbose)
	if err != nil {
		h.logger.Warn("unexpected assistant response", "err", err)
		return fmt.Sprintf(fallbackFormat, resp.Raw()), nil
	}
	return reply, nil
}

func (h *Handler) reply(ctx context.Context, msg domain.Message, text string) error {
	if err := h.session.Send(ctx, text, msg.ThreadID, msg.ThreadType); err != nil {
		return fmt.Errorf("send to %s: %w", msg.ThreadID, err)
	}
	metrics.RepliesTotal.Inc()
	return nil
}
