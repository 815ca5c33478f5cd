package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"jarvisrelay/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen   = 4000
	telegramPollTimeout = 30
)

// Telegram implements domain.Session for a Telegram bot using long polling.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger

	// StopReceivingUpdates panics when called twice.
	stopOnce sync.Once
}

// DialTelegram logs in with the bot token carried in creds.Secret.
func DialTelegram(ctx context.Context, creds domain.Credentials, logger *slog.Logger) (*Telegram, error) {
	if creds.Secret == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return &Telegram{bot: bot, logger: logger}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) SelfID() string { return strconv.FormatInt(t.bot.Self.ID, 10) }

// Listen polls for updates and hands each text message to h.
func (t *Telegram) Listen(ctx context.Context, h domain.Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = telegramPollTimeout
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			t.StopListening()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if msg, ok := telegramMessage(update); ok {
				deliver(ctx, h, msg, t.logger)
			}
		}
	}
}

func telegramMessage(update tgbotapi.Update) (domain.Message, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return domain.Message{}, false
	}
	threadType := domain.ThreadGroup
	if m.Chat.IsPrivate() {
		threadType = domain.ThreadUser
	}
	return domain.Message{
		SenderID:   strconv.FormatInt(m.From.ID, 10),
		Text:       m.Text,
		ThreadID:   strconv.FormatInt(m.Chat.ID, 10),
		ThreadType: threadType,
		MessageID:  strconv.Itoa(m.MessageID),
		Timestamp:  time.Unix(int64(m.Date), 0),
	}, true
}

func (t *Telegram) StopListening() {
	t.stopOnce.Do(t.bot.StopReceivingUpdates)
}

// Logout stops polling. Bots have no session to end; the Bot API logOut
// method would lock the token out of the cloud server instead.
func (t *Telegram) Logout() error {
	t.StopListening()
	return nil
}

// MarkDelivered shows the typing indicator while the assistant works.
func (t *Telegram) MarkDelivered(ctx context.Context, msg domain.Message) error {
	chatID, err := strconv.ParseInt(msg.ThreadID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	if _, err := t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("telegram chat action: %w", err)
	}
	return nil
}

// MarkRead is a no-op, the Bot API has no read receipts.
func (t *Telegram) MarkRead(ctx context.Context, msg domain.Message) error { return nil }

func (t *Telegram) Send(ctx context.Context, text, threadID string, threadType domain.ThreadType) error {
	chatID, err := strconv.ParseInt(threadID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}
