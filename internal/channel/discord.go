package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"jarvisrelay/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxMsgLen = 2000
	discordInboxSize = 64
)

// Discord implements domain.Session for a Discord bot.
type Discord struct {
	session *discordgo.Session
	logger  *slog.Logger

	// discordgo calls handlers on its own goroutines; inbox serializes them.
	inbox    chan domain.Message
	stop     chan struct{}
	stopOnce sync.Once
}

// DialDiscord connects with the bot token carried in creds.Secret.
func DialDiscord(ctx context.Context, creds domain.Credentials, logger *slog.Logger) (*Discord, error) {
	if creds.Secret == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	session, err := discordgo.New("Bot " + creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	d := &Discord{
		session: session,
		logger:  logger,
		inbox:   make(chan domain.Message, discordInboxSize),
		stop:    make(chan struct{}),
	}
	session.AddHandler(d.onMessageCreate)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord connect: %w", err)
	}
	logger.Info("discord bot connected", "user", session.State.User.Username, "id", session.State.User.ID)
	return d, nil
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	threadType := domain.ThreadGroup
	if m.GuildID == "" {
		threadType = domain.ThreadUser
	}
	msg := domain.Message{
		SenderID:   m.Author.ID,
		Text:       m.Content,
		ThreadID:   m.ChannelID,
		ThreadType: threadType,
		MessageID:  m.ID,
		Timestamp:  m.Timestamp,
	}
	select {
	case d.inbox <- msg:
	case <-d.stop:
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) SelfID() string {
	if d.session.State == nil || d.session.State.User == nil {
		return ""
	}
	return d.session.State.User.ID
}

// Listen hands queued messages to h one at a time.
func (d *Discord) Listen(ctx context.Context, h domain.Handler) error {
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("discord bot disconnecting")
			return nil
		case <-d.stop:
			return nil
		case msg := <-d.inbox:
			deliver(ctx, h, msg, d.logger)
		}
	}
}

func (d *Discord) StopListening() {
	d.stopOnce.Do(func() { close(d.stop) })
}

func (d *Discord) Logout() error {
	d.StopListening()
	if err := d.session.Close(); err != nil {
		return fmt.Errorf("discord close: %w", err)
	}
	return nil
}

// MarkDelivered shows the typing indicator while the assistant works.
func (d *Discord) MarkDelivered(ctx context.Context, msg domain.Message) error {
	if err := d.session.ChannelTyping(msg.ThreadID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord typing: %w", err)
	}
	return nil
}

// MarkRead is a no-op, bots cannot acknowledge messages.
func (d *Discord) MarkRead(ctx context.Context, msg domain.Message) error { return nil }

func (d *Discord) Send(ctx context.Context, text, threadID string, threadType domain.ThreadType) error {
	for _, chunk := range splitMessage(text, discordMaxMsgLen) {
		if _, err := d.session.ChannelMessageSend(threadID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}
