package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"jarvisrelay/internal/domain"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const slackMaxMsgLen = 4000

// Slack implements domain.Session for Slack using Socket Mode.
type Slack struct {
	client *slack.Client
	socket *socketmode.Client
	botUID string
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// DialSlack logs in with the app-level token in creds.Account and the bot
// token in creds.Secret.
func DialSlack(ctx context.Context, creds domain.Credentials, logger *slog.Logger) (*Slack, error) {
	if creds.Secret == "" || creds.Account == "" {
		return nil, fmt.Errorf("slack: bot token and app-level token are required")
	}
	api := slack.New(
		creds.Secret,
		slack.OptionAppLevelToken(creds.Account),
	)

	authResp, err := api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack auth: %w", err)
	}
	logger.Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID)

	return &Slack{
		client: api,
		socket: socketmode.New(api),
		botUID: authResp.UserID,
		logger: logger,
	}, nil
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) SelfID() string { return s.botUID }

// Listen runs the Socket Mode connection and hands each message to h.
func (s *Slack) Listen(ctx context.Context, h domain.Handler) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.socket.RunContext(runCtx)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("slack bot disconnecting")
			return nil
		case err := <-errCh:
			if runCtx.Err() != nil {
				return nil
			}
			return fmt.Errorf("slack socket mode: %w", err)
		case evt, ok := <-s.socket.Events:
			if !ok {
				return nil
			}
			s.dispatch(ctx, evt, h)
		}
	}
}

func (s *Slack) dispatch(ctx context.Context, evt socketmode.Event, h domain.Handler) {
	// Acknowledge everything to prevent Socket Mode disconnection.
	if evt.Request != nil {
		s.socket.Ack(*evt.Request)
	}

	if evt.Type == socketmode.EventTypeConnectionError {
		s.logger.Warn("slack connection error", "data", evt.Data)
		return
	}
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}

	event, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok || event.Type != slackevents.CallbackEvent {
		return
	}
	ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	// message_changed, channel_join and friends carry no new order.
	if ev.User == "" || ev.SubType != "" {
		return
	}
	deliver(ctx, h, slackMessage(ev), s.logger)
}

func slackMessage(ev *slackevents.MessageEvent) domain.Message {
	threadType := domain.ThreadGroup
	if ev.ChannelType == "im" {
		threadType = domain.ThreadUser
	}
	return domain.Message{
		SenderID:   ev.User,
		Text:       ev.Text,
		ThreadID:   ev.Channel,
		ThreadType: threadType,
		MessageID:  ev.TimeStamp,
		Timestamp:  slackTime(ev.TimeStamp),
	}
}

// slackTime converts a "1700000000.000100" message timestamp.
func slackTime(ts string) time.Time {
	secs, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(n, 0)
}

func (s *Slack) StopListening() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Logout closes the socket; bot tokens stay valid.
func (s *Slack) Logout() error {
	s.StopListening()
	return nil
}

// MarkDelivered is a no-op, Slack has no delivery receipts.
func (s *Slack) MarkDelivered(ctx context.Context, msg domain.Message) error { return nil }

// MarkRead is a no-op, conversations.mark rejects bot tokens.
func (s *Slack) MarkRead(ctx context.Context, msg domain.Message) error { return nil }

func (s *Slack) Send(ctx context.Context, text, threadID string, threadType domain.ThreadType) error {
	for _, chunk := range splitMessage(text, slackMaxMsgLen) {
		_, _, err := s.client.PostMessageContext(ctx, threadID, slack.MsgOptionText(chunk, false))
		if err != nil {
			return fmt.Errorf("slack send: %w", err)
		}
	}
	return nil
}
