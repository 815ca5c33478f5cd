package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"jarvisrelay/internal/domain"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
)

const (
	feishuInboxSize = 64
	feishuBotInfo   = "/open-apis/bot/v3/info"
)

// Feishu implements domain.Session for a Feishu (Lark) bot over the event
// WebSocket.
type Feishu struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	botOpenID string
	logger    *slog.Logger

	// Event callbacks must return quickly so the SDK can ACK; inbox hands
	// messages to Listen.
	inbox    chan domain.Message
	stop     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	cancel context.CancelFunc
}

// DialFeishu logs in with the app ID in creds.Account and the app secret in
// creds.Secret, and learns the bot's own open_id.
func DialFeishu(ctx context.Context, creds domain.Credentials, logger *slog.Logger) (*Feishu, error) {
	if creds.Account == "" || creds.Secret == "" {
		return nil, fmt.Errorf("feishu: app ID and app secret are required")
	}
	f := &Feishu{
		appID:     creds.Account,
		appSecret: creds.Secret,
		larkCli:   lark.NewClient(creds.Account, creds.Secret),
		logger:    logger,
		inbox:     make(chan domain.Message, feishuInboxSize),
		stop:      make(chan struct{}),
	}
	if err := f.fetchBotOpenID(ctx); err != nil {
		return nil, fmt.Errorf("feishu login: %w", err)
	}
	return f, nil
}

// fetchBotOpenID asks the bot info endpoint who we are. It doubles as the
// credentials check.
func (f *Feishu) fetchBotOpenID(ctx context.Context) error {
	resp, err := f.larkCli.Get(ctx, feishuBotInfo, nil, larkcore.AccessTokenTypeTenant)
	if err != nil {
		return fmt.Errorf("get bot info: %w", err)
	}

	var botResult struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Bot  struct {
			OpenID  string `json:"open_id"`
			AppName string `json:"app_name"`
		} `json:"bot"`
	}
	if err := json.Unmarshal(resp.RawBody, &botResult); err != nil {
		return fmt.Errorf("decode bot info: %w", err)
	}
	if botResult.Code != 0 {
		return fmt.Errorf("API error: %s", botResult.Msg)
	}

	f.botOpenID = botResult.Bot.OpenID
	f.logger.Info("feishu bot connected", "open_id", f.botOpenID, "name", botResult.Bot.AppName)
	return nil
}

func (f *Feishu) Name() string { return "feishu" }

func (f *Feishu) SelfID() string { return f.botOpenID }

// Listen attaches the session to the app's event WebSocket and hands each
// text message to h.
func (f *Feishu) Listen(ctx context.Context, h domain.Handler) error {
	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()
	defer cancel()

	sock := feishuSocketFor(f.appID, f.appSecret, f.logger)
	sock.attach(f)
	defer sock.detach(f)

	for {
		select {
		case <-runCtx.Done():
			f.logger.Info("feishu channel stopping")
			return nil
		case <-f.stop:
			return nil
		case <-sock.done:
			return fmt.Errorf("feishu websocket: %w", sock.err)
		case msg := <-f.inbox:
			deliver(ctx, h, msg, f.logger)
		}
	}
}

var errFeishuNotListening = errors.New("feishu: no session is listening")

// enqueue queues a message for Listen. An error tells the event service
// the message was not taken so it is delivered again later.
func (f *Feishu) enqueue(event *larkim.P2MessageReceiveV1) error {
	select {
	case <-f.stop:
		return errFeishuNotListening
	default:
	}
	msg, ok := feishuMessage(event)
	if !ok {
		return nil
	}
	select {
	case f.inbox <- msg:
		return nil
	default:
		f.logger.Warn("feishu inbox full, rejecting message", "chat_id", msg.ThreadID)
		return fmt.Errorf("feishu: inbox full")
	}
}

// feishuSocket is one event WebSocket for an app. larkws has no way to close
// a connection once started, so the socket lives for the rest of the process
// and sessions rebuilt by the supervisor attach to it in turn.
type feishuSocket struct {
	mu      sync.Mutex
	current *Feishu

	done chan struct{} // closed if the client gives up
	err  error
}

var feishuSockets = struct {
	mu    sync.Mutex
	byApp map[string]*feishuSocket
}{byApp: make(map[string]*feishuSocket)}

// feishuSocketFor returns the running socket for appID, starting a new one
// if there is none or the previous one failed.
func feishuSocketFor(appID, appSecret string, logger *slog.Logger) *feishuSocket {
	feishuSockets.mu.Lock()
	defer feishuSockets.mu.Unlock()
	if sock, ok := feishuSockets.byApp[appID]; ok && !sock.failed() {
		return sock
	}

	sock := &feishuSocket{done: make(chan struct{})}
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			return sock.route(event)
		})
	wsCli := larkws.NewClient(appID, appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	// Start only returns when it cannot connect; otherwise it reconnects on
	// its own and blocks forever.
	go func() {
		sock.err = wsCli.Start(context.Background())
		if sock.err == nil {
			sock.err = errors.New("client stopped")
		}
		close(sock.done)
	}()
	logger.Info("feishu websocket started", "app_id", appID)

	feishuSockets.byApp[appID] = sock
	return sock
}

func (s *feishuSocket) failed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *feishuSocket) attach(f *Feishu) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = f
}

func (s *feishuSocket) detach(f *Feishu) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == f {
		s.current = nil
	}
}

// route hands an event to the attached session, or refuses it while none
// is listening.
func (s *feishuSocket) route(event *larkim.P2MessageReceiveV1) error {
	s.mu.Lock()
	f := s.current
	s.mu.Unlock()
	if f == nil {
		return errFeishuNotListening
	}
	return f.enqueue(event)
}

func feishuMessage(event *larkim.P2MessageReceiveV1) (domain.Message, bool) {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return domain.Message{}, false
	}
	raw := event.Event.Message
	if deref(raw.MessageType) != "text" {
		return domain.Message{}, false
	}

	var content struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(deref(raw.Content)), &content); err != nil {
		return domain.Message{}, false
	}

	var sender string
	if s := event.Event.Sender; s != nil && s.SenderId != nil {
		sender = deref(s.SenderId.OpenId)
	}

	threadType := domain.ThreadGroup
	if deref(raw.ChatType) == "p2p" {
		threadType = domain.ThreadUser
	}

	ts := time.Now()
	if ms, err := strconv.ParseInt(deref(raw.CreateTime), 10, 64); err == nil {
		ts = time.UnixMilli(ms)
	}

	return domain.Message{
		SenderID:   sender,
		Text:       content.Text,
		ThreadID:   deref(raw.ChatId),
		ThreadType: threadType,
		MessageID:  deref(raw.MessageId),
		Timestamp:  ts,
	}, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StopListening ends Listen. The shared socket keeps running but refuses
// events until another session attaches.
func (f *Feishu) StopListening() {
	f.stopOnce.Do(func() { close(f.stop) })
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *Feishu) Logout() error {
	f.StopListening()
	return nil
}

// MarkDelivered is a no-op, bots have no delivery receipts.
func (f *Feishu) MarkDelivered(ctx context.Context, msg domain.Message) error { return nil }

// MarkRead is a no-op, messages to a bot are read on receipt.
func (f *Feishu) MarkRead(ctx context.Context, msg domain.Message) error { return nil }

func (f *Feishu) Send(ctx context.Context, text, threadID string, threadType domain.ThreadType) error {
	contentJSON, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(threadID).
			MsgType(larkim.MsgTypeText).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := f.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("feishu send: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("feishu send: %s", resp.Msg)
	}
	return nil
}
