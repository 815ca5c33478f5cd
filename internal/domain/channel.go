package domain

import "context"

// Credentials identify the relay's own account on the chat platform.
// Backends decide what Account and Secret mean (bot token, app ID, ...).
type Credentials struct {
	Account string
	Secret  string
}

// Handler receives inbound messages from a Session.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Session is one authenticated connection to a chat platform.
type Session interface {
	Name() string

	// SelfID is the session's own sender identifier.
	SelfID() string

	// Listen blocks delivering messages to h one at a time. It returns nil
	// when ctx is cancelled or the platform closes the stream cleanly, and
	// an error when the session fails.
	Listen(ctx context.Context, h Handler) error

	StopListening()
	Logout() error

	MarkDelivered(ctx context.Context, msg Message) error
	MarkRead(ctx context.Context, msg Message) error
	Send(ctx context.Context, text, threadID string, threadType ThreadType) error
}
