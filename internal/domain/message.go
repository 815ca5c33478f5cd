package domain

import "time"

// ThreadType tells direct conversations from group ones.
type ThreadType string

const (
	ThreadUser  ThreadType = "user"
	ThreadGroup ThreadType = "group"
)

type Message struct {
	SenderID   string
	Text       string
	ThreadID   string
	ThreadType ThreadType
	MessageID  string // platform message reference, used for read marks
	Timestamp  time.Time
}
