package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

// Message is the platform-neutral view of an inbound chat message.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	Caption      string
	IsGroup      bool

	// Video is non-nil when the message carries a video attachment.
	Video *VideoAttachment

	// ReplyTo is non-nil when the message replies to another message.
	ReplyTo *Message
}

// VideoAttachment describes a video carried by a message.
// FileID is an adapter-specific handle usable with DownloadFile.
type VideoAttachment struct {
	FileID   string
	Duration int // seconds, 0 if unknown
	MIME     string
	Size     int64
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	ReplyTo        int // message id to reply to (0 = none)
}

// Adapter is the messaging transport consumed by the core.
//
// All calls are fallible and may be rate-limited by the remote side.
// Progress edits/deletes are best-effort for callers; delivery of final
// artifacts is not.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error

	SendAudio(ctx context.Context, to ChatTarget, path, caption string, opt *SendOptions) error
	SendVideo(ctx context.Context, to ChatTarget, path, caption string, opt *SendOptions) error

	// SendVideoID re-sends a video the platform already holds, by its
	// adapter-specific file handle.
	SendVideoID(ctx context.Context, to ChatTarget, fileID, caption string, opt *SendOptions) error

	// CopyMessage re-sends an existing message to another chat without the
	// "forwarded from" header.
	CopyMessage(ctx context.Context, to ChatTarget, from ChatTarget, messageID int) error

	// DownloadFile fetches an attachment into dst.
	DownloadFile(ctx context.Context, fileID, dst string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
