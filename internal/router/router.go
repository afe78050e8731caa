// Package router dispatches inbound updates to command handlers. It
// resolves the command token, enforces admin-only access, and falls
// through to the text or video handler when no command matches.
package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	kit "github.com/SHW4T/CONVO-DOWNLO/internal/transport"
	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

// Request is the per-update context handed to handlers.
type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string

	Adapter kit.Adapter
	Logger  logx.Logger
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.Int64("chat_id", req.Chat.ChatID),
				logx.Int64("from_id", req.FromID),
				logx.String("cmd", req.Command),
				logx.Duration("dur", d),
			}
			if err != nil {
				log.Warn("request failed", append(fields, logx.Err(err))...)
			} else {
				log.Info("request ok", fields...)
			}
			return err
		}
	}
}

// Command is one registered slash command.
type Command struct {
	Name        string
	Description string
	Access      Access
	Handle      HandlerFunc
}

// DeniedText is sent when a non-admin invokes an admin-only command.
const DeniedText = "You are not authorized to use this command."

type Router struct {
	mu       sync.RWMutex
	commands map[string]Command
	admins   map[int64]bool

	// OnText handles non-command text, OnVideo messages carrying video.
	// Either may be nil.
	OnText  HandlerFunc
	OnVideo HandlerFunc

	// Observe, when set, runs for every update before dispatch. Used for
	// interaction recording; its errors are the observer's to log.
	Observe func(ctx context.Context, req *Request)

	adapter kit.Adapter
	mws     []Middleware
	log     logx.Logger
}

func New(adapter kit.Adapter, admins []int64, log logx.Logger, mws ...Middleware) *Router {
	set := make(map[int64]bool, len(admins))
	for _, id := range admins {
		set[id] = true
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		commands: map[string]Command{},
		admins:   set,
		adapter:  adapter,
		mws:      mws,
		log:      log,
	}
}

// SetAdmins replaces the admin allow-list. Safe during hot-reload.
func (r *Router) SetAdmins(admins []int64) {
	set := make(map[int64]bool, len(admins))
	for _, id := range admins {
		set[id] = true
	}
	r.mu.Lock()
	r.admins = set
	r.mu.Unlock()
}

func (r *Router) Register(cmd Command) {
	r.mu.Lock()
	r.commands[cmd.Name] = cmd
	r.mu.Unlock()
}

// Commands returns the registered commands for the platform menu.
func (r *Router) Commands() []kit.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kit.BotCommand, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

func (r *Router) IsAdmin(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admins[userID]
}

// Dispatch routes one update. All handler errors are logged by the
// request-log middleware; Dispatch itself never fails the loop.
func (r *Router) Dispatch(ctx context.Context, upd kit.Update) {
	if upd.Kind != kit.UpdateMessage || upd.Message == nil {
		return
	}
	msg := upd.Message
	req := &Request{
		Message: msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Adapter: r.adapter,
		Logger:  r.log,
	}

	if r.Observe != nil {
		r.Observe(ctx, req)
	}

	h := r.resolve(req)
	if h == nil {
		return
	}
	_ = Chain(h, r.mws...)(ctx, req)
}

func (r *Router) resolve(req *Request) HandlerFunc {
	msg := req.Message
	if name, args, ok := parseCommand(msg.Text); ok {
		req.Command = name
		req.Args = args

		r.mu.RLock()
		cmd, found := r.commands[name]
		r.mu.RUnlock()
		if !found {
			return nil
		}
		if cmd.Access == AccessAdminOnly && !r.IsAdmin(req.FromID) {
			return func(ctx context.Context, req *Request) error {
				_, err := req.Adapter.SendText(ctx, req.Chat, DeniedText, nil)
				return err
			}
		}
		return cmd.Handle
	}
	if msg.Video != nil {
		req.Command = "(video)"
		return r.OnVideo
	}
	if strings.TrimSpace(msg.Text) != "" {
		req.Command = "(text)"
		return r.OnText
	}
	return nil
}

// parseCommand splits "/cmd@bot arg1 arg2" into its name and args.
func parseCommand(text string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	name = strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return name, fields[1:], true
}
