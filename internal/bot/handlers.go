// Package bot wires the command surface: it binds the router's routes to
// the job runner, the broadcast coordinator, the chat client and the
// registry, and owns every user-facing text of the command layer.
package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/SHW4T/CONVO-DOWNLO/internal/broadcast"
	"github.com/SHW4T/CONVO-DOWNLO/internal/chat"
	"github.com/SHW4T/CONVO-DOWNLO/internal/job"
	"github.com/SHW4T/CONVO-DOWNLO/internal/registry"
	"github.com/SHW4T/CONVO-DOWNLO/internal/router"
	kit "github.com/SHW4T/CONVO-DOWNLO/internal/transport"
	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

// Fixed command-surface texts.
const (
	msgWelcome = "Hi! I'm your media bot. I can:\n" +
		"1. Convert videos to MP3 - reply to a video with /convert\n" +
		"2. Download Instagram reels - send /reel <URL>\n" +
		"3. Chat with me by just sending any text message!"
	msgConvertUsage   = "Please reply to a video file with /convert"
	msgReelUsage      = "Please send the Instagram reel URL after /reel command"
	msgReelBadURL     = "Please provide a valid Instagram reel URL"
	msgNoUsers        = "No user data available yet."
	msgNoLinks        = "No links have been shared yet."
	msgBroadcastUsage = "Please reply to a message with /broadcast to forward it to all users."
	msgNoTargets      = "No users to broadcast to."
)

// chunkSize is Telegram's message length limit.
const chunkSize = 4096

type Handlers struct {
	runner      *job.Runner
	broadcaster *broadcast.Coordinator
	chat        *chat.Client
	store       registry.Store

	// targetChannel receives a copy of every video the bot sees (0 = off).
	targetChannel int64

	log logx.Logger
}

func NewHandlers(runner *job.Runner, broadcaster *broadcast.Coordinator, chatClient *chat.Client, store registry.Store, targetChannel int64, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{
		runner:        runner,
		broadcaster:   broadcaster,
		chat:          chatClient,
		store:         store,
		targetChannel: targetChannel,
		log:           log,
	}
}

// Install registers every route on the router and hooks interaction
// recording into the dispatch path.
func (h *Handlers) Install(r *router.Router) {
	r.Observe = h.observe
	r.OnText = h.handleText
	r.OnVideo = h.handleVideo

	r.Register(router.Command{Name: "start", Description: "Show what the bot can do", Handle: h.handleStart})
	r.Register(router.Command{Name: "convert", Description: "Convert a replied-to video to MP3", Handle: h.handleConvert})
	r.Register(router.Command{Name: "reel", Description: "Download an Instagram reel", Handle: h.handleReel})
	r.Register(router.Command{Name: "users", Description: "List registered users", Access: router.AccessAdminOnly, Handle: h.handleUsers})
	r.Register(router.Command{Name: "links", Description: "List submitted links", Access: router.AccessAdminOnly, Handle: h.handleLinks})
	r.Register(router.Command{Name: "broadcast", Description: "Copy the replied-to message to all users", Access: router.AccessAdminOnly, Handle: h.handleBroadcast})
}

// observe records the interaction for every inbound update, including
// commands that later fail authorization. Persistence failures never
// block the handling path.
func (h *Handlers) observe(ctx context.Context, req *router.Request) {
	msg := req.Message
	if msg.FromID == 0 {
		return
	}
	if err := h.store.Upsert(ctx, msg.FromID, msg.FromUsername, msg.FromName); err != nil {
		h.log.Warn("interaction not recorded", logx.Int64("user_id", msg.FromID), logx.Err(err))
	}
}

func (h *Handlers) handleStart(ctx context.Context, req *router.Request) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, msgWelcome, nil)
	return err
}

func (h *Handlers) handleConvert(ctx context.Context, req *router.Request) error {
	reply := req.Message.ReplyTo
	if reply == nil || reply.Video == nil {
		_, err := req.Adapter.SendText(ctx, req.Chat, msgConvertUsage, nil)
		return err
	}

	j := &job.Job{
		ID:        uuid.NewString(),
		Kind:      job.KindTranscode,
		Requester: req.Chat,
		ReplyTo:   req.Message.ID,
		FileID:    reply.Video.FileID,
	}
	return h.runner.Run(ctx, j)
}

func (h *Handlers) handleReel(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		_, err := req.Adapter.SendText(ctx, req.Chat, msgReelUsage, nil)
		return err
	}
	url := req.Args[0]

	// The submission is recorded before validation; malformed links are
	// part of the ledger too.
	if err := h.store.AppendLink(ctx, req.FromID, url, "instagram_reel"); err != nil {
		h.log.Warn("link not recorded", logx.Int64("user_id", req.FromID), logx.Err(err))
	}

	if _, err := job.ParseReelShortcode(url); err != nil {
		_, serr := req.Adapter.SendText(ctx, req.Chat, msgReelBadURL, nil)
		return serr
	}

	j := &job.Job{
		ID:        uuid.NewString(),
		Kind:      job.KindRemoteDownload,
		Requester: req.Chat,
		ReplyTo:   req.Message.ID,
		URL:       url,
	}
	return h.runner.Run(ctx, j)
}

func (h *Handlers) handleUsers(ctx context.Context, req *router.Request) error {
	users, err := h.store.Users(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		_, err := req.Adapter.SendText(ctx, req.Chat, msgNoUsers, nil)
		return err
	}

	ids := sortedKeys(users)
	var b strings.Builder
	b.WriteString("📊 Bot Users:\n\n")
	for _, id := range ids {
		u := users[id]
		fmt.Fprintf(&b, "👤 User ID: %d\n", id)
		fmt.Fprintf(&b, "🆔 Username: @%s\n", orNA(u.Username))
		fmt.Fprintf(&b, "📛 Name: %s\n", orNA(u.DisplayName))
		fmt.Fprintf(&b, "📅 First seen: %s\n", u.FirstSeen.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "🔄 Last interaction: %s\n", u.LastInteraction.Format("2006-01-02 15:04:05"))
		b.WriteString("────────────────────\n")
	}
	return sendChunked(ctx, req, b.String())
}

func (h *Handlers) handleLinks(ctx context.Context, req *router.Request) error {
	links, err := h.store.Links(ctx)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		_, err := req.Adapter.SendText(ctx, req.Chat, msgNoLinks, nil)
		return err
	}
	users, err := h.store.Users(ctx)
	if err != nil {
		return err
	}

	ids := sortedKeys(links)
	var b strings.Builder
	b.WriteString("🔗 Shared Links:\n\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "👤 User: @%s (ID: %d)\n", orNA(users[id].Username), id)
		for _, l := range links[id] {
			fmt.Fprintf(&b, "🔗 %s: %s\n", l.Type, l.Link)
			fmt.Fprintf(&b, "⏰ %s\n", l.Timestamp.Format("2006-01-02 15:04:05"))
			b.WriteString("────────────────────\n")
		}
	}
	return sendChunked(ctx, req, b.String())
}

func (h *Handlers) handleBroadcast(ctx context.Context, req *router.Request) error {
	if req.Message.ReplyTo == nil {
		_, err := req.Adapter.SendText(ctx, req.Chat, msgBroadcastUsage, nil)
		return err
	}
	targets, err := h.store.UserIDs(ctx)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		_, err := req.Adapter.SendText(ctx, req.Chat, msgNoTargets, nil)
		return err
	}

	run, err := h.broadcaster.Run(ctx, req.Chat, req.Chat, req.Message.ReplyTo.ID, targets)
	if err != nil {
		return err
	}
	h.log.Info("broadcast finished",
		logx.Int("total", run.Total),
		logx.Int("success", run.Success),
		logx.Int("failed", run.Failed))
	return nil
}

func (h *Handlers) handleText(ctx context.Context, req *router.Request) error {
	reply := h.chat.Reply(ctx, req.Message.Text)
	_, err := req.Adapter.SendText(ctx, req.Chat, reply, nil)
	return err
}

// handleVideo mirrors any video the bot sees into the target channel,
// attributed to the sender. Mirroring is best-effort.
func (h *Handlers) handleVideo(ctx context.Context, req *router.Request) error {
	if h.targetChannel == 0 || req.Message.Video == nil {
		return nil
	}
	caption := fmt.Sprintf("From: @%s\n%s", req.Message.FromUsername, req.Message.Caption)
	err := req.Adapter.SendVideoID(ctx, kit.ChatTarget{ChatID: h.targetChannel}, req.Message.Video.FileID, caption, nil)
	if err != nil {
		h.log.Error("video mirror failed", logx.Int64("chat_id", req.Chat.ChatID), logx.Err(err))
	}
	return nil
}

func sendChunked(ctx context.Context, req *router.Request, text string) error {
	for len(text) > 0 {
		n := len(text)
		if n > chunkSize {
			n = chunkSize
		}
		if _, err := req.Adapter.SendText(ctx, req.Chat, text[:n], nil); err != nil {
			return err
		}
		text = text[n:]
	}
	return nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func sortedKeys[M ~map[int64]V, V any](m M) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
