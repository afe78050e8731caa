package bot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SHW4T/CONVO-DOWNLO/internal/artifact"
	"github.com/SHW4T/CONVO-DOWNLO/internal/broadcast"
	"github.com/SHW4T/CONVO-DOWNLO/internal/chat"
	"github.com/SHW4T/CONVO-DOWNLO/internal/job"
	"github.com/SHW4T/CONVO-DOWNLO/internal/progress"
	"github.com/SHW4T/CONVO-DOWNLO/internal/registry"
	"github.com/SHW4T/CONVO-DOWNLO/internal/router"
	kit "github.com/SHW4T/CONVO-DOWNLO/internal/transport"
	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	texts    []string
	audios   []string
	videoIDs []struct{ chatID int64; caption string }
	copies   []int64
	nextID   int
}

func (a *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (a *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	a.texts = append(a.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: a.nextID}, nil
}

func (a *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return nil
}

func (a *fakeAdapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error { return nil }

func (a *fakeAdapter) SendAudio(ctx context.Context, to kit.ChatTarget, path, caption string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audios = append(a.audios, caption)
	return nil
}

func (a *fakeAdapter) SendVideo(ctx context.Context, to kit.ChatTarget, path, caption string, opt *kit.SendOptions) error {
	return nil
}

func (a *fakeAdapter) SendVideoID(ctx context.Context, to kit.ChatTarget, fileID, caption string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.videoIDs = append(a.videoIDs, struct {
		chatID  int64
		caption string
	}{to.ChatID, caption})
	return nil
}

func (a *fakeAdapter) CopyMessage(ctx context.Context, to kit.ChatTarget, from kit.ChatTarget, messageID int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.copies = append(a.copies, to.ChatID)
	return nil
}

func (a *fakeAdapter) DownloadFile(ctx context.Context, fileID, dst string) error {
	return os.WriteFile(dst, []byte("bytes"), 0o600)
}

func (a *fakeAdapter) lastText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.texts) == 0 {
		return ""
	}
	return a.texts[len(a.texts)-1]
}

func (a *fakeAdapter) allText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.Join(a.texts, "\n---\n")
}

type okTranscoder struct{}

func (okTranscoder) Probe(ctx context.Context, src string) (time.Duration, error) {
	return time.Second, nil
}
func (okTranscoder) Extract(ctx context.Context, src, dst string) error {
	return os.WriteFile(dst, []byte("mp3"), 0o600)
}

type okFetcher struct{}

func (okFetcher) Fetch(ctx context.Context, url, dir string) (string, error) {
	p := filepath.Join(dir, "v.mp4")
	return p, os.WriteFile(p, []byte("mp4"), 0o600)
}

type fixture struct {
	adapter *fakeAdapter
	store   registry.Store
	rt      *router.Router
}

func newFixture(t *testing.T, admins []int64, targetChannel int64) *fixture {
	t.Helper()

	ad := &fakeAdapter{}
	dir := t.TempDir()
	store, err := registry.Open(registry.Config{
		UsersPath: filepath.Join(dir, "user_data.json"),
		LinksPath: filepath.Join(dir, "user_links.json"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	work, err := artifact.NewStore(filepath.Join(dir, "work"), logx.Nop())
	if err != nil {
		t.Fatalf("artifacts: %v", err)
	}
	rep := progress.NewReporter(ad, progress.Config{MinInterval: time.Nanosecond}, logx.Nop())
	runner := job.NewRunner(work, rep, ad, okTranscoder{}, okFetcher{}, job.Config{}, logx.Nop())
	broadcaster := broadcast.NewCoordinator(ad, rep, broadcast.Config{RatePerSec: 100000}, logx.Nop())
	chatClient := chat.New(chat.Config{}, logx.Nop())

	rt := router.New(ad, admins, logx.Nop())
	h := NewHandlers(runner, broadcaster, chatClient, store, targetChannel, logx.Nop())
	h.Install(rt)
	return &fixture{adapter: ad, store: store, rt: rt}
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID:           1,
		ChatID:       from,
		FromID:       from,
		FromUsername: "tester",
		FromName:     "Tester",
		Text:         text,
	}}
}

func TestStartSendsWelcome(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 0)
	f.rt.Dispatch(context.Background(), msg(1, "/start"))
	if got := f.adapter.lastText(); got != msgWelcome {
		t.Fatalf("reply = %q", got)
	}
}

func TestConvertRequiresRepliedVideo(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 0)
	f.rt.Dispatch(context.Background(), msg(1, "/convert"))
	if got := f.adapter.lastText(); got != msgConvertUsage {
		t.Fatalf("reply = %q, want %q", got, msgConvertUsage)
	}
	if len(f.adapter.audios) != 0 {
		t.Fatal("audio sent without a source video")
	}
}

func TestConvertRunsJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 0)
	upd := msg(1, "/convert")
	upd.Message.ReplyTo = &kit.Message{ID: 7, ChatID: 1, Video: &kit.VideoAttachment{FileID: "f-1"}}
	f.rt.Dispatch(context.Background(), upd)

	if len(f.adapter.audios) != 1 || f.adapter.audios[0] != "Here's your converted MP3 file!" {
		t.Fatalf("audios = %v", f.adapter.audios)
	}
}

func TestReelWithoutURL(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 0)
	f.rt.Dispatch(context.Background(), msg(1, "/reel"))
	if got := f.adapter.lastText(); got != msgReelUsage {
		t.Fatalf("reply = %q, want %q", got, msgReelUsage)
	}
}

func TestReelRecordsLinkBeforeValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 0)
	f.rt.Dispatch(context.Background(), msg(9, "/reel https://example.com/not-a-reel"))

	if got := f.adapter.lastText(); got != msgReelBadURL {
		t.Fatalf("reply = %q, want %q", got, msgReelBadURL)
	}
	links, err := f.store.Links(context.Background())
	if err != nil {
		t.Fatalf("links: %v", err)
	}
	if len(links[9]) != 1 || links[9][0].Link != "https://example.com/not-a-reel" {
		t.Fatalf("ledger = %v, want the rejected submission recorded", links)
	}
}

func TestUsersDeniedForNonAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []int64{999}, 0)
	f.rt.Dispatch(context.Background(), msg(1, "/users"))
	if got := f.adapter.lastText(); got != router.DeniedText {
		t.Fatalf("reply = %q, want %q", got, router.DeniedText)
	}

	// The denied attempt still counts as an interaction.
	users, err := f.store.Users(context.Background())
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if _, ok := users[1]; !ok {
		t.Fatal("denied caller not recorded in registry")
	}
}

func TestUsersListsRegistry(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []int64{999}, 0)
	f.rt.Dispatch(context.Background(), msg(42, "hello"))
	f.rt.Dispatch(context.Background(), msg(999, "/users"))

	out := f.adapter.allText()
	if !strings.Contains(out, "📊 Bot Users:") || !strings.Contains(out, "User ID: 42") {
		t.Fatalf("listing = %q", out)
	}
}

func TestLinksEmptyLedger(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []int64{999}, 0)
	f.rt.Dispatch(context.Background(), msg(999, "/links"))
	if got := f.adapter.lastText(); got != msgNoLinks {
		t.Fatalf("reply = %q, want %q", got, msgNoLinks)
	}
}

func TestBroadcastRequiresReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []int64{999}, 0)
	f.rt.Dispatch(context.Background(), msg(999, "/broadcast"))
	if got := f.adapter.lastText(); got != msgBroadcastUsage {
		t.Fatalf("reply = %q, want %q", got, msgBroadcastUsage)
	}
}

func TestBroadcastCopiesToAllUsers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []int64{999}, 0)
	f.rt.Dispatch(context.Background(), msg(5, "hi"))
	f.rt.Dispatch(context.Background(), msg(6, "hi"))

	upd := msg(999, "/broadcast")
	upd.Message.ReplyTo = &kit.Message{ID: 33, ChatID: 999}
	f.rt.Dispatch(context.Background(), upd)

	// Targets include the admin (recorded by the /broadcast update itself).
	if len(f.adapter.copies) != 3 {
		t.Fatalf("copies = %v, want 3 recipients", f.adapter.copies)
	}
	if !strings.Contains(f.adapter.allText(), "Broadcast completed!") {
		t.Fatalf("no summary in %q", f.adapter.allText())
	}
}

func TestPlainTextGoesToChat(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 0)
	f.rt.Dispatch(context.Background(), msg(1, "tell me a joke"))
	// The fixture has no chat endpoint configured.
	if got := f.adapter.lastText(); got != chat.MsgUnavailable {
		t.Fatalf("reply = %q, want %q", got, chat.MsgUnavailable)
	}
}

func TestVideoMirroredToChannel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, -100123)
	upd := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID:           4,
		ChatID:       1,
		FromID:       1,
		FromUsername: "tester",
		Caption:      "check this out",
		Video:        &kit.VideoAttachment{FileID: "vid-9"},
	}}
	f.rt.Dispatch(context.Background(), upd)

	if len(f.adapter.videoIDs) != 1 {
		t.Fatalf("mirrored %d videos, want 1", len(f.adapter.videoIDs))
	}
	got := f.adapter.videoIDs[0]
	if got.chatID != -100123 {
		t.Fatalf("mirrored to %d", got.chatID)
	}
	if got.caption != "From: @tester\ncheck this out" {
		t.Fatalf("caption = %q", got.caption)
	}
}

func TestVideoNotMirroredWhenDisabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil, 0)
	upd := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 4, ChatID: 1, FromID: 1, Video: &kit.VideoAttachment{FileID: "vid-9"},
	}}
	f.rt.Dispatch(context.Background(), upd)
	if len(f.adapter.videoIDs) != 0 {
		t.Fatal("video mirrored with channel disabled")
	}
}
