package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/SHW4T/CONVO-DOWNLO/internal/artifact"
	"github.com/SHW4T/CONVO-DOWNLO/internal/progress"
	kit "github.com/SHW4T/CONVO-DOWNLO/internal/transport"
	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

type fakeMessenger struct {
	mu       sync.Mutex
	texts    []string
	audios   []string // captions
	videos   []string // captions
	deleted  int
	sendErr  error
	audioErr error
	nextID   int
}

func (m *fakeMessenger) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return kit.MessageRef{}, m.sendErr
	}
	m.nextID++
	m.texts = append(m.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: m.nextID}, nil
}

func (m *fakeMessenger) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *fakeMessenger) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted++
	return nil
}

func (m *fakeMessenger) SendAudio(ctx context.Context, to kit.ChatTarget, path, caption string, opt *kit.SendOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.audioErr != nil {
		return m.audioErr
	}
	m.audios = append(m.audios, caption)
	return nil
}

func (m *fakeMessenger) SendVideo(ctx context.Context, to kit.ChatTarget, path, caption string, opt *kit.SendOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos = append(m.videos, caption)
	return nil
}

func (m *fakeMessenger) DownloadFile(ctx context.Context, fileID, dst string) error {
	return os.WriteFile(dst, []byte("video-bytes"), 0o600)
}

func (m *fakeMessenger) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		return ""
	}
	return m.texts[len(m.texts)-1]
}

type fakeTranscoder struct {
	dur        time.Duration
	extractErr error
}

func (f *fakeTranscoder) Probe(ctx context.Context, src string) (time.Duration, error) {
	return f.dur, nil
}

func (f *fakeTranscoder) Extract(ctx context.Context, src, dst string) error {
	if f.extractErr != nil {
		return f.extractErr
	}
	return os.WriteFile(dst, []byte("mp3-bytes"), 0o600)
}

type fakeFetcher struct {
	err error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dir string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(dir, "abc.mp4")
	return path, os.WriteFile(path, []byte("reel-bytes"), 0o600)
}

func newTestRunner(t *testing.T, m *fakeMessenger, tr Transcoder, fe Fetcher) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := artifact.NewStore(dir, logx.Nop())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	rep := progress.NewReporter(m, progress.Config{MinInterval: time.Nanosecond}, logx.Nop())
	return NewRunner(store, rep, m, tr, fe, Config{}, logx.Nop()), dir
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	return len(entries)
}

func TestRunTranscodeSuccess(t *testing.T) {
	t.Parallel()

	m := &fakeMessenger{}
	r, work := newTestRunner(t, m, &fakeTranscoder{dur: time.Second}, &fakeFetcher{})

	j := &Job{ID: "t1", Kind: KindTranscode, Requester: kit.ChatTarget{ChatID: 1}, FileID: "file-1"}
	if err := r.Run(context.Background(), j); err != nil {
		t.Fatalf("run: %v", err)
	}
	if j.Stage != StageDone {
		t.Fatalf("stage = %s, want %s", j.Stage, StageDone)
	}
	if len(m.audios) != 1 || m.audios[0] != "Here's your converted MP3 file!" {
		t.Fatalf("audio captions = %v", m.audios)
	}
	if m.deleted != 1 {
		t.Fatalf("status message deleted %d times, want 1", m.deleted)
	}
	if n := dirEntries(t, work); n != 0 {
		t.Fatalf("%d artifacts left in work dir", n)
	}
}

func TestRunTranscodeFailureCleansUp(t *testing.T) {
	t.Parallel()

	m := &fakeMessenger{}
	r, work := newTestRunner(t, m, &fakeTranscoder{extractErr: errors.New("codec blew up")}, &fakeFetcher{})

	j := &Job{ID: "t2", Kind: KindTranscode, Requester: kit.ChatTarget{ChatID: 1}, FileID: "file-1"}
	err := r.Run(context.Background(), j)
	if err == nil {
		t.Fatal("expected error")
	}
	if j.Stage != StageFailed {
		t.Fatalf("stage = %s, want %s", j.Stage, StageFailed)
	}
	if got := m.lastText(); got != MsgConvertFailed {
		t.Fatalf("user saw %q, want %q", got, MsgConvertFailed)
	}
	if n := dirEntries(t, work); n != 0 {
		t.Fatalf("%d artifacts left after failure", n)
	}
	if len(m.audios) != 0 {
		t.Fatal("audio delivered despite failure")
	}
}

func TestRunTranscodeFailsFastWithoutVideo(t *testing.T) {
	t.Parallel()

	m := &fakeMessenger{}
	r, work := newTestRunner(t, m, &fakeTranscoder{}, &fakeFetcher{})

	j := &Job{ID: "t3", Kind: KindTranscode, Requester: kit.ChatTarget{ChatID: 1}}
	err := r.Run(context.Background(), j)
	if !errors.Is(err, ErrNoVideo) {
		t.Fatalf("err = %v, want ErrNoVideo", err)
	}
	if j.Stage != StageFailed {
		t.Fatalf("stage = %s, want %s", j.Stage, StageFailed)
	}
	// Fail-fast: nothing sent, nothing acquired.
	if len(m.texts) != 0 {
		t.Fatalf("messages sent on fail-fast: %v", m.texts)
	}
	if n := dirEntries(t, work); n != 0 {
		t.Fatalf("%d artifacts acquired on fail-fast", n)
	}
}

func TestRunReelSuccess(t *testing.T) {
	t.Parallel()

	m := &fakeMessenger{}
	r, work := newTestRunner(t, m, &fakeTranscoder{}, &fakeFetcher{})

	j := &Job{
		ID:        "r1",
		Kind:      KindRemoteDownload,
		Requester: kit.ChatTarget{ChatID: 2},
		URL:       "https://www.instagram.com/reel/DEF456/",
	}
	if err := r.Run(context.Background(), j); err != nil {
		t.Fatalf("run: %v", err)
	}
	if j.Stage != StageDone {
		t.Fatalf("stage = %s, want %s", j.Stage, StageDone)
	}
	if j.Shortcode != "DEF456" {
		t.Fatalf("shortcode = %q, want DEF456", j.Shortcode)
	}
	if len(m.videos) != 1 || m.videos[0] != "Here's your Instagram reel!" {
		t.Fatalf("video captions = %v", m.videos)
	}
	if n := dirEntries(t, work); n != 0 {
		t.Fatalf("%d artifacts left in work dir", n)
	}
}

func TestRunReelFetchFailure(t *testing.T) {
	t.Parallel()

	m := &fakeMessenger{}
	r, work := newTestRunner(t, m, &fakeTranscoder{}, &fakeFetcher{err: errors.New("rate limited")})

	j := &Job{
		ID:        "r2",
		Kind:      KindRemoteDownload,
		Requester: kit.ChatTarget{ChatID: 2},
		URL:       "https://www.instagram.com/reel/DEF456/",
	}
	if err := r.Run(context.Background(), j); err == nil {
		t.Fatal("expected error")
	}
	if got := m.lastText(); got != MsgReelFailed {
		t.Fatalf("user saw %q, want %q", got, MsgReelFailed)
	}
	if n := dirEntries(t, work); n != 0 {
		t.Fatalf("%d artifacts left after failure", n)
	}
}

func TestRunReelRejectsBadURL(t *testing.T) {
	t.Parallel()

	m := &fakeMessenger{}
	r, _ := newTestRunner(t, m, &fakeTranscoder{}, &fakeFetcher{})

	j := &Job{
		ID:        "r3",
		Kind:      KindRemoteDownload,
		Requester: kit.ChatTarget{ChatID: 2},
		URL:       "https://example.com/watch?v=zzz",
	}
	err := r.Run(context.Background(), j)
	if !errors.Is(err, ErrBadURL) {
		t.Fatalf("err = %v, want ErrBadURL", err)
	}
}

func TestParseReelShortcode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"plain", "https://www.instagram.com/reel/ABC123/", "ABC123", false},
		{"no trailing slash", "https://instagram.com/reel/ABC123", "ABC123", false},
		{"query string ignored in code", "https://www.instagram.com/reel/ABC123/?igsh=x", "ABC123", false},
		{"not a reel", "https://www.instagram.com/p/ABC123/", "", true},
		{"empty code", "https://www.instagram.com/reel/", "", true},
		{"unrelated", "https://example.com/", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseReelShortcode(tc.url)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse %q: %v", tc.url, err)
			}
			if got != tc.want {
				t.Fatalf("shortcode = %q, want %q", got, tc.want)
			}
		})
	}
}
