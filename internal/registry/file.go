package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

// fileStore keeps the full registry and ledger in memory and rewrites the
// backing JSON documents wholesale after every mutation. Both documents
// are keyed by the decimal user id, matching the flat key-value layout the
// bot has always used on disk.
//
// Read-modify-write of the whole structure is not safe under parallelism,
// so every operation holds mu for its full duration.
type fileStore struct {
	log logx.Logger

	mu        sync.Mutex
	usersPath string
	linksPath string
	users     map[string]UserRecord
	links     map[string][]LinkRecord

	now func() time.Time
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	usersPath := strings.TrimSpace(cfg.UsersPath)
	linksPath := strings.TrimSpace(cfg.LinksPath)
	if usersPath == "" {
		usersPath = "./user_data.json"
	}
	if linksPath == "" {
		linksPath = "./user_links.json"
	}
	if err := os.MkdirAll(filepath.Dir(usersPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(linksPath), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:       log,
		usersPath: usersPath,
		linksPath: linksPath,
		users:     map[string]UserRecord{},
		links:     map[string][]LinkRecord{},
		now:       time.Now,
	}
	// Missing or corrupt documents start empty, same as first run.
	if err := loadJSON(usersPath, &s.users); err != nil {
		log.Warn("user registry not loaded; starting empty", logx.String("path", usersPath), logx.Err(err))
		s.users = map[string]UserRecord{}
	}
	if err := loadJSON(linksPath, &s.links); err != nil {
		log.Warn("link ledger not loaded; starting empty", logx.String("path", linksPath), logx.Err(err))
		s.links = map[string][]LinkRecord{}
	}
	return s, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Upsert(ctx context.Context, userID int64, username, displayName string) error {
	_ = ctx
	key := strconv.FormatInt(userID, 10)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[key]
	if !ok {
		rec = UserRecord{
			Username:    username,
			DisplayName: displayName,
			FirstSeen:   now,
		}
	}
	rec.LastInteraction = now
	s.users[key] = rec

	return writeJSON(s.usersPath, s.users)
}

func (s *fileStore) AppendLink(ctx context.Context, userID int64, link, linkType string) error {
	_ = ctx
	key := strconv.FormatInt(userID, 10)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[key] = append(s.links[key], LinkRecord{
		Link:      link,
		Type:      linkType,
		Timestamp: s.now(),
	})
	return writeJSON(s.linksPath, s.links)
}

func (s *fileStore) Users(ctx context.Context) (map[int64]UserRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]UserRecord, len(s.users))
	for k, v := range s.users {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		out[id] = v
	}
	return out, nil
}

func (s *fileStore) Links(ctx context.Context) (map[int64][]LinkRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64][]LinkRecord, len(s.links))
	for k, v := range s.links {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		out[id] = append([]LinkRecord(nil), v...)
	}
	return out, nil
}

func (s *fileStore) UserIDs(ctx context.Context) ([]int64, error) {
	users, err := s.Users(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func loadJSON(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}

// writeJSON rewrites the whole document via tmp+rename so a crash mid-write
// never leaves a truncated file behind.
func writeJSON(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
