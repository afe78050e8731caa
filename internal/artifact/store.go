// Package artifact manages temporary files and directories produced by
// media jobs. Every handle acquired for a job must be released exactly
// once, on every exit path; Release tolerates already-removed paths and
// never propagates deletion errors, so partial cleanup cannot mask a
// job's primary error.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

type Kind int

const (
	KindFile Kind = iota
	KindDir
)

// Handle refers to one temporary file or directory owned by a single job.
type Handle struct {
	Path string
	Kind Kind
}

type Store struct {
	dir string
	log logx.Logger
}

func NewStore(dir string, log logx.Logger) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "./work"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir %s: %w", dir, err)
	}
	return &Store{dir: dir, log: log}, nil
}

func (s *Store) Dir() string { return s.dir }

// Acquire creates a uniquely named temporary file or directory.
// prefix and ext shape the name: <prefix>_<uuid><ext> (ext ignored for dirs).
func (s *Store) Acquire(kind Kind, prefix, ext string) (Handle, error) {
	if prefix == "" {
		prefix = "job"
	}
	name := prefix + "_" + uuid.New().String()
	switch kind {
	case KindDir:
		path := filepath.Join(s.dir, name)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return Handle{}, fmt.Errorf("acquire dir: %w", err)
		}
		return Handle{Path: path, Kind: KindDir}, nil
	default:
		path := filepath.Join(s.dir, name+ext)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			return Handle{}, fmt.Errorf("acquire file: %w", err)
		}
		_ = f.Close()
		return Handle{Path: path, Kind: KindFile}, nil
	}
}

// Release removes the handle's file or directory tree. A missing path is
// not an error; deletion failures are logged and swallowed.
func (s *Store) Release(h Handle) {
	if strings.TrimSpace(h.Path) == "" {
		return
	}
	var err error
	if h.Kind == KindDir {
		err = os.RemoveAll(h.Path)
	} else {
		err = os.Remove(h.Path)
	}
	if err != nil && !os.IsNotExist(err) {
		s.log.Warn("artifact release failed", logx.String("path", h.Path), logx.Err(err))
	}
}
