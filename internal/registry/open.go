package registry

import (
	"context"
	"errors"
	"strings"

	logx "github.com/SHW4T/CONVO-DOWNLO/pkg/logx"
)

// Store is the persistence API for user metadata and submitted links.
//
// Mutations are serialized within the process and durably written before
// returning; read methods return snapshots safe to retain.
type Store interface {
	// Upsert creates the record on first contact (FirstSeen = now) or,
	// for a known user, advances only LastInteraction.
	Upsert(ctx context.Context, userID int64, username, displayName string) error

	// AppendLink adds one link record to the user's ordered sequence,
	// creating the sequence if absent.
	AppendLink(ctx context.Context, userID int64, link, linkType string) error

	Users(ctx context.Context) (map[int64]UserRecord, error)
	Links(ctx context.Context) (map[int64][]LinkRecord, error)

	// UserIDs returns all known user ids in a stable (ascending) order.
	UserIDs(ctx context.Context) ([]int64, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown registry driver: " + driver)
	}
}
