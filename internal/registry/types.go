package registry

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("registry disabled")

// Config configures the registry backend.
//
// Driver values:
//   - "file": two flat JSON documents, rewritten wholesale on every mutation
//   - "sqlite": SQLite database file (requires the sqlite build tag)
type Config struct {
	Driver      string
	UsersPath   string
	LinksPath   string
	Path        string        // sqlite only
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// UserRecord tracks one user who has interacted with the bot.
//
// Username and DisplayName are recorded once at first contact and never
// refreshed on later interactions; a later rename is deliberately not
// reflected here. FirstSeen is immutable after creation.
type UserRecord struct {
	Username        string    `json:"username"`
	DisplayName     string    `json:"display_name"`
	FirstSeen       time.Time `json:"first_seen"`
	LastInteraction time.Time `json:"last_interaction"`
}

// LinkRecord is one submitted link. Records are append-only: a user's
// sequence grows in chronological order and prior entries never change.
type LinkRecord struct {
	Link      string    `json:"link"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}
