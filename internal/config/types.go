package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Registry  RegistryConfig  `json:"registry"`
	Jobs      JobsConfig      `json:"jobs"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Chat      ChatConfig      `json:"chat"`
	Media     MediaConfig     `json:"media"`
	Janitor   *JanitorConfig  `json:"janitor,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// AdminUserIDs is the static allow-list for /users, /links and /broadcast.
	AdminUserIDs []int64 `json:"admin_user_ids"`

	// TargetChannel receives a copy of every video sent to the bot (0 = disabled).
	TargetChannel int64 `json:"target_channel,omitempty"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// RegistryConfig controls the persisted user registry and link ledger.
//
// Driver values:
//   - "file": two flat JSON documents, rewritten on every mutation
//   - "sqlite": SQLite database file (requires the sqlite build tag)
type RegistryConfig struct {
	Driver      string `json:"driver"`
	UsersPath   string `json:"users_path,omitempty"`
	LinksPath   string `json:"links_path,omitempty"`
	Path        string `json:"path,omitempty"`         // sqlite only
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// JobsConfig controls media job execution and progress cadence.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type JobsConfig struct {
	// WorkDir holds per-job temporary artifacts. Default "./work".
	WorkDir string `json:"work_dir,omitempty"`

	// ProgressMinInterval is the minimum spacing between status edits.
	// Default "1s".
	ProgressMinInterval string `json:"progress_min_interval,omitempty"`

	// ProgressMinEstimate suppresses cadence updates for jobs whose estimated
	// duration is below this threshold. Default "30s".
	ProgressMinEstimate string `json:"progress_min_estimate,omitempty"`

	// OpTimeout bounds each external fetch/transform operation. Default "5m".
	OpTimeout string `json:"op_timeout,omitempty"`
}

type BroadcastConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
	RetryMax   int `json:"retry_max,omitempty"`
}

// ChatConfig points at the text-generation endpoint used for the
// catch-all message handler.
type ChatConfig struct {
	Endpoint string `json:"endpoint"`
	Token    string `json:"token,omitempty"`
	Timeout  string `json:"timeout,omitempty"` // Go duration string, default "30s"
}

type MediaConfig struct {
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`  // default "ffmpeg"
	FFprobePath string `json:"ffprobe_path,omitempty"` // default "ffprobe"
	YtDlpPath   string `json:"ytdlp_path,omitempty"`   // default "yt-dlp"
}

// JanitorConfig controls the periodic sweep of orphaned job artifacts.
//
// Schedule is a cron spec (e.g. "*/30 * * * *"). MaxAge is a Go duration
// string; artifacts older than this are removed.
type JanitorConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
	MaxAge   string `json:"max_age,omitempty"`
}
