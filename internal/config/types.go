package config

// Config is the full bot configuration. Every field has a usable default
// except the secrets, which come from the environment or the config file.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Classifier ClassifierConfig `json:"classifier"`
	Sheets     SheetsConfig     `json:"sheets"`
	Broadcast  BroadcastConfig  `json:"broadcast"`
	Registry   StorageConfig    `json:"registry"`
	Health     HealthConfig     `json:"health"`
	Logging    LoggingConfig    `json:"logging"`

	// Workers is the number of goroutines handling incoming updates.
	Workers int `json:"workers,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// SendRate caps outbound messages per second across all chats.
	SendRate int `json:"send_rate,omitempty"`
}

// ClassifierConfig points at an OpenAI-compatible chat completions endpoint.
type ClassifierConfig struct {
	APIKey   string `json:"api_key"`
	Endpoint string `json:"endpoint,omitempty"`
	Model    string `json:"model,omitempty"`
	// Temperature is a pointer so an explicit 0 survives defaulting.
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Timeout     string   `json:"timeout,omitempty"`
}

// SheetsConfig points at the spreadsheet web-app endpoint.
type SheetsConfig struct {
	URL     string `json:"url"`
	Timeout string `json:"timeout,omitempty"`
}

// BroadcastConfig controls the scheduled broadcast.
//
// Times are wall-clock "HH:MM" entries evaluated in Timezone.
type BroadcastConfig struct {
	Enabled  *bool    `json:"enabled,omitempty"`
	Times    []string `json:"times,omitempty"`
	Timezone string   `json:"timezone,omitempty"`
	// Delay is the spacing between two sends (Go duration string).
	Delay string `json:"delay,omitempty"`
	// Timeout bounds one scheduled run; "0s" disables it.
	Timeout string `json:"timeout,omitempty"`
}

func (b BroadcastConfig) IsEnabled() bool { return b.Enabled == nil || *b.Enabled }

// StorageConfig selects the user registry backend.
//
// Example:
//
//	"registry": { "driver": "sqlite", "path": "./data/users.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type HealthConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"`
	// Pprof mounts the runtime profiler under /debug/pprof/ on the same listener.
	Pprof bool `json:"pprof,omitempty"`
}

func (h HealthConfig) IsEnabled() bool { return h.Enabled == nil || *h.Enabled }

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}
