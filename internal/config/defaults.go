package config

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultEndpoint    = "https://api.openai.com/v1/chat/completions"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 500
	DefaultTimezone    = "Asia/Jakarta"
	DefaultDelay       = "100ms"
	DefaultPort        = "3000"
	DefaultWorkers     = 8
)

var DefaultTimes = []string{"08:00", "12:00", "18:00"}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Classifier.Endpoint == "" {
		c.Classifier.Endpoint = DefaultEndpoint
	}
	if c.Classifier.Model == "" {
		c.Classifier.Model = DefaultModel
	}
	if c.Classifier.Temperature == nil {
		t := DefaultTemperature
		c.Classifier.Temperature = &t
	}
	if c.Classifier.MaxTokens <= 0 {
		c.Classifier.MaxTokens = DefaultMaxTokens
	}
	if len(c.Broadcast.Times) == 0 {
		c.Broadcast.Times = append([]string(nil), DefaultTimes...)
	}
	if c.Broadcast.Timezone == "" {
		c.Broadcast.Timezone = DefaultTimezone
	}
	if c.Broadcast.Delay == "" {
		c.Broadcast.Delay = DefaultDelay
	}
	if c.Registry.Driver == "" {
		c.Registry.Driver = "memory"
	}
	if c.Health.Addr == "" {
		c.Health.Addr = ":" + DefaultPort
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Console == nil {
		on := true
		c.Logging.Console = &on
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
}

// ApplyEnv overlays environment variables on c. lookup is os.LookupEnv in production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("TELEGRAM_TOKEN", &c.Telegram.Token)
	str("OPENAI_API_KEY", &c.Classifier.APIKey)
	str("GOOGLE_SCRIPT_URL", &c.Sheets.URL)
	str("LOG_LEVEL", &c.Logging.Level)
	str("BOT_TIMEZONE", &c.Broadcast.Timezone)

	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		port := strings.TrimSpace(v)
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("PORT: invalid port %q", v)
		}
		c.Health.Addr = ":" + port
	}
	if v, ok := lookup("OWNER_USER_IDS"); ok && strings.TrimSpace(v) != "" {
		ids, err := ParseIDList(v)
		if err != nil {
			return fmt.Errorf("OWNER_USER_IDS: %w", err)
		}
		c.Telegram.OwnerUserIDs = ids
	}
	return nil
}

// ParseIDList parses "1, 2,3" into ids. Empty entries are skipped.
func ParseIDList(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}
