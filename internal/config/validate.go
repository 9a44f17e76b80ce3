package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"orderbot/internal/task/scheduler"
)

// Validate checks a defaulted config. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token: required (or TELEGRAM_TOKEN)"))
	}

	if c.Telegram.SendRate < 0 {
		errs = append(errs, fmt.Errorf("telegram.send_rate: must not be negative, got %d", c.Telegram.SendRate))
	}

	durations := map[string]string{
		"telegram.poll_timeout": c.Telegram.PollTimeout,
		"classifier.timeout":    c.Classifier.Timeout,
		"sheets.timeout":        c.Sheets.Timeout,
		"broadcast.delay":       c.Broadcast.Delay,
		"broadcast.timeout":     c.Broadcast.Timeout,
		"registry.busy_timeout": c.Registry.BusyTimeout,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := time.LoadLocation(c.Broadcast.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("broadcast.timezone: %w", err))
	}
	for i, t := range c.Broadcast.Times {
		if _, _, err := scheduler.ParseClock(t); err != nil {
			errs = append(errs, fmt.Errorf("broadcast.times[%d]: %w", i, err))
		}
	}
	if t := c.Classifier.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("classifier.temperature: %v out of range [0,2]", *t))
	}
	switch strings.ToLower(strings.TrimSpace(c.Registry.Driver)) {
	case "", "memory", "none":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Registry.Path) == "" {
			errs = append(errs, fmt.Errorf("registry.path: required for driver %q", c.Registry.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("registry.driver: unknown driver %q", c.Registry.Driver))
	}
	return errors.Join(errs...)
}
