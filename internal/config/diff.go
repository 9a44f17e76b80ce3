package config

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	logx "orderbot/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// returns safe log fields describing them. Secrets are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout ||
		oldCfg.Telegram.SendRate != newCfg.Telegram.SendRate {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token))
	}
	if !reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) {
		changed = append(changed, "owners")
		attrs = append(attrs, logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)))
	}
	if !reflect.DeepEqual(oldCfg.Classifier, newCfg.Classifier) {
		changed = append(changed, "classifier")
		attrs = append(attrs,
			logx.String("classifier.model", newCfg.Classifier.Model),
			logx.Bool("classifier.key_set", newCfg.Classifier.APIKey != ""),
		)
	}
	if oldCfg.Sheets != newCfg.Sheets {
		changed = append(changed, "sheets")
		attrs = append(attrs, logx.Bool("sheets.url_set", newCfg.Sheets.URL != ""))
	}
	if !reflect.DeepEqual(oldCfg.Broadcast, newCfg.Broadcast) {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.Any("broadcast.times", newCfg.Broadcast.Times),
			logx.String("broadcast.timezone", newCfg.Broadcast.Timezone),
			logx.Bool("broadcast.enabled", newCfg.Broadcast.IsEnabled()),
		)
	}
	if oldCfg.Registry != newCfg.Registry {
		changed = append(changed, "registry")
		attrs = append(attrs, logx.String("registry.driver", newCfg.Registry.Driver))
	}
	if !reflect.DeepEqual(oldCfg.Health, newCfg.Health) {
		changed = append(changed, "health")
		attrs = append(attrs, logx.String("health.addr", newCfg.Health.Addr))
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Workers != newCfg.Workers {
		changed = append(changed, "workers")
		attrs = append(attrs, logx.Int("workers", newCfg.Workers))
	}
	return changed, attrs
}

// restartOnly filters changed down to the sections only read at startup.
func restartOnly(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "classifier", "sheets", "registry", "health", "workers":
			out = append(out, s)
		}
	}
	return out
}

// RejectRestartOnly returns a reload validator that refuses configs changing
// sections read only at startup, so the committed config always matches what runs.
func RejectRestartOnly(current func() *Config) func(ctx context.Context, cfg *Config) error {
	return func(ctx context.Context, cfg *Config) error {
		changed, _ := SummarizeChange(current(), cfg)
		if s := restartOnly(changed); len(s) > 0 {
			return fmt.Errorf("sections %s need a restart; revert them to hot-reload the rest", strings.Join(s, ","))
		}
		return nil
	}
}

// Logx converts the logging section to the logx service config.
func (l LoggingConfig) Logx() logx.Config {
	console := l.Console == nil || *l.Console
	return logx.Config{
		Level:   l.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
	}
}
