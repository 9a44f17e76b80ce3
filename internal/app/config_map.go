package app

import (
	"time"

	"orderbot/internal/broadcast"
	"orderbot/internal/classifier"
	"orderbot/internal/config"
	"orderbot/internal/health"
	"orderbot/internal/sheets"
	"orderbot/internal/storage"
	"orderbot/internal/task/scheduler"
)

func mapClassifierConfig(cfg *config.Config) (classifier.Config, error) {
	timeout, err := config.ParseDurationOrDefault("classifier.timeout", cfg.Classifier.Timeout, 30*time.Second)
	if err != nil {
		return classifier.Config{}, err
	}
	temp := config.DefaultTemperature
	if cfg.Classifier.Temperature != nil {
		temp = *cfg.Classifier.Temperature
	}
	return classifier.Config{
		APIKey:      cfg.Classifier.APIKey,
		Endpoint:    cfg.Classifier.Endpoint,
		Model:       cfg.Classifier.Model,
		Temperature: temp,
		MaxTokens:   cfg.Classifier.MaxTokens,
		Timeout:     timeout,
	}, nil
}

func mapSheetsConfig(cfg *config.Config) (sheets.Config, error) {
	timeout, err := config.ParseDurationOrDefault("sheets.timeout", cfg.Sheets.Timeout, 30*time.Second)
	if err != nil {
		return sheets.Config{}, err
	}
	return sheets.Config{URL: cfg.Sheets.URL, Timeout: timeout}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("registry.busy_timeout", cfg.Registry.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: cfg.Registry.Driver, Path: cfg.Registry.Path, BusyTimeout: busy}, nil
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	delay, err := config.ParseDurationOrDefault("broadcast.delay", cfg.Broadcast.Delay, broadcast.DefaultDelay)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{Delay: delay}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	timeout, err := config.ParseDurationField("broadcast.timeout", cfg.Broadcast.Timeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:        cfg.Broadcast.IsEnabled(),
		Timezone:       cfg.Broadcast.Timezone,
		DefaultTimeout: timeout,
	}, nil
}

func mapHealthConfig(cfg *config.Config) health.Config {
	return health.Config{Addr: cfg.Health.Addr, Pprof: cfg.Health.Pprof}
}
