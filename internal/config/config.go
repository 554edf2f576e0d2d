package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/nixlim/latency-top/internal/latency"
)

type Config struct {
	Receiver ReceiverConfig
	Ingest   IngestConfig
	Storage  StorageConfig
	Display  DisplayConfig
	Scale    ScaleConfig
	API      APIConfig
	Logging  LoggingConfig
}

type ReceiverConfig struct {
	GRPCPort int    `toml:"grpc_port"`
	HTTPPort int    `toml:"http_port"`
	Bind     string `toml:"bind"`
}

type IngestConfig struct {
	MetricNames      []string `toml:"metric_names"`
	MonitorAttribute string   `toml:"monitor_attribute"`
}

type StorageConfig struct {
	DBPath               string `toml:"db_path"`
	RetentionDays        int    `toml:"retention_days"`
	SummaryRetentionDays int    `toml:"summary_retention_days"`
}

type DisplayConfig struct {
	RefreshRateMS int    `toml:"refresh_rate_ms"`
	Theme         string `toml:"theme"`
	Locale        string `toml:"locale"`
	HistoryDays   int    `toml:"history_days"`
	ChartHeight   int    `toml:"chart_height"`
}

// ScaleConfig tunes the adaptive Y-axis ceiling of the latency chart.
type ScaleConfig struct {
	Quantile   float64 `toml:"quantile"`
	Multiplier float64 `toml:"multiplier"`
	MinSamples int     `toml:"min_samples"`
	RoundNice  bool    `toml:"round_nice"`
}

// Policy converts the scale section into a ceiling policy.
func (s ScaleConfig) Policy() latency.Policy {
	return latency.Policy{
		Quantile:   s.Quantile,
		Multiplier: s.Multiplier,
		MinSamples: s.MinSamples,
		RoundNice:  s.RoundNice,
	}
}

type APIConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	Bind    string `toml:"bind"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

var knownThemes = map[string]bool{
	"auto":  true,
	"light": true,
	"dark":  true,
}

var knownLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func DefaultConfig() Config {
	policy := latency.DefaultPolicy()
	return Config{
		Receiver: ReceiverConfig{
			GRPCPort: 4317,
			HTTPPort: 4318,
			Bind:     "127.0.0.1",
		},
		Ingest: IngestConfig{
			MetricNames:      []string{"http.client.duration", "probe.latency"},
			MonitorAttribute: "monitor.id",
		},
		Storage: StorageConfig{
			DBPath:               "~/.local/share/latency-top/latency.db",
			RetentionDays:        7,
			SummaryRetentionDays: 365,
		},
		Display: DisplayConfig{
			RefreshRateMS: 1000,
			Theme:         "auto",
			Locale:        "en-US",
			HistoryDays:   30,
			ChartHeight:   12,
		},
		Scale: ScaleConfig{
			Quantile:   policy.Quantile,
			Multiplier: policy.Multiplier,
			MinSamples: policy.MinSamples,
			RoundNice:  policy.RoundNice,
		},
		API: APIConfig{
			Enabled: true,
			Port:    8088,
			Bind:    "127.0.0.1",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "latency-top", "config.toml")
}

func Load() (*LoadResult, error) {
	return LoadFrom(DefaultConfigPath())
}

func LoadFrom(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadResult{Config: DefaultConfig()}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	result, err := parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := validate(&result.Config); err != nil {
		return nil, err
	}
	return result, nil
}

func LoadFromString(data string) (*LoadResult, error) {
	if data == "" {
		return &LoadResult{Config: DefaultConfig()}, nil
	}

	result, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validate(&result.Config); err != nil {
		return nil, err
	}
	return result, nil
}

var knownTopLevel = map[string]bool{
	"receiver": true,
	"ingest":   true,
	"storage":  true,
	"display":  true,
	"scale":    true,
	"api":      true,
	"logging":  true,
}

func parse(data string) (*LoadResult, error) {
	result := &LoadResult{Config: DefaultConfig()}

	var raw map[string]any
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, err
	}
	for key := range raw {
		if !knownTopLevel[key] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key))
		}
	}

	var tf tomlFile
	if _, err := toml.Decode(data, &tf); err != nil {
		return nil, err
	}

	mergeFromRaw(&result.Config, &tf, raw)
	return result, nil
}

type tomlFile struct {
	Receiver *ReceiverConfig `toml:"receiver"`
	Ingest   *IngestConfig   `toml:"ingest"`
	Storage  *StorageConfig  `toml:"storage"`
	Display  *DisplayConfig  `toml:"display"`
	Scale    *ScaleConfig    `toml:"scale"`
	API      *APIConfig      `toml:"api"`
	Logging  *LoggingConfig  `toml:"logging"`
}

func mergeFromRaw(cfg *Config, tf *tomlFile, raw map[string]any) {
	if tf.Receiver != nil {
		if section, ok := rawSection(raw, "receiver"); ok {
			if _, exists := section["grpc_port"]; exists {
				cfg.Receiver.GRPCPort = tf.Receiver.GRPCPort
			}
			if _, exists := section["http_port"]; exists {
				cfg.Receiver.HTTPPort = tf.Receiver.HTTPPort
			}
			if _, exists := section["bind"]; exists {
				cfg.Receiver.Bind = tf.Receiver.Bind
			}
		}
	}
	if tf.Ingest != nil {
		if section, ok := rawSection(raw, "ingest"); ok {
			if _, exists := section["metric_names"]; exists {
				cfg.Ingest.MetricNames = tf.Ingest.MetricNames
			}
			if _, exists := section["monitor_attribute"]; exists {
				cfg.Ingest.MonitorAttribute = tf.Ingest.MonitorAttribute
			}
		}
	}
	if tf.Storage != nil {
		if section, ok := rawSection(raw, "storage"); ok {
			if _, exists := section["db_path"]; exists {
				cfg.Storage.DBPath = tf.Storage.DBPath
			}
			if _, exists := section["retention_days"]; exists {
				cfg.Storage.RetentionDays = tf.Storage.RetentionDays
			}
			if _, exists := section["summary_retention_days"]; exists {
				cfg.Storage.SummaryRetentionDays = tf.Storage.SummaryRetentionDays
			}
		}
	}
	if tf.Display != nil {
		if section, ok := rawSection(raw, "display"); ok {
			if _, exists := section["refresh_rate_ms"]; exists {
				cfg.Display.RefreshRateMS = tf.Display.RefreshRateMS
			}
			if _, exists := section["theme"]; exists {
				cfg.Display.Theme = strings.ToLower(tf.Display.Theme)
			}
			if _, exists := section["locale"]; exists {
				cfg.Display.Locale = tf.Display.Locale
			}
			if _, exists := section["history_days"]; exists {
				cfg.Display.HistoryDays = tf.Display.HistoryDays
			}
			if _, exists := section["chart_height"]; exists {
				cfg.Display.ChartHeight = tf.Display.ChartHeight
			}
		}
	}
	if tf.Scale != nil {
		if section, ok := rawSection(raw, "scale"); ok {
			if _, exists := section["quantile"]; exists {
				cfg.Scale.Quantile = tf.Scale.Quantile
			}
			if _, exists := section["multiplier"]; exists {
				cfg.Scale.Multiplier = tf.Scale.Multiplier
			}
			if _, exists := section["min_samples"]; exists {
				cfg.Scale.MinSamples = tf.Scale.MinSamples
			}
			if _, exists := section["round_nice"]; exists {
				cfg.Scale.RoundNice = tf.Scale.RoundNice
			}
		}
	}
	if tf.API != nil {
		if section, ok := rawSection(raw, "api"); ok {
			if _, exists := section["enabled"]; exists {
				cfg.API.Enabled = tf.API.Enabled
			}
			if _, exists := section["port"]; exists {
				cfg.API.Port = tf.API.Port
			}
			if _, exists := section["bind"]; exists {
				cfg.API.Bind = tf.API.Bind
			}
		}
	}
	if tf.Logging != nil {
		if section, ok := rawSection(raw, "logging"); ok {
			if _, exists := section["level"]; exists {
				cfg.Logging.Level = strings.ToLower(tf.Logging.Level)
			}
			if _, exists := section["file"]; exists {
				cfg.Logging.File = tf.Logging.File
			}
		}
	}
}

func rawSection(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Receiver.GRPCPort < 1 || cfg.Receiver.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("grpc_port must be 1-65535, got %d", cfg.Receiver.GRPCPort))
	}
	if cfg.Receiver.HTTPPort < 1 || cfg.Receiver.HTTPPort > 65535 {
		errs = append(errs, fmt.Sprintf("http_port must be 1-65535, got %d", cfg.Receiver.HTTPPort))
	}

	if len(cfg.Ingest.MetricNames) == 0 {
		errs = append(errs, "ingest metric_names must not be empty")
	}
	for _, name := range cfg.Ingest.MetricNames {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, "ingest metric_names must not contain empty names")
			break
		}
	}
	if cfg.Ingest.MonitorAttribute == "" {
		errs = append(errs, "ingest monitor_attribute must not be empty")
	}

	if cfg.Storage.RetentionDays <= 0 {
		errs = append(errs, fmt.Sprintf("storage retention_days must be positive, got %d", cfg.Storage.RetentionDays))
	}
	if cfg.Storage.SummaryRetentionDays <= 0 {
		errs = append(errs, fmt.Sprintf("storage summary_retention_days must be positive, got %d", cfg.Storage.SummaryRetentionDays))
	}

	if cfg.Display.RefreshRateMS < 1 {
		errs = append(errs, fmt.Sprintf("refresh_rate_ms must be positive, got %d", cfg.Display.RefreshRateMS))
	}
	if !knownThemes[cfg.Display.Theme] {
		errs = append(errs, fmt.Sprintf("theme must be auto, light or dark, got %q", cfg.Display.Theme))
	}
	if cfg.Display.HistoryDays < 1 {
		errs = append(errs, fmt.Sprintf("history_days must be positive, got %d", cfg.Display.HistoryDays))
	}
	if cfg.Display.ChartHeight < 3 {
		errs = append(errs, fmt.Sprintf("chart_height must be at least 3, got %d", cfg.Display.ChartHeight))
	}

	if cfg.Scale.Quantile <= 0 || cfg.Scale.Quantile > 1 {
		errs = append(errs, fmt.Sprintf("scale quantile must be in (0, 1], got %f", cfg.Scale.Quantile))
	}
	if cfg.Scale.Multiplier < 1 {
		errs = append(errs, fmt.Sprintf("scale multiplier must be at least 1, got %f", cfg.Scale.Multiplier))
	}
	if cfg.Scale.MinSamples < 2 {
		errs = append(errs, fmt.Sprintf("scale min_samples must be at least 2, got %d", cfg.Scale.MinSamples))
	}

	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api port must be 1-65535, got %d", cfg.API.Port))
	}

	if !knownLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging level must be debug, info, warn or error, got %q", cfg.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation error: %s", strings.Join(errs, "; "))
	}
	return nil
}
