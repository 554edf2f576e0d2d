package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigParser_Defaults(t *testing.T) {
	result, err := LoadFrom("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("expected no error for missing config file, got: %v", err)
	}

	cfg := result.Config

	if cfg.Receiver.GRPCPort != 4317 {
		t.Errorf("default grpc_port: want 4317, got %d", cfg.Receiver.GRPCPort)
	}
	if cfg.Receiver.HTTPPort != 4318 {
		t.Errorf("default http_port: want 4318, got %d", cfg.Receiver.HTTPPort)
	}
	if cfg.Receiver.Bind != "127.0.0.1" {
		t.Errorf("default bind: want 127.0.0.1, got %s", cfg.Receiver.Bind)
	}
	if len(cfg.Ingest.MetricNames) != 2 || cfg.Ingest.MetricNames[0] != "http.client.duration" {
		t.Errorf("default metric_names: want [http.client.duration probe.latency], got %v", cfg.Ingest.MetricNames)
	}
	if cfg.Ingest.MonitorAttribute != "monitor.id" {
		t.Errorf("default monitor_attribute: want monitor.id, got %s", cfg.Ingest.MonitorAttribute)
	}
	if cfg.Display.RefreshRateMS != 1000 {
		t.Errorf("default refresh_rate_ms: want 1000, got %d", cfg.Display.RefreshRateMS)
	}
	if cfg.Display.Theme != "auto" {
		t.Errorf("default theme: want auto, got %s", cfg.Display.Theme)
	}
	if cfg.Display.Locale != "en-US" {
		t.Errorf("default locale: want en-US, got %s", cfg.Display.Locale)
	}
	if cfg.Display.HistoryDays != 30 {
		t.Errorf("default history_days: want 30, got %d", cfg.Display.HistoryDays)
	}
	if cfg.Scale.Quantile != 0.75 {
		t.Errorf("default quantile: want 0.75, got %f", cfg.Scale.Quantile)
	}
	if cfg.Scale.Multiplier != 3 {
		t.Errorf("default multiplier: want 3, got %f", cfg.Scale.Multiplier)
	}
	if cfg.Scale.MinSamples != 4 {
		t.Errorf("default min_samples: want 4, got %d", cfg.Scale.MinSamples)
	}
	if !cfg.Scale.RoundNice {
		t.Error("default round_nice: want true, got false")
	}
	if !cfg.API.Enabled || cfg.API.Port != 8088 {
		t.Errorf("default api: want enabled on 8088, got %+v", cfg.API)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.File != "" {
		t.Errorf("default logging: want info with no file, got %+v", cfg.Logging)
	}

	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings for missing file, got %v", result.Warnings)
	}
}

func TestConfigParser_CustomPorts(t *testing.T) {
	tomlData := `
[receiver]
grpc_port = 5317
http_port = 5318
bind = "0.0.0.0"
`
	result, err := LoadFromString(tomlData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := result.Config
	if cfg.Receiver.GRPCPort != 5317 {
		t.Errorf("grpc_port: want 5317, got %d", cfg.Receiver.GRPCPort)
	}
	if cfg.Receiver.HTTPPort != 5318 {
		t.Errorf("http_port: want 5318, got %d", cfg.Receiver.HTTPPort)
	}
	if cfg.Receiver.Bind != "0.0.0.0" {
		t.Errorf("bind: want 0.0.0.0, got %s", cfg.Receiver.Bind)
	}
	if cfg.Display.RefreshRateMS != 1000 {
		t.Errorf("default refresh_rate_ms should be preserved: want 1000, got %d", cfg.Display.RefreshRateMS)
	}
}

func TestConfigParser_ScaleSection(t *testing.T) {
	tomlData := `
[scale]
quantile = 0.5
multiplier = 2.5
min_samples = 6
round_nice = false
`
	result, err := LoadFromString(tomlData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := result.Config.Scale.Policy()
	if p.Quantile != 0.5 {
		t.Errorf("quantile: want 0.5, got %f", p.Quantile)
	}
	if p.Multiplier != 2.5 {
		t.Errorf("multiplier: want 2.5, got %f", p.Multiplier)
	}
	if p.MinSamples != 6 {
		t.Errorf("min_samples: want 6, got %d", p.MinSamples)
	}
	if p.RoundNice {
		t.Error("round_nice: want false, got true")
	}
}

func TestConfigParser_PartialScaleKeepsDefaults(t *testing.T) {
	result, err := LoadFromString("[scale]\nmultiplier = 4\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := result.Config.Scale
	if s.Multiplier != 4 {
		t.Errorf("multiplier: want 4, got %f", s.Multiplier)
	}
	if s.Quantile != 0.75 || s.MinSamples != 4 || !s.RoundNice {
		t.Errorf("untouched scale keys should keep defaults, got %+v", s)
	}
}

func TestConfigParser_DisplaySection(t *testing.T) {
	tomlData := `
[display]
theme = "Dark"
locale = "de-DE"
history_days = 90
chart_height = 20
`
	result, err := LoadFromString(tomlData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := result.Config.Display
	if d.Theme != "dark" {
		t.Errorf("theme should be lower-cased: want dark, got %s", d.Theme)
	}
	if d.Locale != "de-DE" {
		t.Errorf("locale: want de-DE, got %s", d.Locale)
	}
	if d.HistoryDays != 90 {
		t.Errorf("history_days: want 90, got %d", d.HistoryDays)
	}
	if d.ChartHeight != 20 {
		t.Errorf("chart_height: want 20, got %d", d.ChartHeight)
	}
}

func TestConfigParser_IngestSection(t *testing.T) {
	tomlData := `
[ingest]
metric_names = ["synthetic.rtt"]
monitor_attribute = "check.name"
`
	result, err := LoadFromString(tomlData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := result.Config.Ingest
	if len(in.MetricNames) != 1 || in.MetricNames[0] != "synthetic.rtt" {
		t.Errorf("metric_names: want [synthetic.rtt], got %v", in.MetricNames)
	}
	if in.MonitorAttribute != "check.name" {
		t.Errorf("monitor_attribute: want check.name, got %s", in.MonitorAttribute)
	}
}

func TestConfigParser_InvalidValue(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{
			name: "negative grpc_port",
			toml: `[receiver]
grpc_port = -1`,
		},
		{
			name: "port over 65535",
			toml: `[receiver]
grpc_port = 70000`,
		},
		{
			name: "zero http_port",
			toml: `[receiver]
http_port = 0`,
		},
		{
			name: "empty metric names",
			toml: `[ingest]
metric_names = []`,
		},
		{
			name: "blank metric name",
			toml: `[ingest]
metric_names = ["ok", " "]`,
		},
		{
			name: "unknown theme",
			toml: `[display]
theme = "solarized"`,
		},
		{
			name: "zero history_days",
			toml: `[display]
history_days = 0`,
		},
		{
			name: "tiny chart",
			toml: `[display]
chart_height = 2`,
		},
		{
			name: "quantile zero",
			toml: `[scale]
quantile = 0.0`,
		},
		{
			name: "quantile over one",
			toml: `[scale]
quantile = 1.5`,
		},
		{
			name: "multiplier below one",
			toml: `[scale]
multiplier = 0.5`,
		},
		{
			name: "min_samples one",
			toml: `[scale]
min_samples = 1`,
		},
		{
			name: "api port",
			toml: `[api]
port = 0`,
		},
		{
			name: "log level",
			toml: `[logging]
level = "trace"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromString(tt.toml)
			if err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestConfigParser_MultipleErrorsJoined(t *testing.T) {
	_, err := LoadFromString("[receiver]\ngrpc_port = 0\nhttp_port = 0\n")
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "config validation error: ") {
		t.Errorf("unexpected prefix: %s", msg)
	}
	if !strings.Contains(msg, "grpc_port") || !strings.Contains(msg, "http_port") {
		t.Errorf("both port errors should be reported: %s", msg)
	}
}

func TestConfigParser_UnknownKey(t *testing.T) {
	tomlData := `
[receiver]
grpc_port = 4317

[notifications]
slack = true
`
	result, err := LoadFromString(tomlData)
	if err != nil {
		t.Fatalf("unknown keys should not fail: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("want 1 warning, got %v", result.Warnings)
	}
	if !strings.Contains(result.Warnings[0], "notifications") {
		t.Errorf("warning should name the key: %s", result.Warnings[0])
	}
}

func TestConfigParser_MalformedTOML(t *testing.T) {
	_, err := LoadFromString("[receiver\ngrpc_port = ")
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "parsing config") {
		t.Errorf("error should be wrapped: %v", err)
	}
}

func TestConfigParser_FileLoad(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	tomlContent := `
[receiver]
grpc_port = 9317

[storage]
db_path = ""
retention_days = 3
`
	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("writing test config file: %v", err)
	}

	result, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Config.Receiver.GRPCPort != 9317 {
		t.Errorf("grpc_port from file: want 9317, got %d", result.Config.Receiver.GRPCPort)
	}
	if result.Config.Storage.DBPath != "" {
		t.Errorf("empty db_path should disable persistence, got %q", result.Config.Storage.DBPath)
	}
	if result.Config.Storage.RetentionDays != 3 {
		t.Errorf("retention_days: want 3, got %d", result.Config.Storage.RetentionDays)
	}
	if result.Config.Storage.SummaryRetentionDays != 365 {
		t.Errorf("summary_retention_days default: want 365, got %d", result.Config.Storage.SummaryRetentionDays)
	}
}

func TestConfigParser_EmptyString(t *testing.T) {
	result, err := LoadFromString("")
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}

	if result.Config.Receiver.GRPCPort != 4317 {
		t.Errorf("grpc_port: want 4317, got %d", result.Config.Receiver.GRPCPort)
	}
}

func TestStorageConfig_ValidationRejectsZeroRetention(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"zero retention", "[storage]\nretention_days = 0"},
		{"negative summary retention", "[storage]\nsummary_retention_days = -1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFromString(tt.toml); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
