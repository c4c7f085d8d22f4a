package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"homey-driverkit/internal/enrich"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig(viper.New(), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.DriversDir != "drivers" {
		t.Errorf("drivers_dir = %q", cfg.DriversDir)
	}
	if cfg.Enrich.ConfidenceScore != 90 || cfg.Enrich.ClusterFormat != "name" {
		t.Errorf("enrich = %+v", cfg.Enrich)
	}
	if strings.Join(cfg.Enrich.Locales, ",") != "en,fr,nl,ta" {
		t.Errorf("locales = %v", cfg.Enrich.Locales)
	}
	if cfg.Run.Workers != 4 || !cfg.Run.Synthesize || cfg.Run.RetryDelay != 200*time.Millisecond {
		t.Errorf("run = %+v", cfg.Run)
	}
	if cfg.Watch.Debounce != time.Second || cfg.Rules.Timeout != 2*time.Second {
		t.Errorf("durations = %v, %v", cfg.Watch.Debounce, cfg.Rules.Timeout)
	}
	if cfg.MQTT.Enabled {
		t.Error("mqtt enabled by default")
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "driverkit.yaml")
	data := `
drivers_dir: app/drivers
enrich:
  confidence_score: 75
  cluster_format: id
  locales: [en, de]
run:
  workers: 8
  retry_delay: 1s
mqtt:
  enabled: true
  topic_prefix: homey
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DRIVERKIT_RUN_WORKERS", "2")
	t.Setenv("DRIVERKIT_STORE_PATH", "/var/lib/driverkit.db")

	cfg, err := loadConfig(viper.New(), path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DriversDir != "app/drivers" {
		t.Errorf("drivers_dir = %q", cfg.DriversDir)
	}
	if cfg.Run.Workers != 2 {
		t.Errorf("workers = %d, want env override 2", cfg.Run.Workers)
	}
	if cfg.Run.RetryDelay != time.Second {
		t.Errorf("retry_delay = %v", cfg.Run.RetryDelay)
	}
	if cfg.Store.Path != "/var/lib/driverkit.db" {
		t.Errorf("store.path = %q", cfg.Store.Path)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.TopicPrefix != "homey" || cfg.MQTT.Broker == "" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}

	opts := cfg.engineOptions()
	if opts.ConfidenceScore != 75 || opts.ClusterFormat != enrich.ClusterIDs {
		t.Errorf("engine options = %+v", opts)
	}
	if strings.Join(opts.Locales, ",") != "en,de" {
		t.Errorf("locales = %v", opts.Locales)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"confidence", func(c *Config) { c.Enrich.ConfidenceScore = 101 }, "confidence_score"},
		{"cluster format", func(c *Config) { c.Enrich.ClusterFormat = "hex" }, "cluster_format"},
		{"workers", func(c *Config) { c.Run.Workers = 0 }, "workers"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"drivers", func(c *Config) { c.DriversDir = "" }, "drivers_dir"},
		{"mqtt broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "" }, "mqtt.broker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			cfg, err := loadConfig(viper.New(), "")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			err = cfg.validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{}
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"

	logger := newLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("json output = %s", out)
	}
}
