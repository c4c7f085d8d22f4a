package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"homey-driverkit/internal/enrich"
)

// Config is the driverkit configuration. It is read from driverkit.yaml
// (optional), DRIVERKIT_* environment variables and command line flags.
type Config struct {
	DriversDir string `mapstructure:"drivers_dir"`
	Knowledge  struct {
		Path string `mapstructure:"path"` // empty selects the embedded table
	} `mapstructure:"knowledge"`
	Enrich struct {
		ConfidenceScore int      `mapstructure:"confidence_score"`
		Locales         []string `mapstructure:"locales"`
		ClusterFormat   string   `mapstructure:"cluster_format"`
		Sources         []string `mapstructure:"sources"`
	} `mapstructure:"enrich"`
	Run struct {
		Workers      int           `mapstructure:"workers"`
		WriteRetries int           `mapstructure:"write_retries"`
		RetryDelay   time.Duration `mapstructure:"retry_delay"`
		Synthesize   bool          `mapstructure:"synthesize"`
		Scaffold     bool          `mapstructure:"scaffold"`
		ReportPath   string        `mapstructure:"report_path"`
	} `mapstructure:"run"`
	Schema struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"` // empty selects the embedded schema
	} `mapstructure:"schema"`
	Rules struct {
		Dir     string        `mapstructure:"dir"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"rules"`
	Store struct {
		Path string `mapstructure:"path"` // empty disables run history
		Keep int    `mapstructure:"keep"`
	} `mapstructure:"store"`
	MQTT struct {
		Enabled     bool   `mapstructure:"enabled"`
		Broker      string `mapstructure:"broker"`
		Username    string `mapstructure:"username"`
		Password    string `mapstructure:"password"`
		TopicPrefix string `mapstructure:"topic_prefix"`
		ClientID    string `mapstructure:"client_id"`
		Discovery   bool   `mapstructure:"discovery"`
	} `mapstructure:"mqtt"`
	Watch struct {
		Debounce time.Duration `mapstructure:"debounce"`
	} `mapstructure:"watch"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	opts := enrich.DefaultOptions()
	v.SetDefault("drivers_dir", "drivers")
	v.SetDefault("knowledge.path", "")
	v.SetDefault("enrich.confidence_score", opts.ConfidenceScore)
	v.SetDefault("enrich.locales", opts.Locales)
	v.SetDefault("enrich.cluster_format", string(opts.ClusterFormat))
	v.SetDefault("enrich.sources", opts.Sources)
	v.SetDefault("run.workers", 4)
	v.SetDefault("run.write_retries", 2)
	v.SetDefault("run.retry_delay", 200*time.Millisecond)
	v.SetDefault("run.synthesize", true)
	v.SetDefault("run.scaffold", true)
	v.SetDefault("run.report_path", "driverkit-report.json")
	v.SetDefault("schema.enabled", true)
	v.SetDefault("schema.path", "")
	v.SetDefault("rules.dir", "rules")
	v.SetDefault("rules.timeout", 2*time.Second)
	v.SetDefault("store.path", "driverkit.db")
	v.SetDefault("store.keep", 50)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "driverkit")
	v.SetDefault("mqtt.client_id", "driverkit")
	v.SetDefault("mqtt.discovery", false)
	v.SetDefault("watch.debounce", time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// loadConfig reads the configuration through v. An explicit path must
// exist; without one, driverkit.yaml in the working directory is used when
// present.
func loadConfig(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("DRIVERKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("driverkit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DriversDir == "" {
		return fmt.Errorf("drivers_dir is required")
	}
	if c.Enrich.ConfidenceScore < 0 || c.Enrich.ConfidenceScore > 100 {
		return fmt.Errorf("enrich.confidence_score must be 0-100, got %d", c.Enrich.ConfidenceScore)
	}
	switch enrich.ClusterFormat(c.Enrich.ClusterFormat) {
	case enrich.ClusterNames, enrich.ClusterIDs:
	default:
		return fmt.Errorf("enrich.cluster_format must be %q or %q, got %q",
			enrich.ClusterNames, enrich.ClusterIDs, c.Enrich.ClusterFormat)
	}
	if c.Run.Workers < 1 {
		return fmt.Errorf("run.workers must be at least 1, got %d", c.Run.Workers)
	}
	if c.Run.WriteRetries < 0 {
		return fmt.Errorf("run.write_retries must not be negative")
	}
	if c.Store.Keep < 0 {
		return fmt.Errorf("store.keep must not be negative")
	}
	if _, ok := parseLevel(c.Log.Level); !ok {
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// engineOptions maps the enrich section onto engine options.
func (c *Config) engineOptions() enrich.Options {
	opts := enrich.DefaultOptions()
	opts.ConfidenceScore = c.Enrich.ConfidenceScore
	if len(c.Enrich.Locales) > 0 {
		opts.Locales = c.Enrich.Locales
	}
	opts.ClusterFormat = enrich.ClusterFormat(c.Enrich.ClusterFormat)
	if len(c.Enrich.Sources) > 0 {
		opts.Sources = c.Enrich.Sources
	}
	return opts
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// newLogger logs to w, which is stderr so reports on stdout stay clean.
func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	level, _ := parseLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
