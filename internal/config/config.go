package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"divergence-watch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Exchanges ExchangesConfig `mapstructure:"exchanges"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Recorder  RecorderConfig  `mapstructure:"recorder"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ExchangesConfig names the two compared venues and selects the quote
// source feeding them.
type ExchangesConfig struct {
	A         string          `mapstructure:"a"`
	B         string          `mapstructure:"b"`
	Mode      string          `mapstructure:"mode"` // "simulated" or "live"
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Feed      FeedConfig      `mapstructure:"feed"`
}

// SimulatorConfig shapes the synthetic price process.
type SimulatorConfig struct {
	BasePrice   float64       `mapstructure:"base_price"`
	BiasA       float64       `mapstructure:"bias_a"`
	BiasB       float64       `mapstructure:"bias_b"`
	Jitter      float64       `mapstructure:"jitter"`
	SpikeChance float64       `mapstructure:"spike_chance"`
	SpikeMin    float64       `mapstructure:"spike_min"`
	SpikeMax    float64       `mapstructure:"spike_max"`
	Latency     time.Duration `mapstructure:"latency"`
	Seed        int64         `mapstructure:"seed"`
}

// EndpointConfig is one live stream endpoint.
type EndpointConfig struct {
	URL    string `mapstructure:"url"`
	Symbol string `mapstructure:"symbol"`
}

// FeedConfig governs live websocket connectivity.
type FeedConfig struct {
	Endpoints   map[string]EndpointConfig `mapstructure:"endpoints"`
	MaxAttempts int                       `mapstructure:"max_attempts"`
	MinBackoff  time.Duration             `mapstructure:"min_backoff"`
	MaxBackoff  time.Duration             `mapstructure:"max_backoff"`
	Staleness   time.Duration             `mapstructure:"staleness"`
}

// TrackerConfig defines event thresholds. The reference deployments never
// agreed on values, so every knob is configuration.
type TrackerConfig struct {
	OpenThreshold  float64       `mapstructure:"open_threshold"`
	CloseThreshold float64       `mapstructure:"close_threshold"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	HistoryLimit   int           `mapstructure:"history_limit"`
}

// RecorderConfig governs series sampling and retention.
type RecorderConfig struct {
	SamplingInterval time.Duration `mapstructure:"sampling_interval"`
	Retention        time.Duration `mapstructure:"retention"`
}

// SchedulerConfig governs tick cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// StorageConfig selects and parameterises the series backend.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"` // "file", "redis", "postgres", "none"
	File     FileConfig     `mapstructure:"file"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
}

// FileConfig parameterises the JSON blob store.
type FileConfig struct {
	Path     string `mapstructure:"path"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

// RedisConfig parameterises the Redis snapshot store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Kinds    []string       `mapstructure:"kinds"` // transitions that alert: opened, max_updated, closed
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int           `mapstructure:"max_data_points"`
	BucketWidth   time.Duration `mapstructure:"bucket_width"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DIVWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "divwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("exchanges.a", "binance")
	v.SetDefault("exchanges.b", "coinbase")
	v.SetDefault("exchanges.mode", "simulated")
	v.SetDefault("exchanges.simulator.base_price", 2000.0)
	v.SetDefault("exchanges.simulator.bias_a", 15.0)
	v.SetDefault("exchanges.simulator.bias_b", -15.0)
	v.SetDefault("exchanges.simulator.jitter", 10.0)
	v.SetDefault("exchanges.simulator.spike_chance", 0.05)
	v.SetDefault("exchanges.simulator.spike_min", 10.0)
	v.SetDefault("exchanges.simulator.spike_max", 40.0)
	v.SetDefault("exchanges.feed.max_attempts", 10)
	v.SetDefault("exchanges.feed.min_backoff", "2s")
	v.SetDefault("exchanges.feed.max_backoff", "60s")
	v.SetDefault("exchanges.feed.staleness", "30s")

	v.SetDefault("tracker.open_threshold", 10.0)
	v.SetDefault("tracker.close_threshold", 0.0)
	v.SetDefault("tracker.cooldown", "15s")
	v.SetDefault("tracker.history_limit", 200)

	v.SetDefault("recorder.sampling_interval", "5m")
	v.SetDefault("recorder.retention", "720h")

	v.SetDefault("scheduler.interval", "5s")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.file.path", "data/series.json")
	v.SetDefault("storage.file.max_bytes", int64(5*1024*1024))
	v.SetDefault("storage.redis.addr", "")
	v.SetDefault("storage.redis.key", "divwatch:series")
	v.SetDefault("storage.database.max_open_conns", 10)
	v.SetDefault("storage.database.max_idle_conns", 5)
	v.SetDefault("storage.database.conn_max_lifetime", "30m")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.kinds", []string{"opened", "closed"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
	v.SetDefault("export.bucket_width", "5m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Exchanges.A == "" || c.Exchanges.B == "" {
		return fmt.Errorf("exchanges.a and exchanges.b must be set")
	}
	if c.Exchanges.A == c.Exchanges.B {
		return fmt.Errorf("exchanges.a and exchanges.b must differ")
	}
	switch c.Exchanges.Mode {
	case "simulated", "live":
	default:
		return fmt.Errorf("exchanges.mode must be \"simulated\" or \"live\"")
	}
	if c.Tracker.OpenThreshold < 0 {
		return fmt.Errorf("tracker.open_threshold cannot be negative")
	}
	if c.Tracker.CloseThreshold < 0 {
		return fmt.Errorf("tracker.close_threshold cannot be negative")
	}
	if c.Tracker.Cooldown < 0 {
		return fmt.Errorf("tracker.cooldown cannot be negative")
	}
	if c.Recorder.SamplingInterval <= 0 {
		return fmt.Errorf("recorder.sampling_interval must be greater than zero")
	}
	if c.Recorder.Retention <= 0 {
		return fmt.Errorf("recorder.retention must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	switch c.Storage.Backend {
	case "file", "redis", "postgres", "none":
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be configured")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be configured")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
