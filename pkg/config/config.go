package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultUploadUserID is the user the CSV upload endpoint files rows under
const DefaultUploadUserID = "11111111-1111-1111-1111-111111111111"

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Ollama     OllamaConfig     `mapstructure:"ollama"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Users      UsersConfig      `mapstructure:"users"`
	Log        LogConfig        `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	UploadUserID   string   `mapstructure:"upload_user_id"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`

	// UploadChannelColumns pins channels to legacy column indexes,
	// e.g. "engine_rpm=12,coolant_temperature=8". Unpinned channels are
	// found by header name.
	UploadChannelColumns string `mapstructure:"upload_channel_columns"`
}

type ClickHouseConfig struct {
	Addr           string        `mapstructure:"addr"`
	Database       string        `mapstructure:"database"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	TelemetryTable string        `mapstructure:"telemetry_table"`
	LegacyTable    string        `mapstructure:"legacy_table"`
	View           string        `mapstructure:"view"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	InitSchema     bool          `mapstructure:"init_schema"`
}

type OllamaConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MQTTConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Broker           string `mapstructure:"broker"`
	ClientID         string `mapstructure:"client_id"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	TelemetryTopic   string `mapstructure:"telemetry_topic"`
	DiagnosticsTopic string `mapstructure:"diagnostics_topic"`
}

// IngestConfig controls batching of live telemetry into the store
type IngestConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	QueueSize     int           `mapstructure:"queue_size"`
}

type UsersConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Dev        bool   `mapstructure:"dev"`
}

// Load reads .env (if present) and the environment. Keys map to variables by
// upper-casing and replacing dots, e.g. clickhouse.addr -> CLICKHOUSE_ADDR.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8000")
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.upload_user_id", DefaultUploadUserID)
	v.SetDefault("http.max_upload_bytes", 64<<20)
	v.SetDefault("http.upload_channel_columns", "")

	v.SetDefault("clickhouse.addr", "localhost:8123")
	v.SetDefault("clickhouse.database", "default")
	v.SetDefault("clickhouse.user", "default")
	v.SetDefault("clickhouse.password", "")
	v.SetDefault("clickhouse.telemetry_table", "obd_telemetry")
	v.SetDefault("clickhouse.legacy_table", "obd_clean_data")
	v.SetDefault("clickhouse.view", "clickhouse_detected_anomalies")
	v.SetDefault("clickhouse.dial_timeout", 5*time.Second)
	v.SetDefault("clickhouse.init_schema", true)

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "mistral")
	v.SetDefault("ollama.timeout", 60*time.Second)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "obd-backend")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.telemetry_topic", "vehicle/+/obd")
	v.SetDefault("mqtt.diagnostics_topic", "vehicle/{user_id}/diagnostics")

	v.SetDefault("ingest.batch_size", 500)
	v.SetDefault("ingest.flush_interval", 2*time.Second)
	v.SetDefault("ingest.queue_size", 10000)

	v.SetDefault("users.db_path", "users.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.dev", false)
}

// Validate checks values the components cannot start without
func (c *Config) Validate() error {
	var errs []error

	if c.ClickHouse.Addr == "" {
		errs = append(errs, errors.New("clickhouse.addr is required"))
	}
	if c.ClickHouse.View == "" || c.ClickHouse.TelemetryTable == "" || c.ClickHouse.LegacyTable == "" {
		errs = append(errs, errors.New("clickhouse table and view names are required"))
	}
	if c.Ollama.BaseURL == "" || c.Ollama.Model == "" {
		errs = append(errs, errors.New("ollama.base_url and ollama.model are required"))
	}
	if c.Ollama.Timeout <= 0 {
		errs = append(errs, errors.New("ollama.timeout must be positive"))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if c.Ingest.BatchSize <= 0 || c.Ingest.QueueSize <= 0 {
		errs = append(errs, errors.New("ingest.batch_size and ingest.queue_size must be positive"))
	}
	if c.Ingest.FlushInterval <= 0 {
		errs = append(errs, errors.New("ingest.flush_interval must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
