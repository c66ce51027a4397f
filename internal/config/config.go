package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log        LogConfig       `mapstructure:"log"`
	HTTP       HTTPConfig      `mapstructure:"http"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	Relay      RelayConfig     `mapstructure:"relay"`
	Consumer   ConsumerConfig  `mapstructure:"consumer"`
	Forwarder  SinkConfig      `mapstructure:"forwarder"`
	Analytics  SinkConfig      `mapstructure:"analytics"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	TopicPrefix  string        `mapstructure:"topic_prefix"` // topic = prefix + schema id
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type RelayConfig struct {
	Interval        time.Duration `mapstructure:"interval"`         // poll cadence, default 2s
	BatchSize       int           `mapstructure:"batch_size"`       // default 15
	MaxAttempts     int           `mapstructure:"max_attempts"`     // default 10
	MetricsInterval time.Duration `mapstructure:"metrics_interval"` // aggregate log cadence, default 60s
	LagSampleSize   int           `mapstructure:"lag_sample_size"`  // publish-lag sample, default 100
}

type ConsumerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"` // default 5s
	BatchSize    int           `mapstructure:"batch_size"`    // default 10
	MaxAttempts  int           `mapstructure:"max_attempts"`  // default 10
}

// SinkConfig configures one concrete consumer (forwarder, analytics).
type SinkConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Subscription string `mapstructure:"subscription"` // schema-id prefix filter
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (BFLOW_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (BFLOW_*)
	v.SetEnvPrefix("BFLOW")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
