package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Cron       CronConfig       `mapstructure:"cron"`
	Settlement SettlementConfig `mapstructure:"settlement"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Cron spec for the auto-settlement sweep, e.g. "@every 2m".
	SettlementSweep string `mapstructure:"settlement_sweep"`
}

type SettlementConfig struct {
	// Players per driver batch (one orchestrator run per slice).
	BatchSize int `mapstructure:"batch_size"`
	// Concurrent players per chunk inside a batch.
	ChunkSize  int           `mapstructure:"chunk_size"`
	ChunkDelay time.Duration `mapstructure:"chunk_delay"`

	// Wall-clock budget for one resume call; checked cooperatively
	// between batches, never mid-credit.
	Budget         time.Duration `mapstructure:"budget"`
	SafetyMargin   time.Duration `mapstructure:"safety_margin"`
	EstimateFactor float64       `mapstructure:"estimate_factor"`

	// When true, validation errors block the ledger credit instead of
	// being recorded as warnings on the outcome.
	StrictValidation bool `mapstructure:"strict_validation"`

	// Identifier written into poll.settled_by and ledger metadata.
	Agent string `mapstructure:"agent"`

	// Max polls considered per sweep tick.
	SweepPollLimit int `mapstructure:"sweep_poll_limit"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.settlement_sweep", "@every 2m")
	v.SetDefault("settlement.batch_size", 100)
	v.SetDefault("settlement.chunk_size", 30)
	v.SetDefault("settlement.chunk_delay", "100ms")
	v.SetDefault("settlement.budget", "30s")
	v.SetDefault("settlement.safety_margin", "3s")
	v.SetDefault("settlement.estimate_factor", 1.2)
	v.SetDefault("settlement.strict_validation", false)
	v.SetDefault("settlement.agent", "settlementd")
	v.SetDefault("settlement.sweep_poll_limit", 20)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
