// Package config loads the service configuration: YAML file, struct-tag
// defaults, BACKTEST_* environment overrides, then validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nadavw1312/trading-manager-server/services/logging"
)

type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" default:"8080" validate:"min=1,max=65535"`
	GRPCPort        int           `yaml:"grpc_port" default:"9091" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	MaxPendingJobs  int           `yaml:"max_pending_jobs" default:"16" validate:"min=1"`
}

type EngineConfig struct {
	MaxWorkers      int           `yaml:"max_workers" default:"4" validate:"min=1"`
	MaxChunkSize    int           `yaml:"max_chunk_size" default:"10" validate:"min=1"`
	Timeout         time.Duration `yaml:"timeout" default:"5m"`
	DefaultStrategy string        `yaml:"default_strategy" default:"first_daily_trade" validate:"oneof=first_daily_trade each_day"`
	Mode            string        `yaml:"mode" default:"vectorized" validate:"oneof=vectorized reference"`
	Location        string        `yaml:"location" default:"UTC"`
}

type ClickHouseConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr" default:"localhost:9000" validate:"required_if=Enabled true"`
	Database    string        `yaml:"database" default:"market"`
	Table       string        `yaml:"table" default:"candles"`
	TradesTable string        `yaml:"trades_table" default:"backtest_trades"`
	User        string        `yaml:"user" default:"default"`
	Password    string        `yaml:"password"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"10s"`
}

type DataConfig struct {
	Source      string `yaml:"source" default:"csv" validate:"oneof=csv arrow clickhouse"`
	CSVDir      string `yaml:"csv_dir" default:"data"`
	ArrowDir    string `yaml:"arrow_dir" default:"data/arrow"`
	Resample    bool   `yaml:"resample" default:"true"`
	PresetsFile string `yaml:"presets_file"`
}

type CacheConfig struct {
	Backend   string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
	RedisAddr string        `yaml:"redis_addr" default:"localhost:6379"`
	RedisDB   int           `yaml:"redis_db"`
	Password  string        `yaml:"password"`
	TTL       time.Duration `yaml:"ttl" default:"24h"`
	MaxSize   int           `yaml:"max_size" default:"1000" validate:"min=1"`
}

type Config struct {
	Environment string           `yaml:"environment" default:"dev" validate:"oneof=dev test staging prod"`
	Server      ServerConfig     `yaml:"server"`
	Engine      EngineConfig     `yaml:"engine"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Data        DataConfig       `yaml:"data"`
	Cache       CacheConfig      `yaml:"cache"`
	Log         logging.Config   `yaml:"log"`
}

// Load reads path (optional), applies defaults and environment overrides,
// and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Engine.Location); err != nil {
		return fmt.Errorf("engine.location: %w", err)
	}
	return nil
}

// TimeLocation returns the location that defines calendar days.
func (c *Config) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Engine.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}

type envBinding struct {
	name string
	set  func(c *Config, v string) error
}

func intSetter(dst func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func stringSetter(dst func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

var envBindings = []envBinding{
	{"BACKTEST_ENV", stringSetter(func(c *Config) *string { return &c.Environment })},
	{"BACKTEST_HTTP_PORT", intSetter(func(c *Config) *int { return &c.Server.HTTPPort })},
	{"BACKTEST_GRPC_PORT", intSetter(func(c *Config) *int { return &c.Server.GRPCPort })},
	{"BACKTEST_MAX_WORKERS", intSetter(func(c *Config) *int { return &c.Engine.MaxWorkers })},
	{"BACKTEST_LOCATION", stringSetter(func(c *Config) *string { return &c.Engine.Location })},
	{"BACKTEST_DATA_SOURCE", stringSetter(func(c *Config) *string { return &c.Data.Source })},
	{"BACKTEST_CSV_DIR", stringSetter(func(c *Config) *string { return &c.Data.CSVDir })},
	{"BACKTEST_ARROW_DIR", stringSetter(func(c *Config) *string { return &c.Data.ArrowDir })},
	{"BACKTEST_PRESETS_FILE", stringSetter(func(c *Config) *string { return &c.Data.PresetsFile })},
	{"BACKTEST_CLICKHOUSE_ADDR", stringSetter(func(c *Config) *string { return &c.ClickHouse.Addr })},
	{"BACKTEST_CLICKHOUSE_PASSWORD", stringSetter(func(c *Config) *string { return &c.ClickHouse.Password })},
	{"BACKTEST_CACHE_BACKEND", stringSetter(func(c *Config) *string { return &c.Cache.Backend })},
	{"BACKTEST_REDIS_ADDR", stringSetter(func(c *Config) *string { return &c.Cache.RedisAddr })},
	{"BACKTEST_LOG_LEVEL", stringSetter(func(c *Config) *string { return &c.Log.Level })},
	{"BACKTEST_LOG_FORMAT", stringSetter(func(c *Config) *string { return &c.Log.Format })},
	{"BACKTEST_CLICKHOUSE_ENABLED", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.ClickHouse.Enabled = b
		return err
	}},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(b.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.set(c, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("env %s: %w", b.name, err)
		}
	}
	return nil
}
