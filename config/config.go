// Package config loads the daod configuration from daod.yaml, DAOD_*
// environment variables and command line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "DAOD"
	configFileName = "daod"
	configFileType = "yaml"
)

// Config keys. Nested keys map to DAOD_<SECTION>_<KEY> in the environment.
const (
	KeyHome           = "home"
	KeyDataDir        = "data_dir"
	KeyGenesisFile    = "genesis_file"
	KeyGRPCAddr       = "grpc_addr"
	KeyMetricsAddr    = "metrics_addr"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
	KeyStoreRetain    = "store.retain"
	KeyStoreGC        = "store.gc_interval"
	KeyIndexerEnabled = "indexer.enabled"
	KeyIndexerPath    = "indexer.path"
)

const (
	DefaultHome        = ".daod"
	DefaultDataDir     = "data"
	DefaultGenesisFile = "genesis.yaml"
	DefaultGRPCAddr    = "127.0.0.1:26658"
	DefaultMetricsAddr = "127.0.0.1:9464"
	DefaultIndexerPath = "events.db"
	DefaultStoreRetain = 100
	DefaultStoreGC     = 5 * time.Minute
)

// Config is the daemon configuration.
type Config struct {
	Home        string        `mapstructure:"home"`
	DataDir     string        `mapstructure:"data_dir"`
	GenesisFile string        `mapstructure:"genesis_file"`
	GRPCAddr    string        `mapstructure:"grpc_addr"`
	MetricsAddr string        `mapstructure:"metrics_addr"` // empty disables /metrics
	Log         LogConfig     `mapstructure:"log"`
	Store       StoreConfig   `mapstructure:"store"`
	Indexer     IndexerConfig `mapstructure:"indexer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

type StoreConfig struct {
	Retain     uint64        `mapstructure:"retain"`
	GCInterval time.Duration `mapstructure:"gc_interval"`
}

type IndexerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// New returns a viper instance with the defaults and environment binding
// installed. Callers bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyHome, DefaultHome)
	v.SetDefault(KeyDataDir, DefaultDataDir)
	v.SetDefault(KeyGenesisFile, DefaultGenesisFile)
	v.SetDefault(KeyGRPCAddr, DefaultGRPCAddr)
	v.SetDefault(KeyMetricsAddr, DefaultMetricsAddr)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyStoreRetain, DefaultStoreRetain)
	v.SetDefault(KeyStoreGC, DefaultStoreGC)
	v.SetDefault(KeyIndexerEnabled, true)
	v.SetDefault(KeyIndexerPath, DefaultIndexerPath)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file and decodes the result. An explicit file
// must exist; otherwise daod.yaml under home is optional.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(v.GetString(KeyHome))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePaths makes relative paths relative to Home.
func (c *Config) resolvePaths() {
	c.DataDir = c.under(c.DataDir)
	c.GenesisFile = c.under(c.GenesisFile)
	if c.Indexer.Path != "" && !filepath.IsAbs(c.Indexer.Path) {
		c.Indexer.Path = filepath.Join(c.DataDir, c.Indexer.Path)
	}
}

func (c *Config) under(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Home, p)
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.Home == "" {
		return errors.New("home must not be empty")
	}
	if c.GRPCAddr == "" {
		return errors.New("grpc_addr must not be empty")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Store.GCInterval < 0 {
		return errors.New("store.gc_interval must not be negative")
	}
	return nil
}

// SlogLevel parses Level (debug, info, warn, error).
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}
