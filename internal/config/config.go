// Package config loads lineage settings from lineage.yaml, LINEAGE_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jward/lineage/internal/discover"
	"github.com/jward/lineage/internal/extract"
	"github.com/jward/lineage/internal/server"
)

// FileName is the config file looked for in the root when no explicit path
// is given.
const FileName = "lineage.yaml"

// EnvPrefix prefixes every environment override, e.g. LINEAGE_SERVER_ADDR.
const EnvPrefix = "LINEAGE"

type Config struct {
	Root         string       `mapstructure:"root"`
	DB           string       `mapstructure:"db"`
	GeneratedDir string       `mapstructure:"generated_dir"`
	ImportPrefix string       `mapstructure:"import_prefix"`
	Server       ServerConfig `mapstructure:"server"`
	Watch        WatchConfig  `mapstructure:"watch"`
	Log          LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type WatchConfig struct {
	Include  []string      `mapstructure:"include"`
	Exclude  []string      `mapstructure:"exclude"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// New returns a viper instance with defaults and environment binding set.
// If configFile is empty, lineage.yaml is looked for in root; a missing file
// there is not an error.
func New(configFile, root string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		if root == "" {
			root = "."
		}
		v.AddConfigPath(root)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("db", "")
	v.SetDefault("generated_dir", "generated")
	v.SetDefault("import_prefix", extract.RootAlias)

	v.SetDefault("server.addr", server.DefaultAddr)

	v.SetDefault("watch.include", discover.DefaultInclude)
	v.SetDefault("watch.exclude", append(append([]string(nil), discover.DefaultExclude...), "generated/**"))
	v.SetDefault("watch.debounce", "100ms")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load decodes v and resolves paths: root becomes absolute, and relative db
// and generated_dir paths are taken relative to root.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("config: root: %w", err)
	}
	cfg.Root = root
	if cfg.DB == "" {
		cfg.DB = filepath.Join(".lineage", "index.db")
	}
	cfg.DB = underRoot(root, cfg.DB)
	cfg.GeneratedDir = underRoot(root, cfg.GeneratedDir)

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return nil, fmt.Errorf("config: log.format %q: want text or json", cfg.Log.Format)
	}
	return &cfg, nil
}

func underRoot(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: log.level %q: %w", s, err)
	}
	return l, nil
}

// Logger builds a slog logger writing to w in the configured format.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
