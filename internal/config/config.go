// Package config loads the application configuration, layered in increasing
// precedence: built-in defaults, a yaml file, DRILLCARD_* environment
// variables, then command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "DRILLCARD_"

// Config is the full application configuration.
type Config struct {
	Listen        string   `koanf:"listen" validate:"required,hostname_port"`
	DBPath        string   `koanf:"db-path" validate:"required"`
	CatalogDirs   []string `koanf:"catalog-dirs" validate:"required,min=1"`
	CatalogRepos  []string `koanf:"catalog-repos"`
	ReposDir      string   `koanf:"repos-dir" validate:"required"`
	RedisAddr     string   `koanf:"redis-addr" validate:"omitempty,hostname_port"`
	RedisPassword string   `koanf:"redis-password"`
	RedisDB       int      `koanf:"redis-db" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:      ":8484",
		DBPath:      "drillcard.db",
		CatalogDirs: []string{"cards"},
		ReposDir:    "repos",
	}
}

// Flags returns the command-line flag set. Flag names double as config keys
// and flag defaults are the built-in defaults; an unchanged flag never
// overrides a value set by the file or environment layers.
func Flags() *pflag.FlagSet {
	d := Default()
	f := pflag.NewFlagSet("drillcard", pflag.ContinueOnError)
	f.String("config", "", "Path to a yaml config file")
	f.String("listen", d.Listen, "HTTP listen address")
	f.String("db-path", d.DBPath, "Path to the local sqlite database")
	f.StringSlice("catalog-dirs", d.CatalogDirs, "Directories holding card files")
	f.StringSlice("catalog-repos", nil, "Git repositories holding card files")
	f.String("repos-dir", d.ReposDir, "Directory git catalog repositories are cloned into")
	f.String("redis-addr", "", "Redis address for cross-device sync (empty disables sync)")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	return f
}

// Load parses args and assembles the configuration from all layers.
func Load(args []string) (Config, error) {
	f := Flags()
	if err := f.Parse(args); err != nil {
		return Config{}, err
	}

	k := koanf.New(".")

	if path, _ := f.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	} else if _, err := os.Stat("drillcard.yaml"); err == nil {
		if err := k.Load(file.Provider("drillcard.yaml"), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading drillcard.yaml: %w", err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", "-")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	// Flags win over everything, but unchanged flags do not clobber values
	// the earlier layers already set.
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("loading flags: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
