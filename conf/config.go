// Package conf loads mongoagg configuration files.
package conf

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/egorgvo/mongoagg/core"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	// AppName is used in log output.
	AppName string `mapstructure:"app_name"`

	// Inherits names another config file in the same directory whose values
	// this file overrides. Only one level of inheritance is allowed.
	Inherits string `mapstructure:"inherits"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `mapstructure:"log_level"`

	// LogFormat is json or simple.
	LogFormat string `mapstructure:"log_format"`

	// RecipesPath is the directory holding recipe files. Relative paths are
	// resolved against the config directory.
	RecipesPath string `mapstructure:"recipes_path"`

	// RecipeCacheSize caps the number of parsed recipes kept in memory.
	RecipeCacheSize int `mapstructure:"recipe_cache_size"`

	Mongo       Mongo       `mapstructure:"mongo"`
	Aggregation Aggregation `mapstructure:"aggregation"`

	configDir string
}

// Mongo holds the server connection settings.
type Mongo struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	PingAttempts   uint          `mapstructure:"ping_attempts"`
}

// Aggregation holds defaults applied to every pipeline built from a recipe.
type Aggregation struct {
	AllowDiskUse bool            `mapstructure:"allow_disk_use"`
	Collation    *core.Collation `mapstructure:"collation"`
}

// ConfigDir is the directory the config file was read from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// AbsRecipesPath resolves RecipesPath against the config directory.
func (c *Config) AbsRecipesPath() string {
	if filepath.IsAbs(c.RecipesPath) {
		return c.RecipesPath
	}
	return filepath.Join(c.configDir, c.RecipesPath)
}

// ReadInConfig reads configFile from the OS filesystem.
func ReadInConfig(configFile string) (*Config, error) {
	return ReadInConfigFS(configFile, afero.NewOsFs())
}

// ReadInConfigFS reads configFile from fs. Values may be overridden with
// MONGOAGG_ prefixed environment variables, e.g. MONGOAGG_MONGO_URI.
func ReadInConfigFS(configFile string, fs afero.Fs) (*Config, error) {
	cp := filepath.Dir(configFile)
	vi := newViper(cp, filepath.Base(configFile), fs)

	if err := vi.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", configFile, err)
	}

	if pcf := vi.GetString("inherits"); pcf != "" {
		cf := vi.ConfigFileUsed()
		vi = newViper(cp, pcf, fs)

		if err := vi.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading inherited config %s: %w", pcf, err)
		}

		if v := vi.GetString("inherits"); v != "" {
			return nil, fmt.Errorf("inherited config (%s) cannot itself inherit (%s)", pcf, v)
		}

		vi.SetConfigFile(cf)

		if err := vi.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging config %s: %w", cf, err)
		}
	}

	c := &Config{configDir: cp}
	if err := vi.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return c, nil
}

func newViper(configPath, configFile string, fs afero.Fs) *viper.Viper {
	vi := viper.New()
	vi.SetFs(fs)

	vi.SetEnvPrefix("MONGOAGG")
	vi.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vi.AutomaticEnv()

	if ext := filepath.Ext(configFile); ext != "" {
		vi.SetConfigType(strings.TrimPrefix(ext, "."))
		configFile = strings.TrimSuffix(configFile, ext)
	} else {
		vi.SetConfigType("yaml")
	}
	vi.SetConfigName(configFile)
	vi.AddConfigPath(configPath)

	vi.SetDefault("app_name", "mongoagg")
	vi.SetDefault("log_level", "info")
	vi.SetDefault("log_format", "simple")
	vi.SetDefault("recipes_path", "./recipes")
	vi.SetDefault("recipe_cache_size", 100)
	vi.SetDefault("mongo.uri", "mongodb://localhost:27017")
	vi.SetDefault("mongo.database", "")
	vi.SetDefault("mongo.connect_timeout", "10s")
	vi.SetDefault("mongo.ping_attempts", 3)
	vi.SetDefault("aggregation.allow_disk_use", false)

	return vi
}
