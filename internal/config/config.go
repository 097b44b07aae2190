// Package config resolves CDS credentials, client tuning and request
// documents from flags, environment, .env and rc files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rtm0/era5cds/internal/cds"
)

// Viper keys.
const (
	KeyRC              = "rc"
	KeyURL             = "url"
	KeyKey             = "key"
	KeyPollInterval    = "poll_interval"
	KeyMaxPollInterval = "max_poll_interval"
	KeyMaxWait         = "max_wait"
	KeyLogLevel        = "log_level"
	KeyLogFile         = "log_file"
)

// EnvPrefix prefixes every environment variable read by Load, e.g.
// CDSAPI_URL and CDSAPI_KEY.
const EnvPrefix = "CDSAPI"

// Config holds the settings of a CDS session.
type Config struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	Key             string        `mapstructure:"key" validate:"required"`
	PollInterval    time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	MaxPollInterval time.Duration `mapstructure:"max_poll_interval" validate:"gtefield=PollInterval"`
	MaxWait         time.Duration `mapstructure:"max_wait" validate:"gte=0"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFile         string        `mapstructure:"log_file"`
}

var validate = validator.New()

// SetDefaults registers the default of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyURL, cds.DefaultURL)
	v.SetDefault(KeyPollInterval, time.Second)
	v.SetDefault(KeyMaxPollInterval, 2*time.Minute)
	v.SetDefault(KeyMaxWait, 12*time.Hour)
	v.SetDefault(KeyLogLevel, "info")
}

// Bind loads a .env file from the working directory when there is one and
// registers the defaults and CDSAPI_* environment variables of every key
// on v.
func Bind(v *viper.Viper) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cannot load .env: %w", err)
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	for _, key := range []string{KeyRC, KeyURL, KeyKey, KeyPollInterval, KeyMaxPollInterval, KeyMaxWait, KeyLogLevel, KeyLogFile} {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	return nil
}

// Load resolves the configuration. Precedence, highest first: flags bound to
// v, CDSAPI_* environment variables (a .env file in the working directory
// included), the rc file and the defaults.
func Load(v *viper.Viper) (*Config, error) {
	if err := Bind(v); err != nil {
		return nil, err
	}

	if err := readRC(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode configuration: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// readRC merges the rc file (url: and key: lines) into v. A missing rc file
// is not an error unless its path was given explicitly.
func readRC(v *viper.Viper) error {
	path := v.GetString(KeyRC)
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".cdsapirc")
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	return nil
}

// ClientConfig returns the CDS client settings.
func (c *Config) ClientConfig() cds.Config {
	return cds.Config{
		URL:             c.URL,
		Key:             c.Key,
		PollInterval:    c.PollInterval,
		MaxPollInterval: c.MaxPollInterval,
		MaxWait:         c.MaxWait,
	}
}
