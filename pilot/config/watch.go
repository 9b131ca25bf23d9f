package config

import (
	"errors"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// ErrNoConfigFile is returned by Watch when LoadConfig ran on defaults only.
var ErrNoConfigFile = errors.New("no config file in use")

// Watch hot-reloads the file picked up by LoadConfig. Every write that
// decodes and validates is stored in AppConfig and handed to onChange;
// invalid edits are logged and ignored.
func Watch(onChange func(*Config), logger zerolog.Logger) error {
	if viper.ConfigFileUsed() == "" {
		return ErrNoConfigFile
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := reload()
		if err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid config change")
			return
		}

		logger.Info().Str("file", e.Name).Msg("Config reloaded")
		if onChange != nil {
			onChange(cfg)
		}
	})
	viper.WatchConfig()
	return nil
}

func reload() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	AppConfig = cfg
	return &cfg, nil
}
