package main

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

type config struct {
	OutDir        string `mapstructure:"out_dir" default:"."`
	StubProfile   string `mapstructure:"stub_profile" default:"os2"`
	LoaderVersion string `mapstructure:"loader_version" default:""`
	Parallelism   int    `mapstructure:"parallelism" default:"4"`
	Strict        bool   `mapstructure:"strict" default:"false"`
}

// loadConfig reads the optional config file at path, layering it over the
// struct's defaults. Unlike the teacher's config loader, a missing path is
// not an error: a one-shot converter has no business requiring a config
// file when its flags and defaults already cover every setting.
func loadConfig(path string) (*config, error) {
	cfg := &config{}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to set config defaults: %w", err)
	}

	if path == "" {
		return cfg, nil
	}

	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config from '%s': %w", path, err)
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}
