// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/promptchain/llm"
	"github.com/spf13/viper"
)

const (
	AppName = "promptchain"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "PROMPTCHAIN"
)

type Config struct {
	LogLevel     string            `mapstructure:"log_level"`
	ChainsDir    string            `mapstructure:"chains_dir"`
	DefaultModel string            `mapstructure:"default_model"`
	Models       []llm.ModelConfig `mapstructure:"models"`

	// File is the config file actually read, empty when none was found.
	File string `mapstructure:"-"`
}

// Load reads cfgFile, or searches the working directory and the user config
// directory for promptchain.yaml when cfgFile is empty. Environment variables
// with the PROMPTCHAIN_ prefix override scalar settings. A missing config file
// is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		addSearchPaths(v)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var used string
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		used = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.File = used
	if cfg.ChainsDir != "" && used != "" && !filepath.IsAbs(cfg.ChainsDir) {
		cfg.ChainsDir = filepath.Join(filepath.Dir(used), cfg.ChainsDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("chains_dir", "chains")
	v.SetDefault("default_model", "")
}

func addSearchPaths(v *viper.Viper) {
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, AppName))
	}
}

// Validate checks model aliases are unique and their types known.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for i, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("models[%d]: name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("models[%d]: duplicate name %q", i, m.Name)
		}
		seen[m.Name] = true
		if llm.NewModelType(string(m.APIType)) == llm.ModelTypeUnknown {
			return fmt.Errorf("model %q: unsupported type %q", m.Name, m.APIType)
		}
	}
	if c.DefaultModel != "" && !seen[c.DefaultModel] {
		return fmt.Errorf("default_model %q is not configured", c.DefaultModel)
	}
	return nil
}

// Model returns the config for alias name. An empty name selects
// DefaultModel, then the first configured model.
func (c *Config) Model(name string) (llm.ModelConfig, error) {
	if name == "" {
		name = c.DefaultModel
	}
	if name == "" {
		if len(c.Models) == 0 {
			return llm.ModelConfig{}, fmt.Errorf("no models configured")
		}
		return c.normalized(c.Models[0]), nil
	}
	for _, m := range c.Models {
		if m.Name == name {
			return c.normalized(m), nil
		}
	}
	return llm.ModelConfig{}, fmt.Errorf("model %q is not configured", name)
}

func (c *Config) normalized(m llm.ModelConfig) llm.ModelConfig {
	m.APIType = llm.NewModelType(string(m.APIType))
	return m
}
