// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	// Register storage plugins
	_ "github.com/blinklabs-io/votechain/database"
	"github.com/blinklabs-io/votechain/database/plugin"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "votechain.config"

const (
	DefaultShutdownTimeout = "30s"
	DefaultDatabasePlugin  = "badger"
	DefaultDifficulty      = 4
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// ErrPluginListRequested is returned when the user requests to list available plugins
// This is not an error condition but a successful operation that displays plugin information
var ErrPluginListRequested = errors.New("plugin list requested")

type tempConfig struct {
	Config   yaml.Node      `yaml:"config,omitempty"`
	Database map[string]any `yaml:"database,omitempty"`
}

type Config struct {
	DatabasePlugin       string `yaml:"databasePlugin"       envconfig:"VOTECHAIN_DATABASE_PLUGIN"`
	BindAddr             string `yaml:"bindAddr"                                                  split_words:"true"`
	ShutdownTimeout      string `yaml:"shutdownTimeout"                                           split_words:"true"`
	AuthTokensFile       string `yaml:"authTokensFile"                                            split_words:"true"`
	AuthJwtSecretFile    string `yaml:"authJwtSecretFile"                                         split_words:"true"`
	AuthJwtPublicKeyFile string `yaml:"authJwtPublicKeyFile"                                      split_words:"true"`
	AuthJwtIssuer        string `yaml:"authJwtIssuer"                                             split_words:"true"`
	AuthJwtAudience      string `yaml:"authJwtAudience"                                           split_words:"true"`
	Difficulty           int    `yaml:"difficulty"`
	MempoolCapacity      int    `yaml:"mempoolCapacity"                                           split_words:"true"`
	ApiPort              uint   `yaml:"apiPort"              envconfig:"port"`
	MetricsPort          uint   `yaml:"metricsPort"                                               split_words:"true"`
	OneVotePerVoter      bool   `yaml:"oneVotePerVoter"                                           split_words:"true"`
	AuthDisabled         bool   `yaml:"authDisabled"                                              split_words:"true"`
	EnableKeyGeneration  bool   `yaml:"enableKeyGeneration"                                       split_words:"true"`
	Tracing              bool   `yaml:"tracing"`
	TracingStdout        bool   `yaml:"tracingStdout"                                             split_words:"true"`
}

// ShutdownTimeoutDuration parses ShutdownTimeout, falling back to the default
func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	raw := c.ShutdownTimeout
	if raw == "" {
		raw = DefaultShutdownTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdownTimeout %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid shutdownTimeout %q: must be positive", raw)
	}
	return d, nil
}

// ApiAddress returns the API listen address
func (c *Config) ApiAddress() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.ApiPort)
}

func defaultConfig() *Config {
	return &Config{
		DatabasePlugin:  DefaultDatabasePlugin,
		BindAddr:        "0.0.0.0",
		ShutdownTimeout: DefaultShutdownTimeout,
		Difficulty:      DefaultDifficulty,
		MempoolCapacity: 0,
		ApiPort:         8080,
		MetricsPort:     12798,
	}
}

var globalConfig = defaultConfig()

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.votechain/votechain.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".votechain", "votechain.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/votechain/votechain.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/votechain/votechain.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := loadConfigBytes(buf); err != nil {
			return nil, err
		}
	}
	// Process environment variables
	err := envconfig.Process("votechain", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}

	// Process plugin environment variables
	err = plugin.ProcessEnvVars()
	if err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}

	if err := globalConfig.validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

func loadConfigBytes(buf []byte) error {
	// First unmarshal into temp config to handle plugin sections
	var tempCfg tempConfig
	if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	// If config section exists, use it for main config
	if !tempCfg.Config.IsZero() {
		// Decode straight from the node so only keys present in the file
		// replace the existing defaults
		if err := tempCfg.Config.Decode(globalConfig); err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	} else {
		// Otherwise unmarshal the whole file as main config
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if tempCfg.Database == nil {
		return nil
	}
	// Extract plugin name if specified
	if pluginVal, exists := tempCfg.Database["plugin"]; exists {
		if pluginName, ok := pluginVal.(string); ok {
			globalConfig.DatabasePlugin = pluginName
		}
		delete(tempCfg.Database, "plugin")
	}
	// Build plugin config map, keyed by plugin type
	pluginConfig := make(map[string]map[string]map[string]any)
	for name, v := range tempCfg.Database {
		pluginType, ok := plugin.LookupType(name)
		if !ok {
			return fmt.Errorf("unknown storage plugin in config: %s", name)
		}
		options, ok := toStringMap(v)
		if !ok {
			// Log skipped non-map config entries
			fmt.Fprintf(os.Stderr, "warning: skipping database config entry %q: expected map, got %T\n", name, v)
			continue
		}
		typeName := plugin.PluginTypeName(pluginType)
		if pluginConfig[typeName] == nil {
			pluginConfig[typeName] = make(map[string]map[string]any)
		}
		pluginConfig[typeName][name] = options
	}
	if len(pluginConfig) > 0 {
		if err := plugin.ProcessConfig(pluginConfig); err != nil {
			return fmt.Errorf(
				"error processing plugin config: %w",
				err,
			)
		}
	}
	return nil
}

func toStringMap(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case map[string]any:
		return val, true
	case map[any]any:
		// Convert map[any]any to map[string]any
		stringAnyMap := make(map[string]any)
		for vk, vv := range val {
			if keyStr, ok := vk.(string); ok {
				stringAnyMap[keyStr] = vv
			}
		}
		return stringAnyMap, true
	default:
		return nil, false
	}
}

func (c *Config) validate() error {
	if c.Difficulty < 0 || c.Difficulty > 64 {
		return fmt.Errorf(
			"invalid difficulty: %d (must be between 0 and 64)",
			c.Difficulty,
		)
	}
	if c.MempoolCapacity < 0 {
		return fmt.Errorf("invalid mempoolCapacity: %d", c.MempoolCapacity)
	}
	if c.DatabasePlugin == "" {
		c.DatabasePlugin = DefaultDatabasePlugin
	}
	if c.DatabasePlugin != "list" {
		if _, ok := plugin.LookupType(c.DatabasePlugin); !ok {
			return fmt.Errorf("unknown database plugin: %s", c.DatabasePlugin)
		}
	}
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// ListPlugins writes the registered storage plugins to w
func ListPlugins(w io.Writer) {
	for _, pluginType := range plugin.PluginTypes {
		fmt.Fprintf(w, "Available %s plugins:\n", plugin.PluginTypeName(pluginType))
		for _, p := range plugin.GetPlugins(pluginType) {
			fmt.Fprintf(w, "  %s: %s\n", p.Name, p.Description)
		}
	}
}

func GetConfig() *Config {
	return globalConfig
}
