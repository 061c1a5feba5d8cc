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

package plugin

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

type PluginType int

const (
	PluginTypeKv PluginType = iota + 1
	PluginTypeSql
)

// PluginTypes lists every plugin type in lookup order
var PluginTypes = []PluginType{PluginTypeKv, PluginTypeSql}

func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeKv:
		return "kv"
	case PluginTypeSql:
		return "sql"
	default:
		return "unknown"
	}
}

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = iota + 1
	PluginOptionTypeBool
	PluginOptionTypeInt
	PluginOptionTypeUint
)

type PluginOption struct {
	DefaultValue any
	Dest         any
	Name         string
	Description  string
	Type         PluginOptionType
}

type PluginEntry struct {
	NewFromOptionsFunc func() Plugin
	Name               string
	Description        string
	Options            []PluginOption
	Type               PluginType
}

var pluginEntries []PluginEntry

// Register adds a plugin to the registry. It is meant to be called from the
// init function of each plugin package.
func Register(pluginEntry PluginEntry) {
	pluginEntries = append(pluginEntries, pluginEntry)
}

// GetPlugins returns the registry entries for a plugin type
func GetPlugins(pluginType PluginType) []PluginEntry {
	var ret []PluginEntry
	for _, entry := range pluginEntries {
		if entry.Type == pluginType {
			ret = append(ret, entry)
		}
	}
	return ret
}

// GetPlugin returns a new instance of the named plugin, or nil if no such
// plugin is registered
func GetPlugin(pluginType PluginType, pluginName string) Plugin {
	for _, entry := range pluginEntries {
		if entry.Type == pluginType && entry.Name == pluginName {
			return entry.NewFromOptionsFunc()
		}
	}
	return nil
}

// LookupType returns the type of the named plugin
func LookupType(pluginName string) (PluginType, bool) {
	for _, entry := range pluginEntries {
		if entry.Name == pluginName {
			return entry.Type, true
		}
	}
	return 0, false
}

func flagName(entry PluginEntry, opt PluginOption) string {
	return fmt.Sprintf(
		"%s-%s-%s",
		PluginTypeName(entry.Type),
		entry.Name,
		opt.Name,
	)
}

func envVarName(entry PluginEntry, opt PluginOption) string {
	name := fmt.Sprintf(
		"VOTECHAIN_%s_%s_%s",
		PluginTypeName(entry.Type),
		entry.Name,
		opt.Name,
	)
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// PopulateCmdlineOptions adds a flag for every plugin option, named
// <type>-<plugin>-<option>
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	for _, entry := range pluginEntries {
		for _, opt := range entry.Options {
			name := flagName(entry, opt)
			switch opt.Type {
			case PluginOptionTypeString:
				dest, ok := opt.Dest.(*string)
				def, _ := opt.DefaultValue.(string)
				if !ok {
					return fmt.Errorf("invalid destination for flag %s", name)
				}
				fs.StringVar(dest, name, def, opt.Description)
			case PluginOptionTypeBool:
				dest, ok := opt.Dest.(*bool)
				def, _ := opt.DefaultValue.(bool)
				if !ok {
					return fmt.Errorf("invalid destination for flag %s", name)
				}
				fs.BoolVar(dest, name, def, opt.Description)
			case PluginOptionTypeInt:
				dest, ok := opt.Dest.(*int)
				def, _ := opt.DefaultValue.(int)
				if !ok {
					return fmt.Errorf("invalid destination for flag %s", name)
				}
				fs.IntVar(dest, name, def, opt.Description)
			case PluginOptionTypeUint:
				dest, ok := opt.Dest.(*uint64)
				def, _ := opt.DefaultValue.(uint64)
				if !ok {
					return fmt.Errorf("invalid destination for flag %s", name)
				}
				fs.Uint64Var(dest, name, def, opt.Description)
			default:
				return fmt.Errorf(
					"unknown plugin option type %d for flag %s",
					opt.Type,
					name,
				)
			}
		}
	}
	return nil
}

// ProcessConfig applies plugin options from a config file. The map is keyed
// by plugin type name, then plugin name, then option name.
func ProcessConfig(pluginConfig map[string]map[string]map[string]any) error {
	for _, entry := range pluginEntries {
		typeConfig, ok := pluginConfig[PluginTypeName(entry.Type)]
		if !ok {
			continue
		}
		options, ok := typeConfig[entry.Name]
		if !ok {
			continue
		}
		for _, opt := range entry.Options {
			value, ok := options[opt.Name]
			if !ok {
				continue
			}
			// YAML decodes integers as int
			if opt.Type == PluginOptionTypeUint {
				if v, ok := value.(int); ok {
					if v < 0 {
						return fmt.Errorf(
							"invalid value for option %s: negative int",
							opt.Name,
						)
					}
					value = uint64(v)
				}
			}
			if err := SetPluginOption(entry.Type, entry.Name, opt.Name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// ProcessEnvVars applies plugin options from environment variables named
// VOTECHAIN_<TYPE>_<PLUGIN>_<OPTION>
func ProcessEnvVars() error {
	for _, entry := range pluginEntries {
		for _, opt := range entry.Options {
			name := envVarName(entry, opt)
			raw, ok := os.LookupEnv(name)
			if !ok {
				continue
			}
			var value any
			var err error
			switch opt.Type {
			case PluginOptionTypeString:
				value = raw
			case PluginOptionTypeBool:
				value, err = strconv.ParseBool(raw)
			case PluginOptionTypeInt:
				value, err = strconv.Atoi(raw)
			case PluginOptionTypeUint:
				value, err = strconv.ParseUint(raw, 10, 64)
			default:
				err = fmt.Errorf("unknown plugin option type %d", opt.Type)
			}
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if err := SetPluginOption(entry.Type, entry.Name, opt.Name, value); err != nil {
				return err
			}
		}
	}
	return nil
}
