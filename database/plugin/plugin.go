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
	"context"
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/votechain/chain"
	"github.com/prometheus/client_golang/prometheus"
)

type Plugin interface {
	Start() error
	Stop() error
}

// Store is the storage contract every kv and sql plugin fulfills. Blocks are
// keyed by index and returned in index order. Pending transactions are
// returned in the order they were saved.
type Store interface {
	Plugin
	LoadBlocks(ctx context.Context) ([]chain.Block, error)
	LoadPending(ctx context.Context) ([]chain.Transaction, error)
	SaveBlock(ctx context.Context, block chain.Block) error
	SavePending(ctx context.Context, tx chain.Transaction) error
	ClearPending(ctx context.Context) error
	// TruncateBlocks deletes every block with an index of at least from
	TruncateBlocks(ctx context.Context, from uint64) error
	Close() error
}

// Observable is implemented by plugins that accept a logger and metrics
// registry before they are started
type Observable interface {
	SetLogger(*slog.Logger)
	SetPromRegistry(prometheus.Registerer)
}

// ErrorPlugin is a plugin that always returns an error on Start()
type ErrorPlugin struct {
	Err error
}

func (e *ErrorPlugin) Start() error {
	return e.Err
}

func (e *ErrorPlugin) Stop() error {
	return nil
}

// NewErrorPlugin creates a new error plugin that returns the given error on Start()
func NewErrorPlugin(err error) Plugin {
	return &ErrorPlugin{Err: err}
}

// StartPlugin gets a plugin from the registry and starts it. The logger and
// registry are handed to plugins implementing Observable and may be nil.
func StartPlugin(
	pluginType PluginType,
	pluginName string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (Plugin, error) {
	p := GetPlugin(pluginType, pluginName)
	if p == nil {
		return nil, fmt.Errorf(
			"%s plugin '%s' not found",
			PluginTypeName(pluginType),
			pluginName,
		)
	}
	if o, ok := p.(Observable); ok {
		if logger != nil {
			o.SetLogger(logger)
		}
		if promRegistry != nil {
			o.SetPromRegistry(promRegistry)
		}
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf(
			"failed to start %s plugin '%s': %w",
			PluginTypeName(pluginType),
			pluginName,
			err,
		)
	}
	return p, nil
}

// SetPluginOption sets the value of a named option for a plugin entry. This
// is used by callers that need to programmatically override plugin defaults
// (for example to set data-dir before starting a plugin). It returns an error
// if the plugin is not found or if the value type is incompatible. Unknown
// options are ignored, so callers may set an option that only some plugins
// have.
// NOTE: This writes directly to the option destinations and must only be
// called during initialization, before any plugin instance is created.
func SetPluginOption(
	pluginType PluginType,
	pluginName string,
	optionName string,
	value any,
) error {
	for i := range pluginEntries {
		p := &pluginEntries[i]
		if p.Type != pluginType || p.Name != pluginName {
			continue
		}
		for _, opt := range p.Options {
			if opt.Name != optionName {
				continue
			}
			switch opt.Type {
			case PluginOptionTypeString:
				return assignOption[string](opt, value)
			case PluginOptionTypeBool:
				return assignOption[bool](opt, value)
			case PluginOptionTypeInt:
				return assignOption[int](opt, value)
			case PluginOptionTypeUint:
				// accept uint64 or a non-negative int
				if tv, ok := value.(int); ok {
					if tv < 0 {
						return fmt.Errorf(
							"invalid value for option %s: negative int",
							optionName,
						)
					}
					value = uint64(tv)
				}
				return assignOption[uint64](opt, value)
			default:
				return fmt.Errorf(
					"unknown plugin option type %d for option %s",
					opt.Type,
					optionName,
				)
			}
		}
		return nil
	}
	return fmt.Errorf(
		"plugin %s of type %s not found",
		pluginName,
		PluginTypeName(pluginType),
	)
}

// assignOption performs a type-checked assignment into the option's Dest pointer
func assignOption[T any](opt PluginOption, value any) error {
	v, ok := value.(T)
	if !ok {
		return fmt.Errorf(
			"invalid type for option %s: expected %T, got %T",
			opt.Name,
			v,
			value,
		)
	}
	dest, ok := opt.Dest.(*T)
	if !ok || dest == nil {
		return fmt.Errorf(
			"invalid destination for option %s: expected *%T",
			opt.Name,
			v,
		)
	}
	*dest = v
	return nil
}
