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

package plugin_test

import (
	"errors"
	"testing"

	"github.com/blinklabs-io/votechain/database/plugin"
	"github.com/spf13/pflag"
)

// Mock plugin implementation for testing
type mockPlugin struct{}

func (m *mockPlugin) Start() error { return nil }
func (m *mockPlugin) Stop() error  { return nil }

func TestRegister(t *testing.T) {
	pluginName := "test-plugin-" + t.Name()
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeKv,
		Name:               pluginName,
		NewFromOptionsFunc: func() plugin.Plugin { return &mockPlugin{} },
	})

	// Check that GetPlugin finds it
	if p := plugin.GetPlugin(plugin.PluginTypeKv, pluginName); p == nil {
		t.Error("plugin not found")
	}
	// It must not be visible under another type
	if p := plugin.GetPlugin(plugin.PluginTypeSql, pluginName); p != nil {
		t.Error("plugin found under wrong type")
	}

	// Check that GetPlugins includes it
	found := false
	for _, pl := range plugin.GetPlugins(plugin.PluginTypeKv) {
		if pl.Name == pluginName && pl.Type == plugin.PluginTypeKv {
			found = true
			break
		}
	}
	if !found {
		t.Error("plugin not in GetPlugins list")
	}

	pluginType, ok := plugin.LookupType(pluginName)
	if !ok || pluginType != plugin.PluginTypeKv {
		t.Errorf("unexpected LookupType result: %v %v", pluginType, ok)
	}
	if _, ok := plugin.LookupType("non-existent-" + t.Name()); ok {
		t.Error("LookupType found a non-existent plugin")
	}
}

func TestPluginTypeName(t *testing.T) {
	if name := plugin.PluginTypeName(plugin.PluginTypeKv); name != "kv" {
		t.Errorf("unexpected name %q", name)
	}
	if name := plugin.PluginTypeName(plugin.PluginTypeSql); name != "sql" {
		t.Errorf("unexpected name %q", name)
	}
	if name := plugin.PluginTypeName(plugin.PluginType(99)); name != "unknown" {
		t.Errorf("unexpected name %q", name)
	}
}

func TestStartPlugin(t *testing.T) {
	okName := "start-ok-" + t.Name()
	failName := "start-fail-" + t.Name()
	startErr := errors.New("boom")
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeSql,
		Name:               okName,
		NewFromOptionsFunc: func() plugin.Plugin { return &mockPlugin{} },
	})
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeSql,
		Name:               failName,
		NewFromOptionsFunc: func() plugin.Plugin { return plugin.NewErrorPlugin(startErr) },
	})

	if _, err := plugin.StartPlugin(plugin.PluginTypeSql, okName, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := plugin.StartPlugin(plugin.PluginTypeSql, failName, nil, nil); !errors.Is(err, startErr) {
		t.Fatalf("expected start error, got %v", err)
	}
	if _, err := plugin.StartPlugin(plugin.PluginTypeSql, "missing-"+t.Name(), nil, nil); err == nil {
		t.Fatal("expected error for missing plugin")
	}
}

type optionDests struct {
	str  string
	flag bool
	num  int
	size uint64
}

func registerOptionPlugin(t *testing.T) (string, *optionDests) {
	t.Helper()
	dests := &optionDests{}
	name := "opts-" + t.Name()
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeKv,
		Name:               name,
		NewFromOptionsFunc: func() plugin.Plugin { return &mockPlugin{} },
		Options: []plugin.PluginOption{
			{Name: "data-dir", Type: plugin.PluginOptionTypeString, DefaultValue: "def", Dest: &dests.str},
			{Name: "gc", Type: plugin.PluginOptionTypeBool, DefaultValue: true, Dest: &dests.flag},
			{Name: "retries", Type: plugin.PluginOptionTypeInt, DefaultValue: 3, Dest: &dests.num},
			{Name: "cache-size", Type: plugin.PluginOptionTypeUint, DefaultValue: uint64(10), Dest: &dests.size},
		},
	})
	return name, dests
}

func TestSetPluginOption(t *testing.T) {
	name, dests := registerOptionPlugin(t)

	if err := plugin.SetPluginOption(plugin.PluginTypeKv, name, "data-dir", "/tmp/x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dests.str != "/tmp/x" {
		t.Errorf("unexpected data-dir %q", dests.str)
	}
	// Setting with wrong type should return an error
	if err := plugin.SetPluginOption(plugin.PluginTypeKv, name, "data-dir", 123); err == nil {
		t.Error("expected type error, got nil")
	}
	if err := plugin.SetPluginOption(plugin.PluginTypeKv, name, "gc", false); err != nil || dests.flag {
		t.Errorf("unexpected bool result: %v %v", err, dests.flag)
	}
	if err := plugin.SetPluginOption(plugin.PluginTypeKv, name, "retries", 7); err != nil || dests.num != 7 {
		t.Errorf("unexpected int result: %v %v", err, dests.num)
	}
	// Uint options accept int and uint64
	if err := plugin.SetPluginOption(plugin.PluginTypeKv, name, "cache-size", 42); err != nil || dests.size != 42 {
		t.Errorf("unexpected uint result: %v %v", err, dests.size)
	}
	if err := plugin.SetPluginOption(plugin.PluginTypeKv, name, "cache-size", uint64(43)); err != nil || dests.size != 43 {
		t.Errorf("unexpected uint result: %v %v", err, dests.size)
	}
	if err := plugin.SetPluginOption(plugin.PluginTypeKv, name, "cache-size", -1); err == nil {
		t.Error("expected error for negative uint")
	}
	// Setting an unknown option is a no-op
	if err := plugin.SetPluginOption(plugin.PluginTypeKv, name, "does-not-exist", "x"); err != nil {
		t.Errorf("unexpected error for unknown option: %v", err)
	}
	if err := plugin.SetPluginOption(plugin.PluginTypeKv, "nonexistent-"+t.Name(), "data-dir", "x"); err == nil {
		t.Error("expected error for nonexistent plugin")
	}
}

func TestPopulateCmdlineOptions(t *testing.T) {
	name, dests := registerOptionPlugin(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := plugin.PopulateCmdlineOptions(fs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dests.str != "def" || !dests.flag || dests.num != 3 || dests.size != 10 {
		t.Fatalf("defaults not applied: %+v", dests)
	}
	err := fs.Parse([]string{
		"--kv-" + name + "-data-dir=/data",
		"--kv-" + name + "-cache-size=99",
	})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if dests.str != "/data" || dests.size != 99 {
		t.Errorf("flags not applied: %+v", dests)
	}
}

func TestProcessConfig(t *testing.T) {
	name, dests := registerOptionPlugin(t)
	err := plugin.ProcessConfig(map[string]map[string]map[string]any{
		"kv": {
			name: {
				"data-dir":   "/from/config",
				"cache-size": 1024,
				"gc":         false,
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dests.str != "/from/config" || dests.size != 1024 || dests.flag {
		t.Errorf("config not applied: %+v", dests)
	}
}

func TestProcessEnvVars(t *testing.T) {
	_, dests := registerOptionPlugin(t)
	// t.Name() is "TestProcessEnvVars", so the plugin is opts-TestProcessEnvVars
	t.Setenv("VOTECHAIN_KV_OPTS_TESTPROCESSENVVARS_DATA_DIR", "/from/env")
	t.Setenv("VOTECHAIN_KV_OPTS_TESTPROCESSENVVARS_RETRIES", "11")
	if err := plugin.ProcessEnvVars(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dests.str != "/from/env" || dests.num != 11 {
		t.Errorf("env not applied: %+v", dests)
	}

	t.Setenv("VOTECHAIN_KV_OPTS_TESTPROCESSENVVARS_GC", "notabool")
	if err := plugin.ProcessEnvVars(); err == nil {
		t.Error("expected error for invalid bool")
	}
}
