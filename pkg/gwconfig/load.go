// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package gwconfig

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// envPattern matches both `${ENV}` and `{{ env.NAME }}` interpolation
// forms. Expansion happens
// upstream of viper.Unmarshal, never inside the typed structs themselves.
var envPattern = regexp.MustCompile(`\$\{(\w+)\}|\{\{\s*env\.(\w+)\s*\}\}`)

// ExpandEnv replaces every `${NAME}` or `{{ env.NAME }}` occurrence in s
// with the value of the named environment variable. An unset variable
// expands to the empty string.
func ExpandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := envPattern.FindStringSubmatch(match)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		return os.Getenv(name)
	})
}

// Loader reads the gateway's TOML configuration through viper/afero,
// expands `${ENV}` / `{{ env.NAME }}` references, and unmarshals into a
// typed Config.
type Loader struct {
	v      *viper.Viper
	fs     afero.Fs
	logger *zap.Logger
}

// NewLoader returns a Loader reading from the OS filesystem via afero.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	fs := afero.NewOsFs()
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("toml")
	return &Loader{v: v, fs: fs, logger: logger}
}

// Load reads path, expands environment references in its raw text, and
// unmarshals the result into a Config. ProviderOrder is derived after
// unmarshal since mapstructure has no notion of declaration order;
// model_filter strings are left uncompiled.
func (l *Loader) Load(path string) (*Config, error) {
	raw, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	expanded := ExpandEnv(string(raw))

	l.v.SetConfigType(configTypeFor(path))
	if err := l.v.ReadConfig(strings.NewReader(expanded)); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config %s: %w", path, err)
	}
	cfg.LLM.ProviderOrder = providerOrderFromText(expanded, cfg.LLM.Providers)
	return &cfg, nil
}

// configTypeFor picks viper's config-type hint from the file extension,
// defaulting to TOML, the gateway's native format.
func configTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return "yaml"
	case strings.HasSuffix(path, ".json"):
		return "json"
	default:
		return "toml"
	}
}

// providerHeaderPattern matches a `[llm.providers.<key>]` (or deeper,
// e.g. `[llm.providers.<key>.models.<id>]`) TOML table header at the start
// of a line, capturing the provider key.
var providerHeaderPattern = regexp.MustCompile(`(?m)^\s*\[llm\.providers\.([A-Za-z0-9_-]+)`)

// providerOrderFromText recovers the declaration order of
// [llm.providers.*] tables by scanning the raw config text. viper's
// settings live in Go maps with no stable iteration order, so declaration
// order — which auto-routing depends on — has to come from the document
// itself. Keys that scan out of the text but not out of the unmarshal (or
// vice versa, for non-TOML formats) fall back to sorted order at the end.
func providerOrderFromText(raw string, providers map[string]ProviderConfig) []string {
	seen := make(map[string]bool, len(providers))
	var order []string
	for _, m := range providerHeaderPattern.FindAllStringSubmatch(raw, -1) {
		key := m[1]
		if _, ok := providers[key]; ok && !seen[key] {
			seen[key] = true
			order = append(order, key)
		}
	}

	var rest []string
	for key := range providers {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// Watch installs a fsnotify-backed reload callback: whenever path's config
// file changes on disk, Load runs again and onReload is invoked with the
// freshly parsed and re-validated Config. A reload
// is expected to restart request dispatch wiring (registries stay
// immutable within one process generation) — the caller decides what
// "reload" means for already-running collaborators; this just supplies
// the trigger and the freshly validated config.
func (l *Loader) Watch(path string, onReload func(*Config, ValidationResult)) error {
	l.v.SetConfigFile(path)
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.Load(path)
		if err != nil {
			l.logger.Warn("config reload failed, keeping previous configuration",
				zap.String("path", path), zap.Error(err))
			return
		}
		result, err := Validate(cfg)
		if err != nil {
			l.logger.Warn("reloaded config failed validation, keeping previous configuration",
				zap.String("path", path), zap.Error(err))
			return
		}
		for _, w := range result.Warnings {
			l.logger.Warn("config warning", zap.String("path", path), zap.String("warning", w))
		}
		l.logger.Info("configuration reloaded", zap.String("path", path))
		onReload(cfg, result)
	})
	l.v.WatchConfig()
	return nil
}
