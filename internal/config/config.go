// Package config loads radar's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// EnvConfigPath overrides the config path when no flag is given.
	EnvConfigPath = "RADAR_CONFIG"
	// DefaultPath is used when neither flag nor env names a file.
	DefaultPath = "configs/config.yaml"
)

// envBindings map secrets to environment variables. Set variables win over
// the files.
var envBindings = map[string]string{
	"store.postgres_dsn":      "RADAR_POSTGRES_DSN",
	"store.postgrest.url":     "RADAR_POSTGREST_URL",
	"store.postgrest.api_key": "RADAR_POSTGREST_API_KEY",
	"app.log_level":           "RADAR_LOG_LEVEL",
	"app.http_addr":           "RADAR_HTTP_ADDR",
}

// LoadEnv reads .env files into the process environment without overriding
// variables already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ResolvePath picks the config file: flag, then RADAR_CONFIG, then DefaultPath.
func ResolvePath(flag string) string {
	if p := strings.TrimSpace(flag); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultPath
}

func Load(path string) (*Config, error) {
	files, err := resolveConfigIncludes(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		if err := mergeConfigFile(v, file); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	collectSettingsKeys(v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(tmp.AllSettings())
}

// resolveConfigIncludes orders path and its includes depth-first so that
// included files are merged before the file that names them.
func resolveConfigIncludes(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := includeWalker{seen: map[string]bool{}, stack: map[string]bool{}}
	if err := w.visit(abs); err != nil {
		return nil, err
	}
	return w.ordered, nil
}

type includeWalker struct {
	seen    map[string]bool
	stack   map[string]bool
	ordered []string
}

func (w *includeWalker) visit(path string) error {
	path = filepath.Clean(path)
	if w.stack[path] {
		return fmt.Errorf("include cycle detected: %s", path)
	}
	if w.seen[path] {
		return nil
	}
	w.stack[path] = true
	includes, err := parseIncludeList(path)
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := w.visit(inc); err != nil {
			return err
		}
	}
	delete(w.stack, path)
	w.seen[path] = true
	w.ordered = append(w.ordered, path)
	return nil
}

// parseIncludeList reads the top-level include key of one file. A single
// string is accepted as a one-element list.
func parseIncludeList(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var items []any
	switch val := v.Get("include").(type) {
	case nil:
		return nil, nil
	case string:
		items = []any{val}
	case []any:
		items = val
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("include must be a string or string array")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include only supports strings")
		}
		if str = strings.TrimSpace(str); str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}

func collectSettingsKeys(settings map[string]any, dest keySet) {
	if dest == nil || len(settings) == 0 {
		return
	}
	flattenConfigKeys("", settings, dest)
}

// flattenConfigKeys marks every leaf path. Lists count as leaves.
func flattenConfigKeys(prefix string, node any, dest keySet) {
	join := func(k string) string {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch val := node.(type) {
	case map[string]any:
		for k, v := range val {
			if next := join(k); next != "" {
				flattenConfigKeys(next, v, dest)
			}
		}
	case map[any]any:
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			if next := join(ks); next != "" {
				flattenConfigKeys(next, v, dest)
			}
		}
	default:
		if prefix != "" {
			dest.mark(prefix)
		}
	}
}
