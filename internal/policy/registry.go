package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"radar/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const fileSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["reorder"],
  "properties": {
    "reorder": {"$ref": "#/$defs/thresholds"},
    "brands": {
      "type": "object",
      "additionalProperties": {"$ref": "#/$defs/thresholds"}
    }
  },
  "$defs": {
    "thresholds": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "urgent_days": {"type": "number", "minimum": 0},
        "soon_days": {"type": "number", "minimum": 0},
        "excess_days": {"type": "number", "minimum": 0}
      }
    }
  }
}`

// Snapshot is one loaded version of the policy.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Source   string
	Policy   Policy
}

type ChangeListener func(Snapshot)

// Registry serves the current policy. With a file path it reloads on change;
// a failed reload keeps the previous version.
type Registry struct {
	path   string
	v      *viper.Viper
	schema *jsonschema.Schema

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// Static returns a registry that never reloads.
func Static(p Policy) *Registry {
	return &Registry{snapshot: Snapshot{Version: 1, LoadedAt: time.Now(), Source: "config", Policy: p.normalized()}}
}

// NewRegistry loads path, writing fallback there first when the file does
// not exist. An empty path yields Static(fallback).
func NewRegistry(path string, fallback Policy) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Static(fallback), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteDefault(path, fallback); err != nil {
			return nil, err
		}
		logger.Infof("reorder policy: wrote defaults to %s", path)
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read reorder policy failed: %w", err)
	}
	r := &Registry{path: path, v: v, schema: schema}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Watch reloads the file on change until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	if r.v == nil {
		<-ctx.Done()
		return nil
	}
	r.v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("reorder policy reload failed (%s): %v", evt.Op, err)
			return
		}
		r.notifyListeners()
	})
	r.v.WatchConfig()
	logger.Infof("reorder policy: watching %s", r.path)
	<-ctx.Done()
	return nil
}

// OnChange registers fn for future reloads.
func (r *Registry) OnChange(fn ChangeListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Thresholds returns the thresholds that apply to brand.
func (r *Registry) Thresholds(brand string) Thresholds {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.Policy.For(brand)
}

func (r *Registry) reload() error {
	p, err := r.readFile()
	if err != nil {
		return err
	}
	r.mu.Lock()
	version := r.snapshot.Version + 1
	r.snapshot = Snapshot{
		Version:  version,
		LoadedAt: time.Now(),
		Source:   r.path,
		Policy:   p,
	}
	r.mu.Unlock()
	logger.Infof("reorder policy v%d loaded from %s (%d brand overrides)", version, filepath.Base(r.path), len(p.Brands))
	return nil
}

func (r *Registry) readFile() (Policy, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return Policy{}, fmt.Errorf("read reorder policy failed: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Policy{}, fmt.Errorf("parse reorder policy failed: %w", err)
	}
	// Round-trip through JSON so the validator sees plain JSON types.
	js, err := json.Marshal(doc)
	if err != nil {
		return Policy{}, fmt.Errorf("parse reorder policy failed: %w", err)
	}
	var generic any
	if err := json.Unmarshal(js, &generic); err != nil {
		return Policy{}, err
	}
	if err := r.schema.Validate(generic); err != nil {
		return Policy{}, fmt.Errorf("reorder policy %s: %w", filepath.Base(r.path), err)
	}
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Policy{}, fmt.Errorf("parse reorder policy failed: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p.normalized(), nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := r.snapshot
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(snap)
		}
	}
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("reorder_policy.json", strings.NewReader(fileSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("reorder_policy.json")
}

// WriteDefault writes p as YAML to path, creating parent directories.
func WriteDefault(path string, p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	buf.WriteString("# Reorder thresholds in days of cover. Edits are picked up while serving.\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
