// Package config defines Tactical's small typed configuration surface and
// loads it from YAML, grounded on the LoadYAML(r io.Reader) pattern in the
// teacher's npc config loader.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/angular/tactical/internal/kv"
	"github.com/angular/tactical/internal/kv/badger"
	"github.com/angular/tactical/internal/kv/memory"
)

// Config configures one Store/Manager pairing: which KV engine backs the
// store, how it is opened, and how large the backend channel's buffers are.
type Config struct {
	// DatabaseName names the logical database; badger uses it to derive a
	// subdirectory under Badger.Path, other engines may ignore it.
	DatabaseName string `yaml:"database_name"`

	KV     KVConfig     `yaml:"kv"`
	Badger BadgerConfig `yaml:"badger"`

	// ChannelBufferSize sizes the buffered channels backend/local uses for
	// requests, mutates, data, and failures.
	ChannelBufferSize int `yaml:"channel_buffer_size"`

	// BackendURL, when set, is the websocket URL backend/ws dials.
	BackendURL string `yaml:"backend_url"`

	// DialTimeout bounds how long backend/ws.Dial waits for the handshake.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// KVConfig selects and configures the KV engine implementation.
type KVConfig struct {
	// Backend is "memory" or "badger". Defaults to "memory".
	Backend string `yaml:"backend"`
}

// BadgerConfig configures the badger-backed engine. Only consulted when
// KVConfig.Backend is "badger".
type BadgerConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration Tactical runs with when nothing is
// loaded from disk: an in-memory KV engine and modest channel buffering.
func Default() Config {
	return Config{
		DatabaseName:      "tactical_db",
		KV:                KVConfig{Backend: "memory"},
		ChannelBufferSize: 32,
		DialTimeout:       10 * time.Second,
	}
}

// Load reads and parses a YAML config file at path, applying Default()
// first so unset fields keep their defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open: %w", err)
	}
	defer f.Close()
	return LoadYAML(f)
}

// LoadYAML parses a YAML config document from r, applying Default() first
// so unset fields keep their defaults.
func LoadYAML(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, cfg.Validate()
}

// OpenKV opens the kv.Engine selected by c.KV.Backend.
func (c Config) OpenKV() (kv.Engine, error) {
	switch c.KV.Backend {
	case "badger":
		return badger.Open(filepath.Join(c.Badger.Path, c.DatabaseName))
	default:
		return memory.New(), nil
	}
}

// Validate reports whether cfg is internally consistent.
func (c Config) Validate() error {
	switch c.KV.Backend {
	case "memory", "badger":
	default:
		return fmt.Errorf("config: unknown kv backend %q (want memory or badger)", c.KV.Backend)
	}
	if c.KV.Backend == "badger" && c.Badger.Path == "" {
		return fmt.Errorf("config: badger.path is required when kv.backend is badger")
	}
	if c.ChannelBufferSize <= 0 {
		return fmt.Errorf("config: channel_buffer_size must be positive, got %d", c.ChannelBufferSize)
	}
	return nil
}
