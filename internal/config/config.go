// Package config handles configuration loading from TOML files, merged
// under any flags the CLI applies on top.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvConfigPath names the environment variable pointing at a config file.
const EnvConfigPath = "WASMJSONNET_CONFIG"

// defaultFile is looked up in the working directory when nothing else is
// specified.
const defaultFile = ".wasmjsonnet.toml"

// Config holds all settings the CLI reads from a file.
type Config struct {
	VM  VMConfig  `toml:"vm"`
	Ext VarConfig `toml:"ext"`
	TLA VarConfig `toml:"tla"`
}

// VMConfig holds evaluator settings.
type VMConfig struct {
	Engine   string   `toml:"engine"`    // "wasm" or "cgo"
	MaxStack int      `toml:"max_stack"` // 0 = evaluator default
	MaxTrace int      `toml:"max_trace"` // 0 = evaluator default
	Timeout  Duration `toml:"timeout"`   // 0 = unbounded
}

// VarConfig holds variable bindings by registration mode.
type VarConfig struct {
	Str  map[string]string `toml:"str"`
	Code map[string]string `toml:"code"`
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	return &Config{
		VM: VMConfig{
			Engine: "wasm",
		},
	}
}

// Load resolves and reads the configuration file. Priority: the explicit
// path (from --config), then $WASMJSONNET_CONFIG, then .wasmjsonnet.toml
// in the working directory. A missing implicit file is not an error; a
// missing explicit one is.
func Load(explicit string) (*Config, error) {
	cfg := DefaultConfig()

	path, required := explicit, explicit != ""
	if path == "" {
		if env := os.Getenv(EnvConfigPath); env != "" {
			path, required = env, true
		} else {
			path = defaultFile
		}
	}

	if err := cfg.loadTOML(path); err != nil {
		if os.IsNotExist(err) && !required {
			return cfg, nil
		}
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) loadTOML(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

func (c *Config) validate() error {
	switch c.VM.Engine {
	case "", "wasm", "cgo":
	default:
		return fmt.Errorf("unknown engine %q (want wasm or cgo)", c.VM.Engine)
	}
	if c.VM.MaxStack < 0 {
		return fmt.Errorf("negative max_stack %d", c.VM.MaxStack)
	}
	if c.VM.MaxTrace < 0 {
		return fmt.Errorf("negative max_trace %d", c.VM.MaxTrace)
	}
	if c.VM.Timeout < 0 {
		return fmt.Errorf("negative timeout %s", c.VM.Timeout)
	}
	return nil
}
