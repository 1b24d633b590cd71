package coprocrt

import (
	"os"

	"github.com/BurntSushi/toml"
)

// StackConfig controls proc stack-segment sizing.
type StackConfig struct {
	InitialBytes int `toml:"initial_bytes"`
	MinGrowBytes int `toml:"min_grow_bytes"`
	MaxBytes     int `toml:"max_bytes"`
}

// ChannelConfig controls per-channel buffering.
type ChannelConfig struct {
	InitialUnits int `toml:"initial_units"`
	MaxBytes     int `toml:"max_bytes"`
}

// RuntimeConfig controls scheduler-wide behavior.
type RuntimeConfig struct {
	Log string `toml:"log"`
}

// Config is the runtime's TOML-loaded configuration, mirroring the
// [stack]/[channel]/[runtime] sections documented for COPROCRT_LOG and
// friends.
type Config struct {
	Stack   StackConfig   `toml:"stack"`
	Channel ChannelConfig `toml:"channel"`
	Runtime RuntimeConfig `toml:"runtime"`
}

// DefaultConfig matches the values a Config would have if no file were
// ever loaded.
func DefaultConfig() Config {
	return Config{
		Stack: StackConfig{
			InitialBytes: 8192,
			MinGrowBytes: 4096,
			MaxBytes:     1048576,
		},
		Channel: ChannelConfig{
			InitialUnits: 8,
			MaxBytes:     1048576,
		},
		Runtime: RuntimeConfig{
			Log: "user-log,errors",
		},
	}
}

// LoadConfig reads a TOML config file at path, starting from
// DefaultConfig and overwriting whatever the file specifies. A missing
// file is not an error — it just means the defaults stand, matching how
// the reference runtime falls back to built-in defaults whenever an
// environment override is absent.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
