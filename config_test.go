package coprocrt

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigHasSaneNonZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Stack.InitialBytes <= 0 || cfg.Stack.MinGrowBytes <= 0 || cfg.Stack.MaxBytes <= 0 {
		t.Fatalf("Stack config has a non-positive field: %+v", cfg.Stack)
	}
	if cfg.Channel.InitialUnits <= 0 || cfg.Channel.MaxBytes <= 0 {
		t.Fatalf("Channel config has a non-positive field: %+v", cfg.Channel)
	}
	if cfg.Stack.MaxBytes < cfg.Stack.InitialBytes {
		t.Fatalf("Stack.MaxBytes (%d) smaller than Stack.InitialBytes (%d)", cfg.Stack.MaxBytes, cfg.Stack.InitialBytes)
	}
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("LoadConfig on a missing file returned an error: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("LoadConfig on a missing file = %+v, want DefaultConfig()", cfg)
	}
}

func TestLoadConfigOverridesOnlySpecifiedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coprocrt.toml")
	const body = `
[stack]
max_bytes = 2048

[runtime]
log = "trace,errors"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig(%s) = %v, want nil", path, err)
	}
	if cfg.Stack.MaxBytes != 2048 {
		t.Fatalf("cfg.Stack.MaxBytes = %d, want 2048", cfg.Stack.MaxBytes)
	}
	if cfg.Runtime.Log != "trace,errors" {
		t.Fatalf("cfg.Runtime.Log = %q, want trace,errors", cfg.Runtime.Log)
	}
	want := DefaultConfig()
	if cfg.Stack.InitialBytes != want.Stack.InitialBytes {
		t.Fatalf("cfg.Stack.InitialBytes = %d, want unchanged default %d", cfg.Stack.InitialBytes, want.Stack.InitialBytes)
	}
	if cfg.Channel != want.Channel {
		t.Fatalf("cfg.Channel = %+v, want unchanged default %+v", cfg.Channel, want.Channel)
	}
}

func TestLoadConfigRejectsMalformedToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("not = [valid toml"), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig on malformed TOML returned nil error")
	}
}
