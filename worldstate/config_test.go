package worldstate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_FillsDefaultsForZeroFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worldstate.yaml")
	if err := os.WriteFile(path, []byte("data_dir: /tmp/custom\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DataDir != "/tmp/custom" {
		t.Fatalf("DataDir = %q, want /tmp/custom", cfg.DataDir)
	}
	if cfg.ValidatorCapacity != DefaultValidatorCapacity {
		t.Fatalf("ValidatorCapacity = %d, want default %d", cfg.ValidatorCapacity, DefaultValidatorCapacity)
	}
	if cfg.StakeCapacity != DefaultStakeCapacity {
		t.Fatalf("StakeCapacity = %d, want default %d", cfg.StakeCapacity, DefaultStakeCapacity)
	}
}

func TestLoadConfig_MissingFileErrors(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/path/worldstate.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
