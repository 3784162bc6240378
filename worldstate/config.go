package worldstate

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the small set of knobs cmd/worldstate-cli and embedding
// processes load from a YAML document: bounded-heap capacities, the
// node-cache size, and the backing LevelDB directory.
type Config struct {
	ValidatorCapacity int    `yaml:"validator_capacity"`
	StakeCapacity     int    `yaml:"stake_capacity"`
	NodeCacheSize     int    `yaml:"node_cache_size"`
	DataDir           string `yaml:"data_dir"`
}

// DefaultConfig mirrors DefaultValidatorCapacity/DefaultStakeCapacity.
func DefaultConfig() Config {
	return Config{
		ValidatorCapacity: DefaultValidatorCapacity,
		StakeCapacity:     DefaultStakeCapacity,
		NodeCacheSize:     16 * 1024 * 1024,
		DataDir:           "./worldstate-data",
	}
}

// LoadConfig reads a YAML config document from path, filling in defaults
// for any field left at its zero value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.ValidatorCapacity == 0 {
		cfg.ValidatorCapacity = DefaultValidatorCapacity
	}
	if cfg.StakeCapacity == 0 {
		cfg.StakeCapacity = DefaultStakeCapacity
	}
	return cfg, nil
}
