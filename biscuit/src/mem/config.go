package mem

import "os"
import "gopkg.in/yaml.v3"

/// Config_t configures the simulated physical memory arena at Phys_init
/// time. It plays the role the teacher's build-time constants played
/// (total physical memory was fixed by the boot loader); here it's a
/// small YAML document so tests and cmd/pagedaemon can size the arena
/// without recompiling.
type Config_t struct {
	ArenaBytes int `yaml:"arena_bytes"`
}

/// DefaultConfig sizes a modest arena suitable for unit tests: 256MB,
/// enough for several thousand superpage-sized reservations at the
/// smallest promotion level.
func DefaultConfig() Config_t {
	return Config_t{ArenaBytes: 256 << 20}
}

/// LoadConfig reads a Config_t from a YAML file at path, falling back to
/// DefaultConfig's arena size for any field left zero.
func LoadConfig(path string) (Config_t, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	if cfg.ArenaBytes <= 0 {
		cfg.ArenaBytes = DefaultConfig().ArenaBytes
	}
	return cfg, nil
}
