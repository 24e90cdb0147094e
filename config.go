package ku

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is built once at startup from ku.yaml, KU_* variables and flags,
// in that order, and then passed to every build step.
type Config struct {
	OutputDir      string        `yaml:"output_dir"`
	ArchivesDir    string        `yaml:"archives_dir"`
	Jobs           int           `yaml:"jobs"`
	NonInteractive bool          `yaml:"non_interactive"`
	Verify         bool          `yaml:"verify"`
	Platform       string        `yaml:"platform,omitempty"`
	Libraries      []*LibraryDef `yaml:"libraries,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		OutputDir:   DefaultOutputDir,
		ArchivesDir: DefaultArchivesDir,
		Jobs:        runtime.NumCPU(),
		Verify:      true,
	}
}

// LoadConfig reads a YAML config. A missing file yields DefaultConfig; keys
// absent from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from KU_* variables. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("KU_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := getenv("KU_ARCHIVES_DIR"); v != "" {
		c.ArchivesDir = v
	}
	if v := getenv("KU_JOBS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KU_JOBS: %w", err)
		}
		c.Jobs = n
	}
	if v := getenv("KU_NON_INTERACTIVE"); v != "" {
		c.NonInteractive = parseBool(v)
	}
	if v := getenv("KU_PLATFORM"); v != "" {
		c.Platform = v
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on", "y":
		return true
	}
	return false
}

func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is empty")
	}
	if c.ArchivesDir == "" {
		return fmt.Errorf("archives_dir is empty")
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	seen := map[string]bool{}
	for _, d := range c.Libraries {
		if d == nil {
			return fmt.Errorf("empty library entry")
		}
		if err := d.Validate(); err != nil {
			return err
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate library %q", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// AllLibraries returns the configured libraries, or the built-in ones when
// the config lists none.
func (c *Config) AllLibraries() []*LibraryDef {
	if len(c.Libraries) == 0 {
		return BuiltinLibraries()
	}
	return c.Libraries
}

// FindLibraries resolves names in the given order. No names means all.
func (c *Config) FindLibraries(names []string) ([]*LibraryDef, error) {
	all := c.AllLibraries()
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]*LibraryDef, len(all))
	for _, d := range all {
		byName[d.Name] = d
	}
	res := make([]*LibraryDef, 0, len(names))
	for _, name := range names {
		d, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLibrary, name)
		}
		res = append(res, d)
	}
	return res, nil
}
