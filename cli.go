package ku

import (
	"fmt"
	"os"

	"github.com/mgenware/j9/v3"
	"github.com/spf13/pflag"
)

// CLIArgs holds the flags shared by all ku commands. Only flags the user
// actually set override the config file and environment.
type CLIArgs struct {
	ConfigFile     string
	Platform       string
	Jobs           int
	NonInteractive bool
	OutputDir      string
	ArchivesDir    string
	NoVerify       bool
	Verbose        int
	Quiet          bool
}

func (a *CLIArgs) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&a.ConfigFile, "config", DefaultConfigFile, "Config file.")
	fs.StringVar(&a.Platform, "platform", "", "Platform override. Supported platforms: darwin (macos), linux.")
	fs.IntVarP(&a.Jobs, "jobs", "j", 0, "Parallel build jobs. Defaults to the number of CPUs.")
	fs.BoolVarP(&a.NonInteractive, "non-interactive", "y", false, "Never wait for confirmation.")
	fs.StringVar(&a.OutputDir, "output", "", "Output dir (default \""+DefaultOutputDir+"\").")
	fs.StringVar(&a.ArchivesDir, "archives", "", "Source archives dir (default \""+DefaultArchivesDir+"\").")
	fs.BoolVar(&a.NoVerify, "no-verify", false, "Skip artifact verification.")
	fs.CountVarP(&a.Verbose, "verbose", "v", "Verbose output, repeat for more.")
	fs.BoolVarP(&a.Quiet, "quiet", "q", false, "Only print warnings and errors.")
}

// Verbosity feeds NewLogger.
func (a *CLIArgs) Verbosity() int {
	if a.Quiet {
		return -1
	}
	return a.Verbose
}

func (a *CLIArgs) apply(cfg *Config, fs *pflag.FlagSet) {
	changed := func(name string) bool {
		return fs != nil && fs.Changed(name)
	}
	if changed("platform") {
		cfg.Platform = a.Platform
	}
	if changed("jobs") {
		cfg.Jobs = a.Jobs
	}
	if changed("non-interactive") {
		cfg.NonInteractive = a.NonInteractive
	}
	if changed("output") {
		cfg.OutputDir = a.OutputDir
	}
	if changed("archives") {
		cfg.ArchivesDir = a.ArchivesDir
	}
	if changed("no-verify") {
		cfg.Verify = !a.NoVerify
	}
}

// LoadRunConfig merges config file, KU_* variables and flags, in that order.
// An explicitly requested config file must exist.
func LoadRunConfig(a *CLIArgs, fs *pflag.FlagSet) (*Config, error) {
	if fs != nil && fs.Changed("config") {
		if _, err := os.Stat(a.ConfigFile); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}
	cfg, err := LoadConfig(a.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	a.apply(cfg, fs)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func CreateDefaultTunnel() *j9.Tunnel {
	return j9.NewTunnel(j9.NewLocalNode(), j9.NewConsoleLogger())
}
