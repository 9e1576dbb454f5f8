package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Tool       Tool      `yaml:"tool"`
	Corpus     Corpus    `yaml:"corpus"`
	Sweep      Sweep     `yaml:"sweep"`
	ScannerOff bool      `yaml:"scanner_off"`
	Variants   []Variant `yaml:"variants"`
	Results    Results   `yaml:"results"`
}

// Tool describes how the inference tool is invoked. When Image is set the
// tool runs inside a container and Path is the executable inside the image;
// otherwise Path is resolved on the host.
type Tool struct {
	Path             string            `yaml:"path"`
	Image            string            `yaml:"image"`
	NoMultithreading bool              `yaml:"no_multithreading"`
	Env              map[string]string `yaml:"env"`
	EnvFile          string            `yaml:"env_file"`
	TimeoutMinutes   int               `yaml:"timeout_minutes"`
	CPULimit         float64           `yaml:"cpu_limit"`
	MemoryLimitMB    int64             `yaml:"memory_limit_mb"`
}

type Corpus struct {
	Dir     string   `yaml:"dir"`
	Sources []Source `yaml:"sources"`
}

// Source is one upstream repository whose refs are fetched into version
// directories.
type Source struct {
	Name string   `yaml:"name"`
	Repo string   `yaml:"repo"`
	Refs []string `yaml:"refs"`
}

type Sweep struct {
	VersionCounts []int `yaml:"version_counts"`
	Runs          int   `yaml:"runs"`
	KeepTraces    bool  `yaml:"keep_traces"`
}

// Variant is a named tool configuration whose snapshot traces are compared
// side by side.
type Variant struct {
	Name             string `yaml:"name"`
	TraceSuffix      string `yaml:"trace_suffix"`
	NoMultithreading bool   `yaml:"no_multithreading"`
	ScannerOff       bool   `yaml:"scanner_off"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

// DefaultVariants returns the three stock comparison conditions in report
// column order.
func DefaultVariants() []Variant {
	return []Variant{
		{Name: "no_mt", TraceSuffix: "_no_multithreading", NoMultithreading: true},
		{Name: "base", TraceSuffix: ""},
		{Name: "no_defender", TraceSuffix: "_no_defender", ScannerOff: true},
	}
}

// Variant returns the named variant from the config.
func (c *Config) Variant(name string) (*Variant, error) {
	for i := range c.Variants {
		if c.Variants[i].Name == name {
			return &c.Variants[i], nil
		}
	}
	return nil, fmt.Errorf("unknown variant %q", name)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Tool.Path == "" {
		cfg.Tool.Path = "vhi"
	}
	if cfg.Tool.TimeoutMinutes < 0 {
		return fmt.Errorf("tool.timeout_minutes must not be negative")
	}
	if cfg.Tool.CPULimit < 0 {
		return fmt.Errorf("tool.cpu_limit must not be negative")
	}
	if cfg.Tool.MemoryLimitMB < 0 {
		return fmt.Errorf("tool.memory_limit_mb must not be negative")
	}
	if cfg.Corpus.Dir == "" {
		cfg.Corpus.Dir = "corpus"
	}
	sourceNames := make(map[string]bool)
	for i, s := range cfg.Corpus.Sources {
		if s.Name == "" {
			return fmt.Errorf("source %d: name is required", i)
		}
		if sourceNames[s.Name] {
			return fmt.Errorf("source %q: duplicate name", s.Name)
		}
		sourceNames[s.Name] = true
		if s.Repo == "" {
			return fmt.Errorf("source %q: repo is required", s.Name)
		}
		if len(s.Refs) == 0 {
			return fmt.Errorf("source %q: at least one ref is required", s.Name)
		}
	}
	if len(cfg.Sweep.VersionCounts) == 0 {
		for n := 2; n <= 20; n += 2 {
			cfg.Sweep.VersionCounts = append(cfg.Sweep.VersionCounts, n)
		}
	}
	for i, n := range cfg.Sweep.VersionCounts {
		if n < 1 {
			return fmt.Errorf("sweep.version_counts: %d is not a usable count", n)
		}
		// the sweep stops at the first unreachable count, which is only
		// sound when later counts are larger
		if i > 0 && n <= cfg.Sweep.VersionCounts[i-1] {
			return fmt.Errorf("sweep.version_counts: must be strictly increasing")
		}
	}
	if cfg.Sweep.Runs == 0 {
		cfg.Sweep.Runs = 5
	}
	if cfg.Sweep.Runs < 1 {
		return fmt.Errorf("sweep.runs must be at least 1")
	}
	if len(cfg.Variants) == 0 {
		cfg.Variants = DefaultVariants()
	}
	variantNames := make(map[string]bool)
	suffixes := make(map[string]bool)
	for i, v := range cfg.Variants {
		if v.Name == "" {
			return fmt.Errorf("variant %d: name is required", i)
		}
		if variantNames[v.Name] {
			return fmt.Errorf("variant %q: duplicate name", v.Name)
		}
		variantNames[v.Name] = true
		if v.TraceSuffix != "" && !strings.HasPrefix(v.TraceSuffix, "_") {
			return fmt.Errorf("variant %q: trace_suffix must start with _", v.Name)
		}
		if suffixes[v.TraceSuffix] {
			return fmt.Errorf("variant %q: duplicate trace_suffix", v.Name)
		}
		suffixes[v.TraceSuffix] = true
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	return nil
}
