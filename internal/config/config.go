package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Logger  Logger  `yaml:"logger"`
	Storage Storage `yaml:"storage"`
	Workers Workers `yaml:"workers"`
	Limits  Limits  `yaml:"limits"`
	Tools   Tools   `yaml:"tools"`
}

// Duration accepts yaml scalars in Go duration syntax, e.g. "500ms" or "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Logger struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Storage struct {
	Database      string `yaml:"database"`
	InternalFiles string `yaml:"internal_files"`
	NotifyFile    string `yaml:"notify_file"`
}

type Workers struct {
	Count        int      `yaml:"count"`
	PollInterval Duration `yaml:"poll_interval"`
}

// Tools points at the external sandbox judge and package conversion binaries.
type Tools struct {
	JudgeBinary   string   `yaml:"judge_binary"`
	JudgeTimeout  Duration `yaml:"judge_timeout"`
	ConverBinary  string   `yaml:"conver_binary"`
	ConverTimeout Duration `yaml:"conver_timeout"`
}

// Limits controls package conversion and time-limit derivation.
type Limits struct {
	MinTimeLimit               Duration `yaml:"min_time_limit"`
	MaxTimeLimit               Duration `yaml:"max_time_limit"`
	SolutionRuntimeCoefficient float64  `yaml:"solution_runtime_coefficient"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Workers.Count <= 0 {
		c.Workers.Count = 2
	}
	if c.Workers.PollInterval <= 0 {
		c.Workers.PollInterval = Duration(5 * time.Second)
	}
	if c.Limits.MinTimeLimit <= 0 {
		c.Limits.MinTimeLimit = Duration(300 * time.Millisecond)
	}
	if c.Limits.MaxTimeLimit <= 0 {
		c.Limits.MaxTimeLimit = Duration(22 * time.Second)
	}
	if c.Limits.SolutionRuntimeCoefficient <= 0 {
		c.Limits.SolutionRuntimeCoefficient = 3.0
	}
	if c.Tools.JudgeBinary == "" {
		c.Tools.JudgeBinary = "sim-judge"
	}
	if c.Tools.JudgeTimeout <= 0 {
		c.Tools.JudgeTimeout = Duration(10 * time.Minute)
	}
	if c.Tools.ConverBinary == "" {
		c.Tools.ConverBinary = "sim-conver"
	}
	if c.Tools.ConverTimeout <= 0 {
		c.Tools.ConverTimeout = Duration(5 * time.Minute)
	}
}
