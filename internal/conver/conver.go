package conver

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Options controls package conversion: metadata overrides and limit policy.
type Options struct {
	Name            string
	Label           string
	MemoryLimit     uint64        // bytes; 0 keeps the package's limit
	GlobalTimeLimit time.Duration // 0 keeps per-test limits
	ResetTimeLimits bool
	IgnoreSimfile   bool
	SeekForNewTests bool
	ResetScoring    bool

	MinTimeLimit               time.Duration
	MaxTimeLimit               time.Duration
	SolutionRuntimeCoefficient float64
}

// Metadata is the conversion outcome. The package's descriptive fields live
// in its Simfile (read separately with ReadSimfile); conversion only reports
// whether limits still need a model-solution measurement, plus its log.
type Metadata struct {
	// NeedsModelSolution is set when time limits can only be fixed by
	// measuring the model solution's runtime.
	NeedsModelSolution bool   `json:"needs_model_solution"`
	Report             string `json:"report"`
}

// Simfile is the package descriptor stored as simfile.yaml inside every
// canonical package.
type Simfile struct {
	Name        string   `yaml:"name"`
	Label       string   `yaml:"label"`
	MemoryLimit uint64   `yaml:"memory_limit"`
	Solutions   []string `yaml:"solutions"` // model solution first
}

const simfileName = "simfile.yaml"

// ReadSimfile extracts and parses a canonical package's descriptor, returning
// both the parsed form and the raw bytes for storage on the problem row.
func ReadSimfile(packagePath string) (Simfile, string, error) {
	raw, err := ReadEntry(packagePath, simfileName)
	if err != nil {
		return Simfile{}, "", err
	}
	var sf Simfile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return Simfile{}, "", fmt.Errorf("failed to parse %s: %w", simfileName, err)
	}
	return sf, string(raw), nil
}

// Conver converts an uploaded problem archive into a canonical package.
// Convert failures carry a human-readable diagnostic which becomes the job's
// failure reason verbatim.
type Conver interface {
	Convert(ctx context.Context, srcPackagePath, destPackagePath string, opts Options) (Metadata, error)

	// ResetTimeLimits rewrites the package's time limits from the measured
	// model-solution runtime.
	ResetTimeLimits(ctx context.Context, packagePath string, modelRuntime time.Duration, opts Options) error
}

// ReadEntry reads one entry (a bundled solution, the Simfile, ...) from a
// canonical package archive.
func ReadEntry(packagePath, name string) ([]byte, error) {
	zr, err := zip.OpenReader(packagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open package %s: %w", packagePath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("entry %q not found in package %s", name, packagePath)
}

// CommandConver shells out to the external package-conversion tool and parses
// the metadata it prints as JSON. The conversion logic itself lives in that
// tool.
type CommandConver struct {
	Binary  string
	Timeout time.Duration
}

func NewCommandConver(binary string, timeout time.Duration) *CommandConver {
	return &CommandConver{Binary: binary, Timeout: timeout}
}

func (c *CommandConver) Convert(ctx context.Context, srcPackagePath, destPackagePath string, opts Options) (Metadata, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	args := []string{"convert", srcPackagePath, destPackagePath}
	args = append(args, optionArgs(opts)...)

	cmd := exec.CommandContext(runCtx, c.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// The tool writes its diagnostic to stderr; pass it on verbatim.
		if stderr.Len() > 0 {
			return Metadata{}, fmt.Errorf("%s", stderr.String())
		}
		return Metadata{}, fmt.Errorf("package conversion failed: %v", err)
	}

	var meta Metadata
	if err := json.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse conversion metadata: %v", err)
	}
	return meta, nil
}

func (c *CommandConver) ResetTimeLimits(ctx context.Context, packagePath string, modelRuntime time.Duration, opts Options) error {
	runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	args := []string{"reset-limits", packagePath,
		"--model-runtime-usec", strconv.FormatInt(modelRuntime.Microseconds(), 10)}
	args = append(args, optionArgs(opts)...)

	cmd := exec.CommandContext(runCtx, c.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%s", stderr.String())
		}
		return fmt.Errorf("resetting time limits failed: %v", err)
	}
	return nil
}

func optionArgs(opts Options) []string {
	var args []string
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	if opts.Label != "" {
		args = append(args, "--label", opts.Label)
	}
	if opts.MemoryLimit > 0 {
		args = append(args, "--memory-limit", strconv.FormatUint(opts.MemoryLimit, 10))
	}
	if opts.GlobalTimeLimit > 0 {
		args = append(args, "--global-time-limit-usec",
			strconv.FormatInt(opts.GlobalTimeLimit.Microseconds(), 10))
	}
	if opts.ResetTimeLimits {
		args = append(args, "--reset-time-limits")
	}
	if opts.IgnoreSimfile {
		args = append(args, "--ignore-simfile")
	}
	if opts.SeekForNewTests {
		args = append(args, "--seek-for-new-tests")
	}
	if opts.ResetScoring {
		args = append(args, "--reset-scoring")
	}
	args = append(args,
		"--min-time-limit-usec", strconv.FormatInt(opts.MinTimeLimit.Microseconds(), 10),
		"--max-time-limit-usec", strconv.FormatInt(opts.MaxTimeLimit.Microseconds(), 10),
		"--solution-runtime-coefficient", strconv.FormatFloat(opts.SolutionRuntimeCoefficient, 'f', -1, 64),
	)
	return args
}
