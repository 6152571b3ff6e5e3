package judger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/aspiranek/sim/internal/database/models"

	"go.uber.org/zap"
)

// Result is the terminal verdict for one judging run. Judging always produces
// one: an infrastructure fault maps to the JudgeError status, never to an
// error return, because "the submission could not be judged" is itself a
// valid outcome.
type Result struct {
	InitialStatus models.SubmissionStatus
	FullStatus    models.SubmissionStatus
	Score         *int64
	InitialReport string
	FinalReport   string
	// SolutionRuntime is the measured wall-clock runtime of the solution,
	// used to derive time limits from model solutions.
	SolutionRuntime time.Duration
}

// Judge compiles, sandboxes and scores a submission source against a problem
// package. Implementations must return within a bounded time and never fail
// with an unhandled fault.
type Judge interface {
	Judge(ctx context.Context, sourcePath, packagePath string) Result
}

// wireResult is the JSON verdict printed by the external judge process.
type wireResult struct {
	InitialStatus uint8  `json:"initial_status"`
	FullStatus    uint8  `json:"full_status"`
	Score         *int64 `json:"score"`
	InitialReport string `json:"initial_report"`
	FinalReport   string `json:"final_report"`
	RuntimeUsec   int64  `json:"runtime_usec"`
}

// CommandJudge runs judging through an external sandbox binary and parses the
// JSON verdict from its stdout. The sandboxing itself lives entirely in that
// binary; this side only enforces a wall-clock deadline on the whole run.
type CommandJudge struct {
	Binary  string
	Timeout time.Duration
}

func NewCommandJudge(binary string, timeout time.Duration) *CommandJudge {
	return &CommandJudge{Binary: binary, Timeout: timeout}
}

func (j *CommandJudge) Judge(ctx context.Context, sourcePath, packagePath string) Result {
	runCtx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, j.Binary, sourcePath, packagePath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return judgeError(fmt.Sprintf("judge process failed: %v\nStderr: %s", err, stderr.String()))
	}

	var wire wireResult
	if err := json.Unmarshal(stdout.Bytes(), &wire); err != nil {
		return judgeError(fmt.Sprintf("failed to parse judge verdict: %v. Raw output: %s", err, stdout.String()))
	}

	return Result{
		InitialStatus:   models.SubmissionStatus(wire.InitialStatus),
		FullStatus:      models.SubmissionStatus(wire.FullStatus),
		Score:           wire.Score,
		InitialReport:   wire.InitialReport,
		FinalReport:     wire.FinalReport,
		SolutionRuntime: time.Duration(wire.RuntimeUsec) * time.Microsecond,
	}
}

func judgeError(report string) Result {
	zap.S().Errorf("judging infrastructure fault: %s", report)
	return Result{
		InitialStatus: models.StatusJudgeError,
		FullStatus:    models.StatusJudgeError,
		InitialReport: report,
		FinalReport:   report,
	}
}
