package handlers

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/aspiranek/sim/internal/conver"
	"github.com/aspiranek/sim/internal/database/models"
	"github.com/aspiranek/sim/internal/jobs"
	"github.com/aspiranek/sim/internal/queue"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	problemNameMaxLen  = 128
	problemLabelMaxLen = 64
)

// addOrReuploadProblem is the multi-stage pipeline behind AddProblem,
// ReuploadProblem and their judge-model-solution stages. The stage is encoded
// in the persisted (job type, tmp file) pair:
//
//	AddProblem/ReuploadProblem, no tmp file   -> build the package; when
//	  limits need live measurement, re-arm as the JudgeModelSolution type,
//	  otherwise commit in the same run
//	AddJudgeModelSolution/ReuploadJudgeModelSolution -> measure the model
//	  solution, derive limits, re-arm back
//	AddProblem/ReuploadProblem, tmp file set  -> commit the problem row
//
// Every stage transition is a single conditional update keyed on the claim
// still being held, so a concurrent cancellation aborts the stage cleanly.
type addOrReuploadProblem struct {
	*jobHandler

	info jobs.AddProblemInfo
}

func (h *addOrReuploadProblem) run(ctx context.Context, tx *gorm.DB) error {
	info, err := jobs.DecodeAddProblemInfo(h.job.Info)
	if err != nil {
		h.fail("Invalid job payload: %v", err)
		return h.finalize(tx)
	}
	h.info = info

	switch h.job.Type {
	case models.JobAddJudgeModelSolution, models.JobReuploadJudgeModelSolution:
		return h.judgeModelSolution(ctx, tx)
	default:
		if h.job.TmpFileID == nil {
			return h.buildPackage(ctx, tx)
		}
		return h.commit(ctx, tx)
	}
}

func (h *addOrReuploadProblem) options() conver.Options {
	return conver.Options{
		Name:            h.info.Name,
		Label:           h.info.Label,
		MemoryLimit:     h.info.MemoryLimit,
		GlobalTimeLimit: time.Duration(h.info.GlobalTimeLimit) * time.Microsecond,
		ResetTimeLimits: h.info.ResetTimeLimits,
		IgnoreSimfile:   h.info.IgnoreSimfile,
		SeekForNewTests: h.info.SeekForNewTests,
		ResetScoring:    h.info.ResetScoring,

		MinTimeLimit:               h.env.Limits.MinTimeLimit.Std(),
		MaxTimeLimit:               h.env.Limits.MaxTimeLimit.Std(),
		SolutionRuntimeCoefficient: h.env.Limits.SolutionRuntimeCoefficient,
	}
}

// buildPackage converts the uploaded archive into a canonical package under a
// freshly reserved internal file. The bytes are written before the commit;
// if the transaction does not go through they are removed again, so the
// reserved handle never outlives its content nor the other way round.
func (h *addOrReuploadProblem) buildPackage(ctx context.Context, tx *gorm.DB) error {
	if h.job.FileID == nil {
		h.fail("Job has no uploaded package attached")
		return h.finalize(tx)
	}

	tmpID, err := h.env.Files.Reserve(tx)
	if err != nil {
		return err
	}
	tmpPath := h.env.Files.Path(tmpID)
	h.afterRollback(func() {
		if err := h.env.Files.Remove(tmpID); err != nil {
			zap.S().Errorf("failed to remove abandoned package %d: %v", tmpID, err)
		}
	})

	// A committed failure in this stage would leave the reservation
	// unreachable (tmp_file_id is only persisted on success), so it is
	// handed to a DeleteFile job first.
	discard := func(format string, args ...interface{}) error {
		if err := queue.EnqueueDeleteFile(tx, tmpID); err != nil {
			return err
		}
		h.fail(format, args...)
		return h.finalize(tx)
	}

	meta, err := h.env.Conver.Convert(ctx, h.env.Files.Path(*h.job.FileID), tmpPath, h.options())
	if err != nil {
		return discard("%v", err)
	}
	if meta.Report != "" {
		h.logf("%s", meta.Report)
	}

	simfile, _, err := conver.ReadSimfile(tmpPath)
	if err != nil {
		return discard("Malformed converted package: %v", err)
	}
	if len(simfile.Name) > problemNameMaxLen {
		return discard("Problem's name is too long (max allowed length: %d)", problemNameMaxLen)
	}
	if len(simfile.Label) > problemLabelMaxLen {
		return discard("Problem's label is too long (max allowed length: %d)", problemLabelMaxLen)
	}

	h.job.TmpFileID = &tmpID
	if meta.NeedsModelSolution {
		next := models.JobAddJudgeModelSolution
		if h.job.Type == models.JobReuploadProblem {
			next = models.JobReuploadJudgeModelSolution
		}
		h.logf("Time limits need a model solution measurement")
		return h.rearm(tx, next, map[string]interface{}{"tmp_file_id": tmpID})
	}

	return h.commit(ctx, tx)
}

// judgeModelSolution measures the model solution against the freshly built
// package, derives final time limits from its runtime, and re-arms the job
// back to its committing type.
func (h *addOrReuploadProblem) judgeModelSolution(ctx context.Context, tx *gorm.DB) error {
	if h.job.TmpFileID == nil {
		h.fail("Pipeline lost its package under construction")
		return h.finalize(tx)
	}
	tmpPath := h.env.Files.Path(*h.job.TmpFileID)

	simfile, _, err := conver.ReadSimfile(tmpPath)
	if err != nil {
		h.fail("Malformed converted package: %v", err)
		return h.finalize(tx)
	}
	if len(simfile.Solutions) == 0 {
		h.fail("Package has no model solution to measure time limits with")
		return h.finalize(tx)
	}

	model := simfile.Solutions[0]
	source, err := conver.ReadEntry(tmpPath, model)
	if err != nil {
		h.fail("Cannot read model solution %s: %v", model, err)
		return h.finalize(tx)
	}

	// The judge needs the source on disk; stage it next to the package.
	srcID, err := h.env.Files.Reserve(tx)
	if err != nil {
		return err
	}
	if err := h.env.Files.Write(srcID, bytes.NewReader(source)); err != nil {
		return err
	}
	h.afterRollback(func() {
		if err := h.env.Files.Remove(srcID); err != nil {
			zap.S().Errorf("failed to remove staged model solution %d: %v", srcID, err)
		}
	})
	if err := queue.EnqueueDeleteFile(tx, srcID); err != nil {
		return err
	}

	h.logf("Judging model solution %s", model)
	result := h.env.Judge.Judge(ctx, h.env.Files.Path(srcID), tmpPath)
	h.logf("Model solution: %s (runtime %s)", result.FullStatus, result.SolutionRuntime)
	if result.FullStatus.IsFatal() {
		h.fail("Model solution could not be judged: %s", result.FullStatus)
		return h.finalize(tx)
	}

	err = h.env.Conver.ResetTimeLimits(ctx, tmpPath, result.SolutionRuntime, h.options())
	if err != nil {
		h.fail("%v", err)
		return h.finalize(tx)
	}
	h.logf("Derived time limits from model solution runtime")

	next := models.JobAddProblem
	if h.job.Type == models.JobReuploadJudgeModelSolution {
		next = models.JobReuploadProblem
	}
	return h.rearm(tx, next, nil)
}

// commit makes the built package the problem's package: inserts the Problem
// row (add) or repoints the existing one (reupload), submits the bundled
// solutions for judging, and clears the pipeline's tmp file reference.
func (h *addOrReuploadProblem) commit(ctx context.Context, tx *gorm.DB) error {
	tmpID := *h.job.TmpFileID
	tmpPath := h.env.Files.Path(tmpID)

	simfile, raw, err := conver.ReadSimfile(tmpPath)
	if err != nil {
		h.fail("Malformed converted package: %v", err)
		return h.finalize(tx)
	}

	now := time.Now()
	var problemID uint64

	if h.job.Type == models.JobReuploadProblem {
		if h.job.AuxID == nil {
			h.fail("Job has no problem attached")
			return h.finalize(tx)
		}
		var prob models.Problem
		err := tx.Where("id = ?", *h.job.AuxID).First(&prob).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.fail("Problem does not exist")
			return h.finalize(tx)
		}
		if err != nil {
			return err
		}

		// The superseded package and the old problem solutions go away
		// asynchronously.
		if err := queue.EnqueueDeleteFile(tx, prob.FileID); err != nil {
			return err
		}
		var oldSolutionFiles []uint64
		err = tx.Model(&models.Submission{}).
			Where("problem_id = ? AND type = ?", prob.ID, models.SubmissionProblemSolution).
			Pluck("file_id", &oldSolutionFiles).Error
		if err != nil {
			return err
		}
		for _, fileID := range oldSolutionFiles {
			if err := queue.EnqueueDeleteFile(tx, fileID); err != nil {
				return err
			}
		}
		err = tx.Delete(&models.Submission{},
			"problem_id = ? AND type = ?", prob.ID, models.SubmissionProblemSolution).Error
		if err != nil {
			return err
		}

		prob.FileID = tmpID
		prob.Type = h.info.ProblemType
		prob.Name = simfile.Name
		prob.Label = simfile.Label
		prob.Simfile = raw
		prob.LastEdit = now
		if err := tx.Save(&prob).Error; err != nil {
			return err
		}
		problemID = prob.ID
		h.logf("Reuploaded problem %d: %s", prob.ID, prob.Name)
	} else {
		prob := models.Problem{
			FileID:   tmpID,
			OwnerID:  h.job.CreatorID,
			Type:     h.info.ProblemType,
			Name:     simfile.Name,
			Label:    simfile.Label,
			Simfile:  raw,
			Added:    now,
			LastEdit: now,
		}
		if err := tx.Create(&prob).Error; err != nil {
			return err
		}
		problemID = prob.ID
		h.logf("Added problem %d: %s", prob.ID, prob.Name)
	}

	if err := h.submitSolutions(tx, problemID, tmpPath, simfile, now); err != nil {
		if errors.Is(err, errStageFailed) {
			return h.finalize(tx)
		}
		return err
	}

	return h.finalizeWith(tx, map[string]interface{}{
		"tmp_file_id": nil,
		"aux_id":      problemID,
	})
}

// errStageFailed signals that a sub-step already recorded a user-facing
// failure and the stage should commit as failed.
var errStageFailed = errors.New("handlers: stage failed")

// submitSolutions inserts every bundled solution as a problem-solution
// submission and schedules its judging above ordinary submissions.
func (h *addOrReuploadProblem) submitSolutions(tx *gorm.DB, problemID uint64, packagePath string, simfile conver.Simfile, now time.Time) error {
	h.logf("Submitting solutions...")
	for _, name := range simfile.Solutions {
		lang, ok := models.LanguageForFilename(name)
		if !ok {
			h.fail("Unsupported language of solution %s", name)
			return errStageFailed
		}

		source, err := conver.ReadEntry(packagePath, name)
		if err != nil {
			h.fail("Cannot read solution %s: %v", name, err)
			return errStageFailed
		}

		fileID, err := h.env.Files.Reserve(tx)
		if err != nil {
			return err
		}
		if err := h.env.Files.Write(fileID, bytes.NewReader(source)); err != nil {
			return err
		}
		staged := fileID
		h.afterRollback(func() {
			if err := h.env.Files.Remove(staged); err != nil {
				zap.S().Errorf("failed to remove staged solution %d: %v", staged, err)
			}
		})

		sub := models.Submission{
			FileID:        fileID,
			ProblemID:     problemID,
			Type:          models.SubmissionProblemSolution,
			Language:      lang,
			InitialStatus: models.StatusPending,
			FullStatus:    models.StatusPending,
			SubmitTime:    now,
		}
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}

		err = queue.EnqueueJudgeSubmission(tx, sub.ID, problemID, nil,
			jobs.ModelSolutionJudgePriority())
		if err != nil {
			return err
		}
		h.logf("Submit: %s", name)
	}
	h.logf("Done.")
	return nil
}
