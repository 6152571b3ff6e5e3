package jobs

import (
	"github.com/aspiranek/sim/internal/database/models"
)

// DefaultPriority returns the queue priority for a freshly enqueued job of the
// given type. Higher values are dequeued first; ties break by ascending id.
func DefaultPriority(t models.JobType) int {
	switch t {
	case models.JobDeleteFile:
		return 10
	case models.JobDeleteProblem, models.JobDeleteContestProblem:
		return 20
	case models.JobMergeUsers:
		return 20
	case models.JobReselectFinalSubmissions:
		return 25
	case models.JobJudgeSubmission:
		return 30
	case models.JobRejudgeSubmission:
		return 15
	case models.JobAddProblem, models.JobReuploadProblem,
		models.JobAddJudgeModelSolution, models.JobReuploadJudgeModelSolution:
		return 10
	}
	return 0
}

// ModelSolutionJudgePriority is used for judging a problem package's bundled
// solutions. Those submissions gate an add/reupload pipeline, so they outrank
// ordinary judging.
func ModelSolutionJudgePriority() int {
	return DefaultPriority(models.JobJudgeSubmission) + 1
}
