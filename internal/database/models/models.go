package models

import (
	"strings"
	"time"
)

// JobType enumerates every kind of work the job server knows how to run.
type JobType uint8

const (
	JobJudgeSubmission JobType = iota + 1
	JobAddProblem
	JobReuploadProblem
	JobAddJudgeModelSolution
	JobReuploadJudgeModelSolution
	JobRejudgeSubmission
	JobDeleteProblem
	JobDeleteContestProblem
	JobReselectFinalSubmissions
	JobMergeUsers
	JobDeleteFile
)

func (t JobType) String() string {
	switch t {
	case JobJudgeSubmission:
		return "JudgeSubmission"
	case JobAddProblem:
		return "AddProblem"
	case JobReuploadProblem:
		return "ReuploadProblem"
	case JobAddJudgeModelSolution:
		return "AddJudgeModelSolution"
	case JobReuploadJudgeModelSolution:
		return "ReuploadJudgeModelSolution"
	case JobRejudgeSubmission:
		return "RejudgeSubmission"
	case JobDeleteProblem:
		return "DeleteProblem"
	case JobDeleteContestProblem:
		return "DeleteContestProblem"
	case JobReselectFinalSubmissions:
		return "ReselectFinalSubmissions"
	case JobMergeUsers:
		return "MergeUsers"
	case JobDeleteFile:
		return "DeleteFile"
	}
	return "Unknown"
}

type JobStatus string

const (
	JobPending    JobStatus = "Pending"
	JobInProgress JobStatus = "InProgress"
	JobDone       JobStatus = "Done"
	JobFailed     JobStatus = "Failed"
	JobCanceled   JobStatus = "Canceled"
)

// Job is one row of the durable queue. Data is an append-only human-readable
// log that survives stage transitions of multi-stage pipelines.
type Job struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time

	CreatorID *uint64   `gorm:"index" json:"creator_id"`
	Type      JobType   `gorm:"index" json:"type"`
	Status    JobStatus `gorm:"index" json:"status"`
	Priority  int       `json:"priority"`
	Added     time.Time `json:"added"`
	AuxID     *uint64   `json:"aux_id"`
	Info      []byte    `json:"-"`
	Data      string    `json:"data"`
	FileID    *uint64   `json:"file_id"`
	TmpFileID *uint64   `json:"tmp_file_id"`
}

// InternalFile reserves a handle for content stored outside the database.
// The row is inserted before any bytes are written and removed only by a
// DeleteFile job, never synchronously.
type InternalFile struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time
}

// SubmissionStatus values are ordered so that every non-fatal (graded) outcome
// is below Pending and every fatal outcome is above it. Final-submission
// selection depends on this ordering.
type SubmissionStatus uint8

const (
	StatusOK  SubmissionStatus = 1
	StatusWA  SubmissionStatus = 2
	StatusTLE SubmissionStatus = 3
	StatusMLE SubmissionStatus = 4
	StatusRTE SubmissionStatus = 5

	StatusPending SubmissionStatus = 8

	StatusCompilationError        SubmissionStatus = 9
	StatusCheckerCompilationError SubmissionStatus = 10
	StatusJudgeError              SubmissionStatus = 11
)

// IsSpecial reports whether the status is Pending or fatal.
func (s SubmissionStatus) IsSpecial() bool { return s >= StatusPending }

// IsFatal reports whether judging could not produce a graded result.
func (s SubmissionStatus) IsFatal() bool { return s > StatusPending }

func (s SubmissionStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWA:
		return "Wrong answer"
	case StatusTLE:
		return "Time limit exceeded"
	case StatusMLE:
		return "Memory limit exceeded"
	case StatusRTE:
		return "Runtime error"
	case StatusPending:
		return "Pending"
	case StatusCompilationError:
		return "Compilation failed"
	case StatusCheckerCompilationError:
		return "Checker compilation failed"
	case StatusJudgeError:
		return "Judge error"
	}
	return "Unknown"
}

type SubmissionType uint8

const (
	SubmissionNormal          SubmissionType = 0
	SubmissionIgnored         SubmissionType = 2
	SubmissionProblemSolution SubmissionType = 3
)

func (t SubmissionType) String() string {
	switch t {
	case SubmissionNormal:
		return "Normal"
	case SubmissionIgnored:
		return "Ignored"
	case SubmissionProblemSolution:
		return "Problem solution"
	}
	return "Unknown"
}

type Language uint8

const (
	LangC11 Language = iota
	LangCPP11
	LangPascal
	LangCPP14
	LangCPP17
)

func (l Language) String() string {
	switch l {
	case LangC11:
		return "C11"
	case LangCPP11:
		return "C++11"
	case LangCPP14:
		return "C++14"
	case LangCPP17:
		return "C++17"
	case LangPascal:
		return "Pascal"
	}
	return "Unknown"
}

func (l Language) Extension() string {
	switch l {
	case LangC11:
		return ".c"
	case LangCPP11, LangCPP14, LangCPP17:
		return ".cpp"
	case LangPascal:
		return ".pas"
	}
	return ""
}

// LanguageForFilename maps a solution filename to its language, or false when
// the extension is not supported.
func LanguageForFilename(name string) (Language, bool) {
	switch {
	case strings.HasSuffix(name, ".c"):
		return LangC11, true
	case strings.HasSuffix(name, ".cpp"),
		strings.HasSuffix(name, ".cc"),
		strings.HasSuffix(name, ".cxx"):
		return LangCPP17, true
	case strings.HasSuffix(name, ".pas"):
		return LangPascal, true
	}
	return 0, false
}

type User struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time

	Username string `gorm:"uniqueIndex" json:"username"`
}

type ProblemType uint8

const (
	ProblemPrivate ProblemType = iota
	ProblemPublic
	ProblemContestOnly
)

type Problem struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time

	FileID   uint64      `json:"file_id"`
	OwnerID  *uint64     `gorm:"index" json:"owner_id"`
	Type     ProblemType `json:"type"`
	Name     string      `json:"name"`
	Label    string      `json:"label"`
	Simfile  string      `json:"-"`
	Added    time.Time   `json:"added"`
	LastEdit time.Time   `json:"last_edit"`
}

type Contest struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time

	Name    string  `json:"name"`
	OwnerID *uint64 `gorm:"index" json:"owner_id"`
}

type ContestRound struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time

	ContestID uint64 `gorm:"index" json:"contest_id"`
	Name      string `json:"name"`
}

type ContestProblem struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time

	ContestRoundID uint64 `gorm:"index" json:"contest_round_id"`
	ContestID      uint64 `gorm:"index" json:"contest_id"`
	ProblemID      uint64 `gorm:"index" json:"problem_id"`
	Name           string `json:"name"`
}

type Submission struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time

	FileID           uint64  `json:"file_id"`
	OwnerID          *uint64 `gorm:"index" json:"owner_id"`
	ProblemID        uint64  `gorm:"index" json:"problem_id"`
	ContestProblemID *uint64 `gorm:"index" json:"contest_problem_id"`
	ContestRoundID   *uint64 `json:"contest_round_id"`
	ContestID        *uint64 `json:"contest_id"`

	Type     SubmissionType `gorm:"index" json:"type"`
	Language Language       `json:"language"`

	FinalCandidate      bool `gorm:"index" json:"final_candidate"`
	ProblemFinal        bool `json:"problem_final"`
	ContestFinal        bool `json:"contest_final"`
	ContestInitialFinal bool `json:"contest_initial_final"`

	InitialStatus SubmissionStatus `json:"initial_status"`
	FullStatus    SubmissionStatus `json:"full_status"`
	SubmitTime    time.Time        `json:"submit_time"`
	Score         *int64           `json:"score"`
	LastJudgment  time.Time        `json:"last_judgment"`
	InitialReport string           `json:"-"`
	FinalReport   string           `json:"-"`
}
