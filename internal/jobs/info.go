package jobs

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/aspiranek/sim/internal/database/models"
)

// Job info payloads travel through the jobs table as a length-prefixed binary
// encoding: integers are fixed-width big-endian, strings are a 4-byte
// big-endian length followed by that many bytes, fields in a fixed per-type
// order. The encoding must round-trip exactly.

var ErrTruncatedInfo = errors.New("jobs: truncated info payload")

func appendUint64(buf []byte, x uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, x)
}

func appendUint8(buf []byte, x uint8) []byte {
	return append(buf, x)
}

func appendBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

type reader struct {
	rest []byte
}

func (r *reader) uint64() (uint64, error) {
	if len(r.rest) < 8 {
		return 0, ErrTruncatedInfo
	}
	x := binary.BigEndian.Uint64(r.rest)
	r.rest = r.rest[8:]
	return x, nil
}

func (r *reader) uint8() (uint8, error) {
	if len(r.rest) < 1 {
		return 0, ErrTruncatedInfo
	}
	x := r.rest[0]
	r.rest = r.rest[1:]
	return x, nil
}

func (r *reader) bool() (bool, error) {
	x, err := r.uint8()
	return x != 0, err
}

func (r *reader) string() (string, error) {
	if len(r.rest) < 4 {
		return "", ErrTruncatedInfo
	}
	n := binary.BigEndian.Uint32(r.rest)
	r.rest = r.rest[4:]
	if uint32(len(r.rest)) < n {
		return "", ErrTruncatedInfo
	}
	s := string(r.rest[:n])
	r.rest = r.rest[n:]
	return s, nil
}

func (r *reader) done() error {
	if len(r.rest) != 0 {
		return fmt.Errorf("jobs: %d trailing bytes in info payload", len(r.rest))
	}
	return nil
}

// AddProblemInfo is the payload of AddProblem/ReuploadProblem pipelines and
// their judge-model-solution stages.
type AddProblemInfo struct {
	Name            string
	Label           string
	MemoryLimit     uint64 // bytes; 0 means "use the package's limit"
	GlobalTimeLimit uint64 // microseconds; 0 means "no override"
	ResetTimeLimits bool
	IgnoreSimfile   bool
	SeekForNewTests bool
	ResetScoring    bool
	ProblemType     models.ProblemType
}

func (i AddProblemInfo) Encode() []byte {
	var buf []byte
	buf = appendString(buf, i.Name)
	buf = appendString(buf, i.Label)
	buf = appendUint64(buf, i.MemoryLimit)
	buf = appendUint64(buf, i.GlobalTimeLimit)
	buf = appendBool(buf, i.ResetTimeLimits)
	buf = appendBool(buf, i.IgnoreSimfile)
	buf = appendBool(buf, i.SeekForNewTests)
	buf = appendBool(buf, i.ResetScoring)
	buf = appendUint8(buf, uint8(i.ProblemType))
	return buf
}

func DecodeAddProblemInfo(data []byte) (AddProblemInfo, error) {
	var (
		i   AddProblemInfo
		r   = reader{rest: data}
		err error
	)
	if i.Name, err = r.string(); err != nil {
		return i, err
	}
	if i.Label, err = r.string(); err != nil {
		return i, err
	}
	if i.MemoryLimit, err = r.uint64(); err != nil {
		return i, err
	}
	if i.GlobalTimeLimit, err = r.uint64(); err != nil {
		return i, err
	}
	if i.ResetTimeLimits, err = r.bool(); err != nil {
		return i, err
	}
	if i.IgnoreSimfile, err = r.bool(); err != nil {
		return i, err
	}
	if i.SeekForNewTests, err = r.bool(); err != nil {
		return i, err
	}
	if i.ResetScoring, err = r.bool(); err != nil {
		return i, err
	}
	pt, err := r.uint8()
	if err != nil {
		return i, err
	}
	i.ProblemType = models.ProblemType(pt)
	return i, r.done()
}

// MergeUsersInfo is the payload of a MergeUsers job; the donor user is the
// job's aux id.
type MergeUsersInfo struct {
	TargetUserID uint64
}

func (i MergeUsersInfo) Encode() []byte {
	return appendUint64(nil, i.TargetUserID)
}

func DecodeMergeUsersInfo(data []byte) (MergeUsersInfo, error) {
	var (
		i   MergeUsersInfo
		r   = reader{rest: data}
		err error
	)
	if i.TargetUserID, err = r.uint64(); err != nil {
		return i, err
	}
	return i, r.done()
}

// JudgeSubmissionInfo carries the problem id a submission is judged against.
type JudgeSubmissionInfo struct {
	ProblemID uint64
}

func (i JudgeSubmissionInfo) Encode() []byte {
	return appendUint64(nil, i.ProblemID)
}

func DecodeJudgeSubmissionInfo(data []byte) (JudgeSubmissionInfo, error) {
	var (
		i   JudgeSubmissionInfo
		r   = reader{rest: data}
		err error
	)
	if i.ProblemID, err = r.uint64(); err != nil {
		return i, err
	}
	return i, r.done()
}
