package pipeline

import (
	"errors"
	"fmt"

	"github.com/roach88/otcore/internal/model"
)

// Sentinels matched by SubmitError through errors.Is.
var (
	ErrNotFound            = errors.New("object not found")
	ErrInvalidBaseRevision = errors.New("invalid base revision")
	ErrMalformedPatch      = errors.New("malformed patch")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrRetryExhausted      = errors.New("retry budget exhausted")
)

// ErrorCode categorizes submission failures.
type ErrorCode string

const (
	// CodeNotFound: the object does not exist and the base revision is not 0.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeInvalidBaseRevision: the base revision is ahead of the object.
	// Indicates a client or storage defect; never retried.
	CodeInvalidBaseRevision ErrorCode = "INVALID_BASE_REVISION"

	// CodeMalformedPatch: a patch does not fit the document shape or the
	// result violates the object type's schema. Never retried.
	CodeMalformedPatch ErrorCode = "MALFORMED_PATCH"

	// CodeStorageUnavailable: the store kept failing after backoff.
	CodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// CodeRetryExhausted: concurrent writers won every attempt.
	CodeRetryExhausted ErrorCode = "RETRY_EXHAUSTED"
)

var codeSentinels = map[ErrorCode]error{
	CodeNotFound:            ErrNotFound,
	CodeInvalidBaseRevision: ErrInvalidBaseRevision,
	CodeMalformedPatch:      ErrMalformedPatch,
	CodeStorageUnavailable:  ErrStorageUnavailable,
	CodeRetryExhausted:      ErrRetryExhausted,
}

// SubmitError is returned by Submit for every rejected submission.
type SubmitError struct {
	Code     ErrorCode
	Message  string
	ObjectID model.ObjectID

	// PatchIndex is the offending patch for CodeMalformedPatch, or -1
	// when the failure is not tied to one patch.
	PatchIndex int

	// Err is the underlying cause, if any.
	Err error
}

func (e *SubmitError) Error() string {
	msg := fmt.Sprintf("%s: %s (object=%s", e.Code, e.Message, e.ObjectID)
	if e.PatchIndex >= 0 {
		msg += fmt.Sprintf(", patch=%d", e.PatchIndex)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Code.
func (e *SubmitError) Is(target error) bool {
	return codeSentinels[e.Code] == target
}

// CodeOf returns the code of a wrapped SubmitError, or "".
func CodeOf(err error) ErrorCode {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Retryable reports whether resubmitting later may succeed.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeStorageUnavailable, CodeRetryExhausted:
		return true
	}
	return false
}

func newNotFound(id model.ObjectID, base int64) *SubmitError {
	return &SubmitError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("object does not exist and base revision is %d", base),
		ObjectID:   id,
		PatchIndex: -1,
	}
}

func newInvalidBase(id model.ObjectID, base, current int64) *SubmitError {
	return &SubmitError{
		Code:       CodeInvalidBaseRevision,
		Message:    fmt.Sprintf("base revision %d is ahead of current revision %d", base, current),
		ObjectID:   id,
		PatchIndex: -1,
	}
}

func newMalformed(id model.ObjectID, index int, err error) *SubmitError {
	return &SubmitError{
		Code:       CodeMalformedPatch,
		Message:    "patch does not apply",
		ObjectID:   id,
		PatchIndex: index,
		Err:        err,
	}
}

func newUnavailable(id model.ObjectID, err error) *SubmitError {
	return &SubmitError{
		Code:       CodeStorageUnavailable,
		Message:    "storage did not recover within the retry budget",
		ObjectID:   id,
		PatchIndex: -1,
		Err:        err,
	}
}

func newRetryExhausted(id model.ObjectID, attempts int) *SubmitError {
	return &SubmitError{
		Code:       CodeRetryExhausted,
		Message:    fmt.Sprintf("lost the race for the object %d times", attempts),
		ObjectID:   id,
		PatchIndex: -1,
	}
}
