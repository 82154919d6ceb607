package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for retry decisions.
type Kind string

const (
	// KindValidation marks deterministic, caller-correctable failures. Never retried.
	KindValidation Kind = "validation"
	// KindConflict marks a lost race against a concurrent writer. Nothing was committed.
	KindConflict Kind = "conflict"
	// KindTransient marks store unavailability or timeouts.
	KindTransient Kind = "transient"
	// KindInternal is everything else.
	KindInternal Kind = "internal"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status"`
	Kind    Kind        `json:"kind,omitempty"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so callers can use errors.Is against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Kind: kindForStatus(status)}
}

func newKind(code string, status int, kind Kind, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Kind: kind}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err, Kind: kindForStatus(status)}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = newKind("INTERNAL_ERROR", http.StatusInternalServerError, KindInternal, "internal server error")
	ErrCacheMiss          = newKind("CACHE_MISS", http.StatusNotFound, KindInternal, "cache miss")
)

// Enrollment and grading validation failures.
var (
	ErrSectionFull         = newKind("SECTION_FULL", http.StatusConflict, KindValidation, "section is full")
	ErrScheduleConflict    = newKind("SCHEDULE_CONFLICT", http.StatusConflict, KindValidation, "time slot conflicts with an existing enrollment")
	ErrCreditLimitExceeded = newKind("CREDIT_LIMIT_EXCEEDED", http.StatusUnprocessableEntity, KindValidation, "semester credit limit exceeded")
	ErrPrerequisiteNotMet  = newKind("PREREQUISITE_NOT_MET", http.StatusUnprocessableEntity, KindValidation, "prerequisites not met")
	ErrAlreadyEnrolled     = newKind("ALREADY_ENROLLED", http.StatusConflict, KindValidation, "student already enrolled in section")
	ErrNotEnrolled         = newKind("NOT_ENROLLED", http.StatusConflict, KindValidation, "enrollment is not active")
	ErrDuplicateGrade      = newKind("DUPLICATE_GRADE", http.StatusConflict, KindValidation, "grade already submitted")
	ErrInvalidGradeValue   = newKind("INVALID_GRADE_VALUE", http.StatusBadRequest, KindValidation, "grade must be between 0 and 100")
	ErrStudentNotActive    = newKind("STUDENT_NOT_ACTIVE", http.StatusPreconditionFailed, KindValidation, "student is not active")
	ErrCourseInactive      = newKind("COURSE_INACTIVE", http.StatusPreconditionFailed, KindValidation, "course is inactive")
	ErrSemesterMismatch    = newKind("SEMESTER_MISMATCH", http.StatusBadRequest, KindValidation, "section does not belong to semester")
)

// Store-level failures.
var (
	ErrConsistencyConflict = newKind("CONSISTENCY_CONFLICT", http.StatusConflict, KindConflict, "concurrent update conflict, retry the operation")
	ErrTransient           = newKind("TRANSIENT_FAILURE", http.StatusServiceUnavailable, KindTransient, "store temporarily unavailable, retry later")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(err, ErrTransient.Code, ErrTransient.Status, ErrTransient.Message)
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of err carrying structured details.
func WithDetails(err *Error, message string, details interface{}) *Error {
	clone := Clone(err, message)
	if clone != nil {
		clone.Details = details
	}
	return clone
}

// KindOf reports the classification of err.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return FromError(err).Kind
}

// IsRetryable reports whether repeating the whole operation is safe and may succeed.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindTransient:
		return true
	default:
		return false
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusServiceUnavailable:
		return KindTransient
	case status >= 500:
		return KindInternal
	default:
		return KindValidation
	}
}
