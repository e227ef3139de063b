// Package errors is the one error type of postcraft. Every failure carries
// a Code, so per-item outcomes can be stored, counted and mapped to HTTP
// without string matching.
package errors

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"runtime"
	"strings"
)

type Code string

// Item and batch outcomes.
const (
	CodeLayout                   Code = "LAYOUT_ERROR"
	CodeRaster                   Code = "RASTER_ERROR"
	CodePublish                  Code = "PUBLISH_ERROR"
	CodeDestinationNotConfigured Code = "DESTINATION_NOT_CONFIGURED"
	CodeManifestEmpty            Code = "MANIFEST_EMPTY"
	CodeCanceled                 Code = "CANCELED"
)

// Transport and storage causes.
const (
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeTimeout         Code = "TIMEOUT"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeResourceExhaust Code = "RESOURCE_EXHAUSTED"
)

// statusByCode maps codes to API statuses; unlisted codes are 500.
var statusByCode = map[Code]int{
	CodeValidation:               http.StatusBadRequest,
	CodeLayout:                   http.StatusBadRequest,
	CodeUnauthorized:             http.StatusUnauthorized,
	CodeForbidden:                http.StatusForbidden,
	CodeNotFound:                 http.StatusNotFound,
	CodeConflict:                 http.StatusConflict,
	CodeManifestEmpty:            http.StatusConflict,
	CodeResourceExhaust:          http.StatusTooManyRequests,
	CodeDestinationNotConfigured: http.StatusServiceUnavailable,
	CodeUnavailable:              http.StatusServiceUnavailable,
	CodeTimeout:                  http.StatusGatewayTimeout,
}

type Error struct {
	Code    Code
	Message string
	// Op names the failing operation, e.g. "publisher.publish".
	Op  string
	Err error
	// Fields are structured details; "cause" holds the storage-level Code
	// behind a PUBLISH_ERROR.
	Fields map[string]any
	Stack  []Frame
}

type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// Error renders "op: [CODE] message: cause".
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op + ": ")
	}
	if e.Code != "" {
		fmt.Fprintf(&b, "[%s] ", e.Code)
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithField sets one detail and returns e for chaining.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any, 2)
	}
	e.Fields[key] = value
	return e
}

func (e *Error) HTTPStatus() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func (e *Error) StackTrace() string {
	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

func build(code Code, op, msg string, cause error) *Error {
	return &Error{Code: code, Op: op, Message: msg, Err: cause, Stack: callers(3)}
}

func New(code Code, message string) *Error {
	return build(code, "", message, nil)
}

func Newf(code Code, format string, args ...any) *Error {
	return build(code, "", fmt.Sprintf(format, args...), nil)
}

// Wrap annotates err with op and message. The code and fields of an inner
// *Error survive; anything else becomes INTERNAL_ERROR.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}
	var inner *Error
	if errors.As(err, &inner) {
		e := build(inner.Code, op, message, err)
		e.Fields = maps.Clone(inner.Fields)
		return e
	}
	return build(CodeInternal, op, message, err)
}

// WrapWithCode annotates err and forces code.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}
	return build(code, op, message, err)
}

func Validation(message string) *Error {
	return build(CodeValidation, "", message, nil)
}

func ValidationField(field string, message string) *Error {
	return build(CodeValidation, "", message, nil).WithField("field", field)
}

func NotFound(resource string, id string) *Error {
	return build(CodeNotFound, "", resource+" not found: "+id, nil).
		WithField("resource", resource).
		WithField("id", id)
}

func find(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// GetCode returns the outermost code in err's chain, INTERNAL_ERROR for
// foreign errors.
func GetCode(err error) Code {
	if e, ok := find(err); ok {
		return e.Code
	}
	return CodeInternal
}

func GetHTTPStatus(err error) int {
	if e, ok := find(err); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func GetFields(err error) map[string]any {
	if e, ok := find(err); ok {
		return e.Fields
	}
	return nil
}

// Cause returns the storage-level code recorded on a PUBLISH_ERROR, or ""
// when none was recorded.
func Cause(err error) Code {
	c, _ := GetFields(err)["cause"].(Code)
	return c
}

func IsCode(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

func IsNotFound(err error) bool { return IsCode(err, CodeNotFound) }

// IsBatchFatal reports whether err stops a whole batch rather than one item.
func IsBatchFatal(err error) bool { return IsCode(err, CodeDestinationNotConfigured) }

const maxFrames = 10

func callers(skip int) []Frame {
	var pcs [32]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	it := runtime.CallersFrames(pcs[:n])

	frames := make([]Frame, 0, maxFrames)
	for len(frames) < maxFrames {
		f, more := it.Next()
		if !strings.Contains(f.File, "runtime/") {
			frames = append(frames, Frame{File: f.File, Line: f.Line, Function: f.Function})
		}
		if !more {
			break
		}
	}
	return frames
}

func As(err error, target any) bool { return errors.As(err, target) }

func Is(err, target error) bool { return errors.Is(err, target) }
