package semgrep

import (
	"errors"
	"fmt"
)

// ErrCode classifies engine invocation failures so the protocol layer can
// report them distinctly without string matching.
type ErrCode string

const (
	ErrCodeInvalidArgument ErrCode = "invalid_argument"
	ErrCodeStaging         ErrCode = "staging_failed"
	ErrCodeSpawn           ErrCode = "spawn_failed"
	ErrCodeTimeout         ErrCode = "scan_timeout"
	ErrCodeExec            ErrCode = "exec_failed"
	ErrCodeOutputParse     ErrCode = "output_parse_failed"
)

// EngineError is the error type returned for every failed engine invocation.
// Stderr carries a bounded excerpt of the engine's diagnostics; it never
// contains staged rule or code contents.
type EngineError struct {
	Code   ErrCode
	Detail string
	Stderr string
	Err    error
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("semgrep %s: %s", e.Code, e.Detail)
	if e.Stderr != "" {
		msg += "\nstderr: " + e.Stderr
	}
	return msg
}

func (e *EngineError) Unwrap() error { return e.Err }

// CodeOf returns the ErrCode carried by err, or "" when err is not an
// EngineError.
func CodeOf(err error) ErrCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

func invalidArgument(format string, args ...interface{}) error {
	return &EngineError{Code: ErrCodeInvalidArgument, Detail: fmt.Sprintf(format, args...)}
}
