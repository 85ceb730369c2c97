package main

import "fmt"

// Exit codes for the radar CLI.
const (
	ExitOK           = 0
	ExitFailure      = 1 // Config, store or unexpected failure.
	ExitInvalidArgs  = 2 // Bad flags or a rejected upload.
	ExitPartialWrite = 3 // Some rows persisted before the store failed.
)

// exitCodeError carries a non-zero exit code through cobra's error handling.
type exitCodeError struct {
	code int
	msg  string
}

func (e *exitCodeError) Error() string { return e.msg }

func (e *exitCodeError) ExitCode() int { return e.code }

func invalidArgs(format string, args ...any) error {
	return &exitCodeError{code: ExitInvalidArgs, msg: fmt.Sprintf(format, args...)}
}
