package api

import (
	"errors"
	"fmt"
)

// UnknownError is reported when the worker rejects a request without a reason.
const UnknownError = "Unknown error"

// LoginRequired is the rejection reported when the worker bounced a request
// to its login page.
const LoginRequired = "login required"

// NetworkError is a transport failure reaching the worker.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RejectedError means the worker answered with ok=false.
type RejectedError struct {
	Op      string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Message)
}

// MalformedResponseError means the response body could not be decoded.
type MalformedResponseError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response (status %d): %v", e.Op, e.StatusCode, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsRejected reports whether err is (or wraps) a RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// IsMalformed reports whether err is (or wraps) a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// IsLoginRequired reports whether err is the worker asking for a new login.
func IsLoginRequired(err error) bool {
	var re *RejectedError
	return errors.As(err, &re) && re.Message == LoginRequired
}
