package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a row failed.
type ErrorKind string

const (
	KindTransport      ErrorKind = "transport_error"
	KindRemoteRejected ErrorKind = "remote_rejected"
	KindLocalIO        ErrorKind = "local_io_error"
	KindUnexpected     ErrorKind = "unexpected_error"
)

// StageError is the failure of one pipeline stage.
type StageError struct {
	Stage      Stage
	Kind       ErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *StageError) Error() string {
	switch e.Kind {
	case KindRemoteRejected:
		return fmt.Sprintf("%s: status code %d, message: %s", e.Reason(), e.StatusCode, e.Body)
	case KindLocalIO:
		return fmt.Sprintf("%s: local file error: %v", e.Reason(), e.Err)
	case KindTransport:
		return fmt.Sprintf("%s: transport error: %v", e.Reason(), e.Err)
	default:
		return fmt.Sprintf("%s: unexpected error: %v", e.Reason(), e.Err)
	}
}

func (e *StageError) Unwrap() error { return e.Err }

// Reason is the stage specific failure name, e.g. UploadFailed.
func (e *StageError) Reason() string {
	switch e.Stage {
	case StageCreate:
		return "CreateFailed"
	case StageUpload:
		return "UploadFailed"
	case StageAnnotate:
		return "MetadataFailed"
	case StagePublish:
		return "PublishFailed"
	default:
		return "Failed"
	}
}

// RemoteRejected builds the error for a non-success status code.
func RemoteRejected(stage Stage, statusCode int, body string) *StageError {
	return &StageError{Stage: stage, Kind: KindRemoteRejected, StatusCode: statusCode, Body: body}
}

// TransportError builds the error for a call that could not complete.
func TransportError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Kind: KindTransport, Err: err}
}

// LocalIOError builds the error for a missing or unreadable local file.
func LocalIOError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Kind: KindLocalIO, Err: err}
}

// UnexpectedError wraps anything that escaped a stage, including panics.
func UnexpectedError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Kind: KindUnexpected, Err: err}
}

// AsStageError extracts a StageError from err.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsKind reports whether err is a StageError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	se, ok := AsStageError(err)
	return ok && se.Kind == kind
}
