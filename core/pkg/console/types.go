package console

import (
	"errors"
	"fmt"
	"time"
)

const (
	HeartbeatPayload = "heartbeat"

	CompletionSentinel = "Blog publishing process completed"
	FatalSentinel      = "Fatal error in blog automation process"

	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second

	ClearedPlaceholder = "Logs cleared. Ready for new process."

	HelpModalID   = "helpModal"
	BackdropClass = "modal"
)

const (
	msgStarting          = "Starting blog automation process...\n"
	msgConnecting        = "Connecting to log stream..."
	msgConnected         = "Connected to log stream. Waiting for process to start..."
	msgCompletedSummary  = "\nProcess finished successfully. You can generate more articles."
	msgFailedSummary     = "\nProcess failed. Please check the logs for errors."
	msgReconnectFormat   = "\nLog stream disconnected. Attempting to reconnect (%d/%d)..."
	msgGivingUp          = "\nCould not maintain connection to log stream. The process may still be running in the background."
	msgRefreshToContinue = "You can refresh the page to try reconnecting."
)

type ErrorKind string

const (
	ErrorSubmissionRejected  ErrorKind = "submission_rejected"
	ErrorSubmissionTransport ErrorKind = "submission_transport"
	ErrorStreamDropped       ErrorKind = "stream_dropped"
	ErrorStreamFatal         ErrorKind = "stream_fatal"
	ErrorStreamExhausted     ErrorKind = "stream_exhausted"
	ErrorSubmitDisabled      ErrorKind = "submit_disabled"
)

// Error is the user-facing error taxonomy. Message is what the log view shows.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var ErrSubmitDisabled = &Error{Kind: ErrorSubmitDisabled, Message: "a generation run is already being submitted"}

// KindOf reports the taxonomy kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var consoleErr *Error
	if errors.As(err, &consoleErr) {
		return consoleErr.Kind
	}
	return ""
}
