package tasks

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSuperseded is returned by Run when a newer group took over before
// this one finished. The remote group has been told to cancel.
var ErrSuperseded = errors.New("task group superseded")

// ErrMissingResult is wrapped when a sub-result expected by the caller is
// absent from response_data.
var ErrMissingResult = errors.New("missing sub-result")

// GenericFailureMessage is shown for failures whose details are not shown.
const GenericFailureMessage = "Unfortunately, there was a problem contacting the server. Please try again."

type ErrorKind string

const (
	KindSubmit       ErrorKind = "submit"
	KindPoll         ErrorKind = "poll"
	KindCatastrophic ErrorKind = "catastrophic"
	KindPartial      ErrorKind = "partial"
	KindBadStatus    ErrorKind = "bad_status"
	KindDataShape    ErrorKind = "data_shape"
)

// TaskError is a terminal failure of a task group.
type TaskError struct {
	Kind     ErrorKind
	GroupID  string
	Detail   string   // internal detail, logged but not shown
	Messages []string // per sub-request messages, shown to the user
	Err      error
}

func (e *TaskError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("task group %q failed (%s)", e.GroupID, e.Kind))
	if e.Detail != "" {
		sb.WriteString(": " + e.Detail)
	}
	if len(e.Messages) > 0 {
		sb.WriteString(": " + strings.Join(e.Messages, "; "))
	}
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// UserMessage is the text for the blocking error notification.
func (e *TaskError) UserMessage() string {
	switch e.Kind {
	case KindPartial, KindBadStatus:
		return "Unfortunately, there was a problem calculating the results. " + strings.Join(e.Messages, "; ")
	case KindDataShape:
		return "Unfortunately, the server returned data that could not be displayed. " + strings.Join(e.Messages, "; ")
	default:
		return GenericFailureMessage
	}
}
