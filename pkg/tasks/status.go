// Package tasks submits named groups of sub-requests to the compute service
// and polls them until the group reaches a terminal state.
package tasks

import (
	"encoding/json"
	"fmt"
	"sort"
)

const statusDone = "DONE"

// SubRequest is one named URL inside a task group.
type SubRequest struct {
	ID  string `json:"url_id"`
	URL string `json:"url"`
}

type submitPayload struct {
	URLs []SubRequest `json:"urls"`
}

type submitResponse struct {
	GroupID string `json:"group_id"`
}

// SubResult is one entry of response_data. It either carries an error
// (error, error_message, url, url_id) or a status code and a response body.
type SubResult struct {
	Error        json.RawMessage `json:"error,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	URL          string          `json:"url,omitempty"`
	URLID        string          `json:"url_id,omitempty"`
	StatusCode   int             `json:"status_code,omitempty"`
	Response     json.RawMessage `json:"response,omitempty"`
}

// HasError reports whether the error key was present at all.
func (s SubResult) HasError() bool {
	return len(s.Error) > 0
}

// ErrorText renders the error value as plain text.
func (s SubResult) ErrorText() string {
	return rawText(s.Error)
}

// ResponseError extracts response.error, which the service sets when a
// sub-request returned a non-200 status.
func (s SubResult) ResponseError() string {
	if len(s.Response) == 0 {
		return ""
	}
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(s.Response, &body); err != nil {
		return ""
	}
	return rawText(body.Error)
}

// Status is the payload of the status endpoint.
type Status struct {
	Status            string               `json:"status"`
	NumberTasksErrors int                  `json:"number_tasks_errors"`
	ResponseData      map[string]SubResult `json:"response_data"`
	Error             json.RawMessage      `json:"error,omitempty"`
}

// State is the position of a group in its lifecycle as seen by one poll.
type State int

const (
	StateSubmitted State = iota
	StateNotDone
	StateDoneError
	StateDonePartialError
	StateDoneBadStatus
	StateDoneSuccess
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateSubmitted:
		return "SUBMITTED"
	case StateNotDone:
		return "NOT_DONE"
	case StateDoneError:
		return "DONE_ERROR"
	case StateDonePartialError:
		return "DONE_PARTIAL_ERROR"
	case StateDoneBadStatus:
		return "DONE_BAD_STATUS"
	case StateDoneSuccess:
		return "DONE_SUCCESS"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether polling stops in this state.
func (s State) Terminal() bool {
	switch s {
	case StateDoneError, StateDonePartialError, StateDoneBadStatus, StateDoneSuccess, StateCancelled:
		return true
	}
	return false
}

// Evaluate classifies a status payload. The returned error is a *TaskError
// for every failing terminal state and nil otherwise.
func Evaluate(groupID string, st *Status) (State, error) {
	if st == nil || st.Status != statusDone {
		return StateNotDone, nil
	}

	if len(st.Error) > 0 {
		return StateDoneError, &TaskError{
			Kind:    KindCatastrophic,
			GroupID: groupID,
			Detail:  rawText(st.Error),
		}
	}

	keys := sortedKeys(st.ResponseData)

	if st.NumberTasksErrors != 0 {
		var msgs []string
		for _, k := range keys {
			v := st.ResponseData[k]
			if v.HasError() {
				msgs = append(msgs, fmt.Sprintf("%s: %s", k, v.ErrorText()))
			}
		}
		// the error count can run ahead of response_data; poll again
		if len(msgs) == 0 {
			return StateNotDone, nil
		}
		return StateDonePartialError, &TaskError{
			Kind:     KindPartial,
			GroupID:  groupID,
			Messages: msgs,
		}
	}

	var bad []string
	for _, k := range keys {
		v := st.ResponseData[k]
		if v.StatusCode != 200 {
			bad = append(bad, fmt.Sprintf("%s: %s", k, v.ResponseError()))
		}
	}
	if len(bad) > 0 {
		return StateDoneBadStatus, &TaskError{
			Kind:     KindBadStatus,
			GroupID:  groupID,
			Messages: bad,
		}
	}

	return StateDoneSuccess, nil
}

// response_data is a mapping; keys are sorted so messages are stable.
func sortedKeys(m map[string]SubResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
