package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/yumyai/qtlview/logger"
	"github.com/yumyai/qtlview/pkg/transport"
	"go.uber.org/zap"
)

const DefaultPollInterval = 1000 * time.Millisecond

// Result is the response_data of a group that finished successfully.
type Result struct {
	GroupID string
	Data    map[string]SubResult
}

// Has reports whether a sub-result exists for id.
func (r *Result) Has(id string) bool {
	_, ok := r.Data[id]
	return ok
}

// Raw returns the response body of sub-result id.
func (r *Result) Raw(id string) (json.RawMessage, error) {
	sub, ok := r.Data[id]
	if !ok || len(sub.Response) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingResult, id)
	}
	return sub.Response, nil
}

// Decode unmarshals the response body of sub-result id into out.
func (r *Result) Decode(id string, out any) error {
	raw, err := r.Raw(id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", id, err)
	}
	return nil
}

// DecodeResult unmarshals response.result of sub-result id into out.
func (r *Result) DecodeResult(id string, out any) error {
	var body struct {
		Result json.RawMessage `json:"result"`
	}
	if err := r.Decode(id, &body); err != nil {
		return err
	}
	if len(body.Result) == 0 {
		return fmt.Errorf("%w: %s.result", ErrMissingResult, id)
	}
	if err := json.Unmarshal(body.Result, out); err != nil {
		return fmt.Errorf("decode %s.result: %w", id, err)
	}
	return nil
}

// Orchestrator drives task groups on the compute service.
type Orchestrator struct {
	client        transport.Doer
	submitURL     string
	statusBaseURL string
	cancelBaseURL string

	PollInterval time.Duration
	Groups       *GroupBook
}

func NewOrchestrator(client transport.Doer, submitURL, statusBaseURL, cancelBaseURL string) *Orchestrator {
	return &Orchestrator{
		client:        client,
		submitURL:     submitURL,
		statusBaseURL: statusBaseURL,
		cancelBaseURL: cancelBaseURL,
		PollInterval:  DefaultPollInterval,
		Groups:        NewGroupBook(0),
	}
}

// Submit posts the sub-requests as one group and returns the group id.
func (o *Orchestrator) Submit(ctx context.Context, reqs []SubRequest) (string, error) {
	if len(reqs) == 0 {
		return "", &TaskError{Kind: KindSubmit, Detail: "empty task group"}
	}

	var resp submitResponse
	if err := o.client.PostJSON(ctx, o.submitURL, submitPayload{URLs: reqs}, &resp); err != nil {
		return "", &TaskError{Kind: KindSubmit, Err: err}
	}
	if resp.GroupID == "" {
		return "", &TaskError{Kind: KindSubmit, Detail: "no group_id in submission response"}
	}

	logger.Debug("Task group submitted",
		zap.String("group_id", resp.GroupID),
		zap.Int("sub_requests", len(reqs)),
	)
	return resp.GroupID, nil
}

// Poll fetches the current status of a group once.
func (o *Orchestrator) Poll(ctx context.Context, groupID string) (*Status, error) {
	var st Status
	if err := o.client.GetJSON(ctx, o.statusBaseURL+groupID, &st); err != nil {
		return nil, &TaskError{Kind: KindPoll, GroupID: groupID, Err: err}
	}
	return &st, nil
}

// Cancel tells the service to drop the group. The outcome is only logged.
func (o *Orchestrator) Cancel(ctx context.Context, groupID string) {
	if _, err := o.client.Do(ctx, http.MethodGet, o.cancelBaseURL+groupID, nil); err != nil {
		logger.Warn("Cancel task group failed",
			zap.String("group_id", groupID),
			zap.Error(err),
		)
		return
	}
	logger.Info("Task group cancelled", zap.String("group_id", groupID))
}

// Run submits reqs and polls until the group is terminal. Before every poll
// the token is checked; a stale token cancels the remote group and Run
// returns ErrSuperseded without polling again.
func (o *Orchestrator) Run(ctx context.Context, tok Token, reqs []SubRequest) (*Result, error) {
	groupID, err := o.Submit(ctx, reqs)
	if err != nil {
		return nil, err
	}
	o.Groups.Add(groupID, reqs, tok)
	return o.Follow(ctx, tok, groupID)
}

// Follow polls an already submitted group.
func (o *Orchestrator) Follow(ctx context.Context, tok Token, groupID string) (*Result, error) {
	for {
		if !tok.Live() {
			o.cancel(groupID)
			return nil, ErrSuperseded
		}

		st, err := o.Poll(ctx, groupID)
		if err != nil {
			if ctx.Err() != nil {
				o.cancel(groupID)
				return nil, ctx.Err()
			}
			o.Groups.Fail(groupID, err)
			return nil, err
		}
		o.Groups.Polled(groupID)

		state, err := Evaluate(groupID, st)
		logger.Debug("Task group polled",
			zap.String("group_id", groupID),
			zap.Stringer("state", state),
		)

		switch {
		case state == StateDoneSuccess:
			o.Groups.Complete(groupID)
			return &Result{GroupID: groupID, Data: st.ResponseData}, nil
		case state.Terminal():
			o.Groups.Fail(groupID, err)
			logger.Error("Task group failed", zap.String("group_id", groupID), zap.Error(err))
			return nil, err
		}

		if err := transport.Sleep(ctx, o.PollInterval); err != nil {
			o.cancel(groupID)
			return nil, err
		}
	}
}

// cancel runs detached from the caller's context, which may already be done.
func (o *Orchestrator) cancel(groupID string) {
	o.Groups.Cancel(groupID)
	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	o.Cancel(ctx, groupID)
}

// IsSuperseded reports whether err came from a stale token or a dropped request.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded) || errors.Is(err, context.Canceled)
}
