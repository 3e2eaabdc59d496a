package executor

import (
	"context"
	"errors"
	"time"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/identifier"
)

// Report is the outcome of one Run.
type Report struct {
	RunID     string
	Requested []identifier.TaskID
	// Results holds one entry per graph node in completion order.
	Results []*engine.TaskResult
	Summary engine.RunSummary
	Started time.Time
}

// Result returns the result for id.
func (r *Report) Result(id identifier.TaskID) (*engine.TaskResult, bool) {
	for _, res := range r.Results {
		if res.ID == id {
			return res, true
		}
	}
	return nil, false
}

// InRequestOrder returns the results of the requested tasks in the order
// they were requested.
func (r *Report) InRequestOrder() []*engine.TaskResult {
	out := make([]*engine.TaskResult, 0, len(r.Requested))
	for _, id := range r.Requested {
		if res, ok := r.Result(id); ok {
			out = append(out, res)
		}
	}
	return out
}

// Succeeded reports whether no task failed and the run was not cancelled.
func (r *Report) Succeeded() bool {
	return r.Summary.Status == engine.RunStatusSucceeded
}

// Err joins the errors of all failed tasks. A cancelled run without failures
// returns context.Canceled.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Outcome == engine.OutcomeFailed && res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	if len(errs) == 0 && r.Summary.Status == engine.RunStatusCancelled {
		return context.Canceled
	}
	return errors.Join(errs...)
}
