package executor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/assemble/assemble/pkg/engine"
	"github.com/assemble/assemble/pkg/graph"
	"github.com/assemble/assemble/pkg/identifier"
	"github.com/assemble/assemble/pkg/task"
	"github.com/assemble/assemble/pkg/telemetry"
	"github.com/assemble/assemble/pkg/work"
)

// ReasonNoSource is reported when every declared source collection is empty.
const ReasonNoSource = "no source files"

// Options configures an Executor.
type Options struct {
	// Workers bounds parallelism. Zero means runtime.NumCPU().
	Workers int

	// FailureMode defaults to engine.FailFast.
	FailureMode engine.FailureMode

	// Store holds up-to-date history. Without one every task runs.
	Store work.Store

	Listeners []Listener

	// Recorder persists run history when set.
	Recorder Recorder

	// Telemetry defaults to telemetry.Nop().
	Telemetry *telemetry.Telemetry
}

// Executor runs execution graphs on a bounded worker pool.
type Executor struct {
	opts Options
	tel  *telemetry.Telemetry
	log  *telemetry.Logger
}

// New creates an executor, filling defaults into opts.
func New(opts Options) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.FailureMode == "" {
		opts.FailureMode = engine.FailFast
	}
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &Executor{
		opts: opts,
		tel:  tel,
		log:  tel.Logger.NewComponentLogger("executor"),
	}
}

// Workers returns the effective worker count.
func (e *Executor) Workers() int { return e.opts.Workers }

// Run executes every node of g. Task failures are reported in the returned
// Report, not as an error; Run only errors on invalid arguments.
//
// Cancelling ctx stops dispatch. Tasks already on a worker run to completion
// and the rest are reported as SKIPPED.
func (e *Executor) Run(ctx context.Context, g *graph.ExecutionGraph) (*Report, error) {
	if g == nil {
		return nil, engine.NewInternalError(engine.ErrCodeInternal, "execution graph is nil", nil)
	}
	if err := e.opts.FailureMode.Validate(); err != nil {
		return nil, engine.NewConfigurationError(engine.ErrCodeInternal, "invalid failure mode", err)
	}

	run := &runState{
		exec:      e,
		id:        uuid.NewString(),
		graph:     g,
		plan:      newPlan(g, e.opts.FailureMode),
		loadTime:  time.Now(),
		requested: idStrings(g.Requested),
	}
	run.log = e.log.WithRunID(run.id)

	ctx, span := e.tel.Tracer.StartRunSpan(ctx, run.id, run.requested)
	run.log.Infof("starting run with %d tasks on %d workers", g.Len(), e.opts.Workers)
	_ = e.tel.Events.PublishRunStarted(run.id, run.requested)
	if e.opts.Recorder != nil {
		if err := e.opts.Recorder.RecordRunStart(ctx, run.id, run.requested, run.loadTime); err != nil {
			run.log.WithError(err).Warn("failed to record run start")
		}
	}

	run.dispatch(ctx)

	elapsed := time.Since(run.loadTime)
	summary := engine.Summarize(run.results, run.plan.cancelled, elapsed)
	report := &Report{
		RunID:     run.id,
		Requested: g.Requested,
		Results:   run.results,
		Summary:   summary,
		Started:   run.loadTime,
	}

	e.tel.Metrics.RecordRun(string(summary.Status), elapsed)
	_ = e.tel.Events.PublishRunFinished(run.id, string(summary.Status), elapsed)
	if e.opts.Recorder != nil {
		if err := e.opts.Recorder.RecordRunEnd(ctx, run.id, summary); err != nil {
			run.log.WithError(err).Warn("failed to record run end")
		}
	}
	telemetry.EndSpan(span, report.Err(), telemetry.AttrRunStatus.String(string(summary.Status)))
	run.log.Infof("run %s in %s", summary.Status, elapsed.Round(time.Millisecond))
	return report, nil
}

// runState is the per-run bookkeeping owned by the dispatcher goroutine.
type runState struct {
	exec      *Executor
	id        string
	graph     *graph.ExecutionGraph
	plan      *plan
	loadTime  time.Time
	requested []string
	log       *telemetry.Logger
	results   []*engine.TaskResult
}

func (r *runState) dispatch(ctx context.Context) {
	workers := r.exec.opts.Workers
	jobs := make(chan *graph.Node)
	done := make(chan *engine.TaskResult)

	// Tasks keep the run's values but are not interrupted by cancellation.
	taskCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				done <- r.exec.execute(taskCtx, r.id, n, r.loadTime)
			}
		}()
	}

	r.settle(ctx)

	cancelled := ctx.Done()
	inflight := 0
	for !r.plan.finished() {
		if cancelled != nil && ctx.Err() != nil {
			r.cancel(ctx)
			cancelled = nil
			continue
		}
		for r.plan.hasReady() && inflight < workers {
			jobs <- r.plan.next()
			inflight++
		}
		r.exec.tel.Metrics.SetQueued(r.plan.queue.Len())

		select {
		case res := <-done:
			inflight--
			r.plan.complete(res.ID, res.Outcome)
			r.record(ctx, res)
			r.settle(ctx)
		case <-cancelled:
			r.cancel(ctx)
			cancelled = nil
		}
	}

	close(jobs)
	wg.Wait()
	r.exec.tel.Metrics.SetQueued(0)
}

func (r *runState) cancel(ctx context.Context) {
	r.log.Warn("run cancelled, waiting for running tasks")
	r.plan.cancel()
	r.settle(ctx)
}

// settle advances the plan and records a result for every skipped node.
func (r *runState) settle(ctx context.Context) {
	for _, s := range r.plan.settle() {
		res := &engine.TaskResult{
			ID:       s.id,
			Outcome:  engine.OutcomeSkipped,
			Reason:   s.reason,
			LoadTime: r.loadTime,
		}
		r.log.WithTaskID(s.id.String()).Debugf("skipped: %s", s.reason)
		for _, l := range r.exec.opts.Listeners {
			if obs, ok := l.(SkipObserver); ok {
				obs.TaskSkipped(ctx, res)
			}
		}
		r.record(ctx, res)
	}
}

// record appends a result and publishes it to metrics, events and the recorder.
func (r *runState) record(ctx context.Context, res *engine.TaskResult) {
	r.results = append(r.results, res)
	tel := r.exec.tel
	tel.Metrics.RecordTask(string(res.Outcome), res.Duration())
	if res.Outcome == engine.OutcomeFailed {
		class, code := classify(res.Err)
		tel.Metrics.RecordError(class, code)
	}
	_ = tel.Events.PublishTaskFinished(r.id, res.ID.String(), string(res.Outcome), res.Reason, res.Duration())
	if r.exec.opts.Recorder != nil {
		if err := r.exec.opts.Recorder.RecordTaskResult(ctx, r.id, res); err != nil {
			r.log.WithError(err).Warn("failed to record task result")
		}
	}
}

// execute runs one node on the calling worker.
func (e *Executor) execute(ctx context.Context, runID string, n *graph.Node, loadTime time.Time) *engine.TaskResult {
	exec := n.Exec
	log := e.log.WithRunID(runID).WithTaskID(n.ID.String())
	ctx = log.WithContext(ctx)
	ctx, span := e.tel.Tracer.StartTaskSpan(ctx, n.ID.String())

	e.tel.Metrics.TaskStarted()
	defer e.tel.Metrics.TaskFinished()
	_ = e.tel.Events.PublishTaskStarted(runID, n.ID.String())

	res := &engine.TaskResult{ID: n.ID, LoadTime: loadTime, Start: time.Now()}

	var (
		err     error
		history *work.History
	)
	for _, l := range e.opts.Listeners {
		if err = l.BeforeExecute(ctx, exec); err != nil {
			err = engine.NewTaskError(engine.ErrCodeListenerFailed, "before-execute listener failed", err).WithTask(n.ID)
			break
		}
	}
	if err == nil {
		res.Outcome, res.Reason, history, err = e.perform(ctx, exec, log)
	}
	if err != nil {
		res.Outcome = engine.OutcomeFailed
		res.Err = err
	}

	res.End = time.Now()
	res.Stdout = exec.Stdout().String()
	res.Stderr = exec.Stderr().String()
	exec.MarkFinished()

	for _, l := range e.opts.Listeners {
		if lerr := l.AfterExecute(ctx, exec, res); lerr != nil {
			res.Outcome = engine.OutcomeFailed
			res.Err = errors.Join(res.Err, engine.NewTaskError(engine.ErrCodeListenerFailed, "after-execute listener failed", lerr).WithTask(n.ID))
		}
	}

	// History only survives a task whose final outcome is successful.
	switch {
	case res.Outcome == engine.OutcomeFailed:
		e.removeHistory(ctx, n.ID, log)
	case history != nil:
		e.saveHistory(ctx, history, log)
	}

	if res.Outcome == engine.OutcomeFailed {
		log.WithError(res.Err).Error("task failed")
	} else {
		log.Debugf("%s in %s", res.Outcome, res.Duration())
	}
	telemetry.EndSpan(span, res.Err,
		telemetry.AttrTaskOutcome.String(string(res.Outcome)),
		telemetry.AttrTaskReason.String(res.Reason),
	)
	return res
}

// perform is the up-to-date check followed by the task actions. The
// returned history is nil when nothing should be stored.
func (e *Executor) perform(ctx context.Context, exec *task.Executable, log *telemetry.Logger) (engine.Outcome, string, *work.History, error) {
	id := exec.ID()

	input, err := exec.SnapshotInputs()
	if err != nil {
		return engine.OutcomeFailed, "", nil, engine.NewProviderError("failed to evaluate task inputs", err).WithTask(id)
	}

	if exec.HasSourceDeclaration() {
		empty, err := exec.SourceEmpty()
		if err != nil {
			return engine.OutcomeFailed, "", nil, engine.NewTaskError(engine.ErrCodeActionFailed, "failed to list source files", err).WithTask(id)
		}
		if empty {
			e.removeHistory(ctx, id, log)
			return engine.OutcomeNoSource, ReasonNoSource, nil, nil
		}
	}

	prev := e.loadHistory(ctx, id, log)
	decision := work.Decide(prev, input, exec.HasOutputs(), exec.UpToDateChecks()...)
	if decision.UpToDate {
		if err := exec.Recover(prev.Output); err != nil {
			log.WithError(err).Warn("could not recover previous outputs, executing")
		} else {
			return engine.OutcomeUpToDate, decision.Reason, nil, nil
		}
	} else {
		log.Debugf("executing: %s", decision.Reason)
	}

	stopped, err := exec.Execute(ctx)
	if err != nil {
		return engine.OutcomeFailed, "", nil, engine.NewTaskError(engine.ErrCodeActionFailed, "task action failed", err).WithTask(id)
	}

	var history *work.History
	if input.AnyInputs() && exec.HasOutputs() {
		out, err := exec.SnapshotOutputs()
		if err != nil {
			log.WithError(err).Warn("failed to snapshot outputs")
			e.removeHistory(ctx, id, log)
		} else {
			history = &work.History{Input: input, Output: out}
		}
	} else if prev != nil {
		e.removeHistory(ctx, id, log)
	}

	if stopped {
		return engine.OutcomeStopped, "", history, nil
	}
	return engine.OutcomeExecuted, decision.Reason, history, nil
}

func (e *Executor) loadHistory(ctx context.Context, id identifier.TaskID, log *telemetry.Logger) *work.History {
	if e.opts.Store == nil {
		return nil
	}
	h, err := e.opts.Store.Load(ctx, id)
	if err != nil {
		log.WithError(err).Warn("failed to load task history, treating as out of date")
		return nil
	}
	if h != nil && h.Input.TaskID != id {
		log.Warnf("ignoring history recorded for %s", h.Input.TaskID)
		return nil
	}
	return h
}

func (e *Executor) saveHistory(ctx context.Context, h *work.History, log *telemetry.Logger) {
	if e.opts.Store == nil {
		return
	}
	if err := e.opts.Store.Save(ctx, h); err != nil {
		log.WithError(err).Warn("failed to save task history")
	}
}

func (e *Executor) removeHistory(ctx context.Context, id identifier.TaskID, log *telemetry.Logger) {
	if e.opts.Store == nil {
		return
	}
	if err := e.opts.Store.Remove(ctx, id); err != nil {
		log.WithError(err).Warn("failed to remove task history")
	}
}

func classify(err error) (string, string) {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		return string(ee.Class), ee.Code
	}
	return string(engine.ErrorClassTask), ""
}

func idStrings(ids []identifier.TaskID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
