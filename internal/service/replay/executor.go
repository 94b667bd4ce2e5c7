package replay

import (
	"context"
	"fmt"
	"log"

	"github.com/zixuanli/edge-sim/backend/internal/model/job"
	"github.com/zixuanli/edge-sim/backend/internal/service/ai"
	"github.com/zixuanli/edge-sim/backend/internal/store"
)

const (
	stepAnalyze  = "analyze"
	stepFinalize = "finalize"

	analyzeTemperature = 0.3
	analyzeMaxTokens   = 500

	finalizeTemperature = 0.3
	finalizeMaxTokens   = 600
)

// Executor runs the fixed analyze -> finalize pipeline for analysis jobs.
// Every step result is durably recorded before the next step starts, so a
// job re-driven after a crash resumes at the first unrecorded step.
type Executor struct {
	store      *store.Store
	inferencer ai.Inferencer
}

// NewExecutor wires the executor against its durable store and model backend.
func NewExecutor(st *store.Store, inferencer ai.Inferencer) *Executor {
	return &Executor{store: st, inferencer: inferencer}
}

// Create registers a new job and begins executing it in the background.
// A duplicate id fails synchronously with store.ErrDuplicateJob and leaves
// the existing job untouched.
func (e *Executor) Create(ctx context.Context, id string, params job.Params) error {
	if !params.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", params.Mode)
	}

	if err := e.store.CreateJob(id, params); err != nil {
		return err
	}

	log.Printf("[replay] created job id=%s mode=%s session=%s", id, params.Mode, params.SessionID)
	go e.run(context.WithoutCancel(ctx), id)
	return nil
}

// Status is a pure read of the current job state; it never blocks execution
// and stays queryable indefinitely after creation.
func (e *Executor) Status(_ context.Context, id string) (job.State, error) {
	return e.store.GetJob(id)
}

// Recover re-drives every job that was left non-terminal by a previous
// process. Completed steps replay from the log as no-ops.
func (e *Executor) Recover(ctx context.Context) error {
	ids, err := e.store.ListJobsByStatus(job.StatusQueued, job.StatusRunning)
	if err != nil {
		return fmt.Errorf("list resumable jobs: %w", err)
	}

	for _, id := range ids {
		log.Printf("[replay] resuming job id=%s", id)
		go e.run(context.WithoutCancel(ctx), id)
	}
	return nil
}

func (e *Executor) run(ctx context.Context, id string) {
	state, err := e.store.GetJob(id)
	if err != nil {
		log.Printf("[replay] cannot load job id=%s: %v", id, err)
		return
	}
	if state.Status.Terminal() {
		return
	}

	if err := e.store.MarkJobRunning(id); err != nil {
		log.Printf("[replay] cannot mark job running id=%s: %v", id, err)
		return
	}

	params := state.Params

	analysis, err := e.runStep(ctx, id, stepAnalyze, func() (string, error) {
		return e.inferencer.Infer(ctx, []ai.Message{
			ai.SystemMessage(ai.AnalystPrompt(params.Persona)),
			ai.UserMessage(params.UserMessage),
		}, ai.Options{Temperature: analyzeTemperature, MaxTokens: analyzeMaxTokens})
	})
	if err != nil {
		e.fail(id, stepAnalyze, err)
		return
	}

	final, err := e.runStep(ctx, id, stepFinalize, func() (string, error) {
		return e.inferencer.Infer(ctx, []ai.Message{
			ai.SystemMessage(ai.FinalizePrompt(params.Mode)),
			ai.UserMessage(fmt.Sprintf("Scenario: %s\n\nAnalysis:\n%s", params.UserMessage, analysis)),
		}, ai.Options{Temperature: finalizeTemperature, MaxTokens: finalizeMaxTokens})
	})
	if err != nil {
		e.fail(id, stepFinalize, err)
		return
	}

	output := job.Output{
		Title:    ai.ReportTitle(params.Mode),
		Mode:     params.Mode,
		Scenario: params.UserMessage,
		Analysis: analysis,
		Result:   final,
	}
	if err := e.store.MarkJobComplete(id, output); err != nil {
		log.Printf("[replay] cannot mark job complete id=%s: %v", id, err)
		return
	}
	log.Printf("[replay] job complete id=%s", id)
}

// runStep memoizes a named step: a recorded result replays without invoking
// compute; otherwise compute runs once and its result is recorded before
// returning. A failed compute records nothing, so a later re-drive retries it.
func (e *Executor) runStep(_ context.Context, jobID, name string, compute func() (string, error)) (string, error) {
	if rec, ok, err := e.store.GetStep(jobID, name); err != nil {
		return "", fmt.Errorf("lookup step %s: %w", name, err)
	} else if ok {
		log.Printf("[replay] replaying recorded step job=%s step=%s", jobID, name)
		return rec.Result, nil
	}

	result, err := compute()
	if err != nil {
		return "", err
	}

	if err := e.store.RecordStep(jobID, name, result); err != nil {
		return "", fmt.Errorf("record step %s: %w", name, err)
	}
	return result, nil
}

func (e *Executor) fail(id, step string, err error) {
	detail := fmt.Sprintf("step %s failed: %v", step, err)
	log.Printf("[replay] job errored id=%s: %s", id, detail)
	if markErr := e.store.MarkJobErrored(id, detail); markErr != nil {
		log.Printf("[replay] cannot mark job errored id=%s: %v", id, markErr)
	}
}
