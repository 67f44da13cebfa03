// Package pipeline runs an analysis through an ordered list of stages and
// keeps the run's state machine in step.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/IshaanNene/ShopSense/internal/types"
)

// Stage is one step of an analysis run.
type Stage interface {
	// Name is the state the run is in while the stage executes.
	Name() types.RunState

	// Process advances the run. An error fails the run.
	Process(ctx context.Context, run *types.Run) error
}

// StageFunc adapts a function to Stage.
type StageFunc struct {
	State types.RunState
	Fn    func(ctx context.Context, run *types.Run) error
}

func (s StageFunc) Name() types.RunState { return s.State }

func (s StageFunc) Process(ctx context.Context, run *types.Run) error { return s.Fn(ctx, run) }

// TransitionHook observes state changes.
type TransitionHook func(run *types.Run, from, to types.RunState)

// Pipeline chains stages together.
type Pipeline struct {
	stages []Stage
	hooks  []TransitionHook
	logger *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Use appends a stage.
func (p *Pipeline) Use(stage Stage) {
	p.stages = append(p.stages, stage)
	p.logger.Debug("stage added", "name", stage.Name(), "position", len(p.stages))
}

// OnTransition registers a hook called on every state change.
func (p *Pipeline) OnTransition(hook TransitionHook) {
	p.hooks = append(p.hooks, hook)
}

// Process runs every stage in order. On the first error the run moves to
// failed and the error is returned as a *types.PipelineError.
func (p *Pipeline) Process(ctx context.Context, run *types.Run) error {
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return p.fail(run, stage.Name(), err)
		}

		p.transition(run, stage.Name())
		start := time.Now()
		if err := stage.Process(ctx, run); err != nil {
			return p.fail(run, stage.Name(), err)
		}
		p.logger.Debug("stage complete", "run_id", run.ID, "stage", stage.Name(), "duration", time.Since(start))
	}

	run.FinishedAt = time.Now().UTC()
	p.transition(run, types.StateDone)
	return nil
}

// Len returns the number of stages.
func (p *Pipeline) Len() int {
	return len(p.stages)
}

func (p *Pipeline) fail(run *types.Run, stage types.RunState, err error) error {
	perr := &types.PipelineError{Stage: stage, RunID: run.ID, Err: err}
	run.Err = perr
	run.FinishedAt = time.Now().UTC()
	p.transition(run, types.StateFailed)
	p.logger.Warn("run failed", "run_id", run.ID, "url", run.URL, "stage", stage, "error", err)
	return perr
}

func (p *Pipeline) transition(run *types.Run, to types.RunState) {
	from := run.State
	run.State = to
	for _, hook := range p.hooks {
		hook(run, from, to)
	}
}
