package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/polisight/backend/pkg/logger"
)

// ErrStageFailed marks a contained stage failure.
var ErrStageFailed = errors.New("stage failed")

// StageError describes why a stage failed. It wraps ErrStageFailed and the
// underlying cause.
type StageError struct {
	Stage StageName
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{ErrStageFailed, e.Err}
}

// Stage is one unit of analysis.
type Stage interface {
	Name() StageName
	Reads() []Key
	Writes() []Key
	Run(ctx context.Context, actx *Context) (Result, error)
}

// Catalogue holds stages by name.
type Catalogue struct {
	stages map[StageName]Stage
	order  []StageName
}

// NewCatalogue builds a catalogue. Stage names must be unique.
func NewCatalogue(stages ...Stage) (*Catalogue, error) {
	c := &Catalogue{stages: make(map[StageName]Stage, len(stages))}
	for _, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("nil stage")
		}
		if _, ok := c.stages[s.Name()]; ok {
			return nil, fmt.Errorf("duplicate stage %q", s.Name())
		}
		c.stages[s.Name()] = s
		c.order = append(c.order, s.Name())
	}
	return c, nil
}

// Get returns the stage with the given name.
func (c *Catalogue) Get(name StageName) (Stage, bool) {
	s, ok := c.stages[name]
	return s, ok
}

// Names lists the stage names in registration order.
func (c *Catalogue) Names() []StageName {
	return append([]StageName(nil), c.order...)
}

// Runner executes stages against a Context with a per-stage timeout.
type Runner struct {
	catalogue *Catalogue
	timeout   time.Duration
}

// DefaultStageTimeout bounds a single stage run.
const DefaultStageTimeout = 30 * time.Second

// NewRunner creates a runner. A non-positive timeout uses DefaultStageTimeout.
func NewRunner(catalogue *Catalogue, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultStageTimeout
	}
	return &Runner{catalogue: catalogue, timeout: timeout}
}

// Catalogue returns the stages the runner can execute.
func (r *Runner) Catalogue() *Catalogue {
	return r.catalogue
}

// RunStage runs the named stage. A stage failure, including a timeout or a
// panic, is recorded in actx.Errors and returned as *StageError. If ctx
// itself is done the context error is returned and nothing is recorded.
func (r *Runner) RunStage(ctx context.Context, name StageName, actx *Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	actx.CurrentStage = name
	stage, ok := r.catalogue.Get(name)
	if !ok {
		return nil, r.fail(actx, name, fmt.Errorf("unknown stage"))
	}

	stageCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	res, err := runProtected(stageCtx, stage, actx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err == nil && res == nil {
		err = fmt.Errorf("stage returned no result")
	}
	if err == nil && stageCtx.Err() != nil {
		err = stageCtx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", r.timeout, err)
		}
		return nil, r.fail(actx, name, err)
	}

	actx.Results[name] = res
	delete(actx.Errors, name)
	logger.Debug("[Analysis] Stage completed", "stage", name, "origin", actx.Origin, "duration", time.Since(start))
	return res, nil
}

func (r *Runner) fail(actx *Context, name StageName, err error) error {
	stageErr := &StageError{Stage: name, Err: err}
	actx.Errors[name] = stageErr
	logger.Warn("[Analysis] Stage failed", "stage", name, "origin", actx.Origin, "err", err)
	return stageErr
}

func runProtected(ctx context.Context, stage Stage, actx *Context) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("[Analysis] Stage panicked", "stage", stage.Name(), "panic", p, "stack", string(debug.Stack()))
			res = nil
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return stage.Run(ctx, actx)
}
