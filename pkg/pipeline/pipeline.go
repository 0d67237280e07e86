// Package pipeline runs the document analysis state machine: analysis
// stages in a fixed order, then profiling, inference and persistence of the
// results in the knowledge graph.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/polisight/backend/pkg/analysis"
	"github.com/polisight/backend/pkg/graphstore"
	"github.com/polisight/backend/pkg/logger"
	"github.com/polisight/backend/pkg/source"

	"golang.org/x/sync/errgroup"
)

// State is a step of the document state machine.
type State string

const (
	Queued    State = "queued"
	Analyzing State = "analyzing"
	Profiling State = "profiling"
	Inferring State = "inferring"
	Persisted State = "persisted"
	Failed    State = "failed"
)

// Transition is reported to the Observer on every state change. Err is set
// when the document moves to Failed.
type Transition struct {
	DocumentID string
	From       State
	To         State
	Err        error
}

// Observer receives state transitions. It is called from the goroutine
// processing the document and must be safe for concurrent use when
// documents are processed in batches.
type Observer func(Transition)

// Result is the outcome of processing one document.
//
// Context holds the analysis context of the run. It is nil when the run was
// cancelled, and kept for diagnostics when persistence failed.
type Result struct {
	DocumentID        string                        `json:"document_id"`
	Status            State                         `json:"status"`
	EntityCount       int                           `json:"entity_count"`
	RelationshipCount int                           `json:"relationship_count"`
	StageErrors       map[analysis.StageName]string `json:"stage_errors,omitempty"`
	Error             string                        `json:"error,omitempty"`
	Context           *analysis.Context             `json:"-"`
}

// Pipeline processes documents. It is safe for concurrent use.
//
// A Pipeline should be created using New.
type Pipeline struct {
	runner   *analysis.Runner
	store    graphstore.Store
	workers  int
	observer Observer
	locks    entityLocks
}

// NewParams defines the configuration for creating a Pipeline.
//
// Workers bounds the number of documents processed concurrently by
// ProcessDocuments and defaults to GOMAXPROCS.
type NewParams struct {
	Runner   *analysis.Runner
	Store    graphstore.Store
	Workers  int
	Observer Observer
}

// New creates a Pipeline. The runner's catalogue must hold every document
// stage, politician-profiling and relationship-inference.
//
// Example:
//
//	p, err := pipeline.New(pipeline.NewParams{Runner: runner, Store: client})
//	if err != nil {
//		log.Fatal(err)
//	}
//	res, err := p.ProcessDocument(ctx, source.Document{ID: "doc1", Text: text})
func New(params NewParams) (*Pipeline, error) {
	if params.Runner == nil || params.Store == nil {
		return nil, fmt.Errorf("runner and store are required")
	}
	required := append(append([]analysis.StageName{}, analysis.DocumentStages...),
		analysis.PoliticianProfiling, analysis.RelationshipInference)
	for _, name := range required {
		if _, ok := params.Runner.Catalogue().Get(name); !ok {
			return nil, fmt.Errorf("stage %q is not registered", name)
		}
	}

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{
		runner:   params.Runner,
		store:    params.Store,
		workers:  workers,
		observer: params.Observer,
	}, nil
}

// run tracks the state of one document.
type run struct {
	p     *Pipeline
	doc   source.Document
	actx  *analysis.Context
	state State
}

func (r *run) enter(next State, err error) {
	prev := r.state
	r.state = next
	if r.p.observer != nil {
		r.p.observer(Transition{DocumentID: r.doc.ID, From: prev, To: next, Err: err})
	}
}

// ProcessDocument runs the state machine for doc. Stage failures are
// recorded in the result and do not stop the run. A returned error means
// the document ended in Failed: the context was cancelled or the graph
// could not be written.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc source.Document) (Result, error) {
	start := time.Now()
	r := &run{p: p, doc: doc, actx: analysis.NewContext(doc.ID, doc.Text), state: Queued}
	res := Result{DocumentID: doc.ID, Status: Queued}

	if doc.ID == "" {
		return r.fail(res, fmt.Errorf("document id is required"))
	}

	r.enter(Analyzing, nil)
	for _, name := range analysis.DocumentStages {
		if err := r.runStage(ctx, name); err != nil {
			return r.fail(res, err)
		}
	}
	counts, err := r.persistExtraction(ctx)
	if err != nil {
		return r.fail(res, err)
	}
	res.EntityCount, res.RelationshipCount = counts.entities, counts.relationships

	r.enter(Profiling, nil)
	if err := r.runStage(ctx, analysis.PoliticianProfiling); err != nil {
		return r.fail(res, err)
	}

	r.enter(Inferring, nil)
	if err := r.runStage(ctx, analysis.RelationshipInference); err != nil {
		return r.fail(res, err)
	}
	if err := r.persistDocument(ctx, counts); err != nil {
		return r.fail(res, err)
	}

	r.enter(Persisted, nil)
	res.Status = Persisted
	res.StageErrors = stageErrors(r.actx)
	res.Context = r.actx
	logger.Info("[Pipeline] Document persisted",
		"document_id", doc.ID,
		"entities", res.EntityCount,
		"relationships", res.RelationshipCount,
		"failed_stages", len(res.StageErrors),
		"duration", time.Since(start),
	)
	return res, nil
}

// runStage runs a stage between cancellation checks. Stage failures are
// recorded by the runner; only cancellation and a graph outage during
// inference are fatal.
func (r *run) runStage(ctx context.Context, name analysis.StageName) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.p.runner.RunStage(ctx, name, r.actx)
	if err == nil {
		return nil
	}
	var stageErr *analysis.StageError
	if !errors.As(err, &stageErr) {
		return err
	}
	if name == analysis.RelationshipInference && errors.Is(err, graphstore.ErrBackendUnavailable) {
		return err
	}
	return nil
}

func (r *run) fail(res Result, err error) (Result, error) {
	r.enter(Failed, err)
	res.Status = Failed
	res.Error = err.Error()
	res.StageErrors = stageErrors(r.actx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		res.Context = nil
	} else {
		res.Context = r.actx
	}
	logger.Error("[Pipeline] Document failed", "document_id", r.doc.ID, "err", err)
	return res, fmt.Errorf("document %s: %w", r.doc.ID, err)
}

func stageErrors(actx *analysis.Context) map[analysis.StageName]string {
	if len(actx.Errors) == 0 {
		return nil
	}
	out := make(map[analysis.StageName]string, len(actx.Errors))
	for name, err := range actx.Errors {
		out[name] = err.Error()
	}
	return out
}

// ProcessDocuments processes docs with bounded parallelism. Documents are
// independent: one failing does not stop the others. Results are returned
// in the order of docs together with the joined errors of failed documents.
func (p *Pipeline) ProcessDocuments(ctx context.Context, docs []source.Document) ([]Result, error) {
	results := make([]Result, len(docs))
	errs := make([]error, len(docs))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, doc := range docs {
		g.Go(func() error {
			results[i], errs[i] = p.ProcessDocument(ctx, doc)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
