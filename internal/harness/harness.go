package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/pipeline"
	"github.com/roach88/otcore/internal/schema"
	"github.com/roach88/otcore/internal/store"
	"github.com/roach88/otcore/internal/testutil"
)

// Option configures a Run.
type Option func(*runConfig)

type runConfig struct {
	store  store.Adapter
	logger *zap.Logger
}

// WithStore runs the scenario against s instead of a fresh memory store.
// The object must not exist in s yet.
func WithStore(s store.Adapter) Option {
	return func(c *runConfig) { c.store = s }
}

// WithLogger sets the pipeline logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Harness executes one scenario.
type Harness struct {
	scenario *Scenario
	id       model.ObjectID
	store    store.Adapter
	pipeline *pipeline.Pipeline
	seq      int
}

// Run executes the scenario and evaluates its expectations.
//
// Each run uses deterministic request ids and a step clock, so traces
// are byte-identical across runs. A returned error means the scenario
// could not be executed at all; failed expectations are reported in
// Result.Errors.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.store == nil {
		cfg.store = store.NewMemoryStore()
	}

	id, err := model.ParseObjectID(s.Object)
	if err != nil {
		return nil, fmt.Errorf("object: %w", err)
	}

	popts := []pipeline.Option{
		pipeline.WithIDGenerator(testutil.NewSequenceIDs("req")),
		pipeline.WithClock(testutil.NewStepClock(time.Time{}, 0).Now),
		pipeline.WithStorageBackoff(time.Millisecond, time.Millisecond),
		pipeline.WithLogger(cfg.logger),
	}
	if s.Schemas {
		reg, err := schema.New()
		if err != nil {
			return nil, fmt.Errorf("load schemas: %w", err)
		}
		popts = append(popts, pipeline.WithSchema(reg))
	}

	h := &Harness{
		scenario: s,
		id:       id,
		store:    cfg.store,
		pipeline: pipeline.New(cfg.store, popts...),
	}

	result := NewResult()
	if err := h.seed(ctx, result); err != nil {
		return nil, err
	}
	for i, step := range s.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, err
		}
	}

	final, err := cfg.store.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		final = model.Snapshot{ObjectID: id, Value: model.EmptyDocument()}
	case err != nil:
		return nil, fmt.Errorf("read final state: %w", err)
	}
	result.Final = final

	h.checkAssertions(ctx, result)
	return result, nil
}

// seed commits the initial document as revision 1.
func (h *Harness) seed(ctx context.Context, result *Result) error {
	if h.scenario.Initial == nil {
		return nil
	}
	keys := make([]string, 0, len(h.scenario.Initial))
	for k := range h.scenario.Initial {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	patches := make([]model.Patch, 0, len(keys))
	for _, k := range keys {
		v, err := model.FromGo(h.scenario.Initial[k])
		if err != nil {
			return fmt.Errorf("initial.%s: %w", k, err)
		}
		patches = append(patches, model.SetField{Path: model.Path{k}, Value: v})
	}

	ev, err := h.submit(ctx, SeedClient, 0, patches)
	if err != nil {
		return err
	}
	if ev.Outcome != OutcomeCommitted {
		return fmt.Errorf("seed commit %s: %s", ev.Outcome, ev.Error)
	}
	result.Trace = append(result.Trace, ev)
	return nil
}

func (h *Harness) runStep(ctx context.Context, i int, step Step, result *Result) error {
	patches, err := decodePatches(step.Patches)
	if err != nil {
		return fmt.Errorf("steps[%d]: %w", i, err)
	}
	ev, err := h.submit(ctx, step.Client, step.Base, patches)
	if err != nil {
		return fmt.Errorf("steps[%d]: %w", i, err)
	}
	result.Trace = append(result.Trace, ev)
	checkExpect(i, step, ev, result)
	return nil
}

// submit runs one submission and converts its outcome into a trace
// event. Only errors outside the submission contract are returned.
func (h *Harness) submit(ctx context.Context, client string, base int64, patches []model.Patch) (TraceEvent, error) {
	h.seq++
	ev := TraceEvent{Seq: h.seq, Client: client, Base: base}

	res, err := h.pipeline.Submit(ctx, pipeline.Submission{
		ObjectID:     h.id,
		BaseRevision: base,
		Patches:      patches,
		Author:       client,
	})
	if err != nil {
		code := pipeline.CodeOf(err)
		if code == "" {
			return ev, err
		}
		ev.Outcome = OutcomeRejected
		ev.Error = string(code)
		return ev, nil
	}

	ev.Revision = res.Revision
	ev.Applied = res.Applied
	ev.Missed = res.Missed
	switch {
	case res.Duplicate:
		ev.Outcome = OutcomeDuplicate
	case res.Skipped:
		ev.Outcome = OutcomeSkipped
	default:
		ev.Outcome = OutcomeCommitted
	}
	return ev, nil
}
