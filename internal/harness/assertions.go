package harness

import (
	"context"
	"encoding/json"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/store"
)

// checkExpect compares one step's trace event against its expect clause.
func checkExpect(i int, step Step, ev TraceEvent, result *Result) {
	e := step.Expect
	if e == nil {
		return
	}

	if e.Error != "" {
		if ev.Error != e.Error {
			result.AddError("steps[%d] (%s): expected error %s, got %s", i, step.Client, e.Error, outcomeText(ev))
		}
		return
	}
	if ev.Outcome == OutcomeRejected {
		result.AddError("steps[%d] (%s): unexpected error %s", i, step.Client, ev.Error)
		return
	}

	if e.Revision != nil && ev.Revision != *e.Revision {
		result.AddError("steps[%d] (%s): expected revision %d, got %d", i, step.Client, *e.Revision, ev.Revision)
	}
	if e.Duplicate != (ev.Outcome == OutcomeDuplicate) {
		result.AddError("steps[%d] (%s): expected duplicate=%t, got %s", i, step.Client, e.Duplicate, ev.Outcome)
	}
	if e.Skipped != (ev.Outcome == OutcomeSkipped) {
		result.AddError("steps[%d] (%s): expected skipped=%t, got %s", i, step.Client, e.Skipped, ev.Outcome)
	}
	if e.Applied != nil {
		want, _ := decodePatches(e.Applied)
		if !samePatches(want, ev.Applied) {
			result.AddError("steps[%d] (%s): applied patches differ: want %s, got %s",
				i, step.Client, patchText(want), patchText(ev.Applied))
		}
	}
}

func (h *Harness) checkAssertions(ctx context.Context, result *Result) {
	for i, a := range h.scenario.Assertions {
		switch a.Type {
		case AssertValue:
			want, err := model.FromGo(a.Value)
			if err != nil {
				result.AddError("assertions[%d]: %v", i, err)
				continue
			}
			if !model.Equal(want, result.Final.Value) {
				result.AddError("assertions[%d]: document differs: want %s, got %s",
					i, valueText(want), valueText(result.Final.Value))
			}

		case AssertField:
			want, err := model.FromGo(a.Value)
			if err != nil {
				result.AddError("assertions[%d]: %v", i, err)
				continue
			}
			got, ok := lookup(result.Final.Value, model.MustParsePath(a.Path))
			if !ok {
				result.AddError("assertions[%d]: field %s not found", i, a.Path)
				continue
			}
			if !model.Equal(want, got) {
				result.AddError("assertions[%d]: field %s: want %s, got %s", i, a.Path, valueText(want), valueText(got))
			}

		case AssertRevision:
			if result.Final.Revision != a.Revision {
				result.AddError("assertions[%d]: expected revision %d, got %d", i, a.Revision, result.Final.Revision)
			}

		case AssertReplay:
			if result.Final.Revision == 0 {
				continue
			}
			if _, err := store.Verify(ctx, h.store, h.id); err != nil {
				result.AddError("assertions[%d]: %v", i, err)
			}
		}
	}
}

// lookup follows path through nested objects.
func lookup(doc model.Object, path model.Path) (model.Value, bool) {
	var cur model.Value = doc
	for _, seg := range path {
		obj, ok := cur.(model.Object)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func samePatches(a, b model.Patches) bool {
	return patchText(a) == patchText(b)
}

func patchText(ps model.Patches) string {
	if ps == nil {
		ps = model.Patches{}
	}
	data, err := json.Marshal(ps)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return string(data)
}

func valueText(v model.Value) string {
	data, err := model.MarshalCanonical(v)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return string(data)
}

func outcomeText(ev TraceEvent) string {
	if ev.Error != "" {
		return ev.Error
	}
	return ev.Outcome
}
