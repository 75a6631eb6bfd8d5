package harness

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/otcore/internal/model"
)

// Outcomes recorded per step.
const (
	OutcomeCommitted = "committed"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeRejected  = "rejected"
)

// SeedClient is the author of the initial-document commit.
const SeedClient = "seed"

// TraceEvent is one submission and what the pipeline did with it.
type TraceEvent struct {
	Seq      int           `json:"seq"`
	Client   string        `json:"client"`
	Base     int64         `json:"base"`
	Outcome  string        `json:"outcome"`
	Revision int64         `json:"revision,omitempty"`
	Applied  model.Patches `json:"applied,omitempty"`
	Missed   model.Patches `json:"missed,omitempty"`
	Error    string        `json:"error,omitempty"` // submission error code
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Final is the object after the last step.
	Final model.Snapshot `json:"final"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

type goldenHeader struct {
	Scenario string `json:"scenario"`
	Object   string `json:"object"`
}

type goldenFinal struct {
	Revision int64           `json:"revision"`
	Value    json.RawMessage `json:"value"`
}

// Golden renders the trace as JSON lines: a header naming the scenario,
// one line per step and a final line with the canonical document.
func (r *Result) Golden(s *Scenario) ([]byte, error) {
	var buf bytes.Buffer
	write := func(v any) error {
		line, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
		return nil
	}

	if err := write(goldenHeader{Scenario: s.Name, Object: s.Object}); err != nil {
		return nil, err
	}
	for _, ev := range r.Trace {
		if err := write(ev); err != nil {
			return nil, fmt.Errorf("trace event %d: %w", ev.Seq, err)
		}
	}

	value := r.Final.Value
	if value == nil {
		value = model.EmptyDocument()
	}
	canonical, err := model.MarshalCanonical(value)
	if err != nil {
		return nil, fmt.Errorf("final value: %w", err)
	}
	if err := write(goldenFinal{Revision: r.Final.Revision, Value: canonical}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
