package harness

import (
	"github.com/roach88/docsync/internal/ir"
)

// UpdateTrace is one store update a step sent, after positional
// substitution.
type UpdateTrace struct {
	Operator string      `json:"operator"`
	Selector string      `json:"selector"` // collection/id
	Fields   ir.IRObject `json:"fields"`   // path -> values
}

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int64         `json:"seq"`
	Op      string        `json:"op"`
	Target  string        `json:"target,omitempty"`
	Args    ir.IRObject   `json:"args,omitempty"`
	Outcome string        `json:"outcome"`
	Updates []UpdateTrace `json:"updates,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every step in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step to the trace.
func (r *Result) AddStep(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// canonical converts the event to an IR object for canonical JSON.
func (ev TraceEvent) canonical() ir.IRObject {
	out := ir.IRObject{
		"seq":     ir.IRInt(ev.Seq),
		"op":      ir.IRString(ev.Op),
		"outcome": ir.IRString(ev.Outcome),
	}
	if ev.Target != "" {
		out["target"] = ir.IRString(ev.Target)
	}
	if len(ev.Args) > 0 {
		out["args"] = ev.Args
	}
	if len(ev.Updates) > 0 {
		ups := make(ir.IRArray, len(ev.Updates))
		for i, u := range ev.Updates {
			ups[i] = ir.IRObject{
				"operator": ir.IRString(u.Operator),
				"selector": ir.IRString(u.Selector),
				"fields":   u.Fields,
			}
		}
		out["updates"] = ups
	}
	return out
}
