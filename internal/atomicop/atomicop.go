// Package atomicop applies array append and set-insert operations to a
// document node and its stored copy in one partial update.
//
// The in-memory node changes first, then a single $push or $addToSet update
// covering every field is sent. Callers see the new arrays immediately; the
// returned bool is the store acknowledgement.
package atomicop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/docsync/internal/document"
	"github.com/roach88/docsync/internal/fieldpath"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/path"
	"github.com/roach88/docsync/internal/schema"
	"github.com/roach88/docsync/internal/store"
)

// Op is an array operation.
type Op int

const (
	// Append adds every value, duplicates included ($push with $each).
	Append Op = iota
	// SetInsert adds only values not already present ($addToSet with $each).
	SetInsert
)

func (op Op) String() string {
	switch op {
	case Append:
		return "push"
	case SetInsert:
		return "add_to_set"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// Operator returns the store operator for op.
func (op Op) Operator() store.Operator {
	if op == SetInsert {
		return store.OpAddToSet
	}
	return store.OpPush
}

// FieldError is returned when a field cannot take an array operation.
type FieldError struct {
	Type    string
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Type, e.Field, e.Message)
}

// IsFieldError returns true if err is or wraps a *FieldError.
func IsFieldError(err error) bool {
	var e *FieldError
	return errors.As(err, &e)
}

// Delta is the predicted in-memory result of an operation on one field.
type Delta struct {
	Field string
	Next  ir.IRArray
}

// Plan is a validated operation: the update to send and the arrays the node
// will hold once it is applied.
type Plan struct {
	Address path.Address
	Update  store.Update
	Deltas  []Delta
}

// Builder runs array operations against a store.
type Builder struct {
	store  store.DocumentStore
	logger *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the builder's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// New returns a Builder writing to s.
func New(s store.DocumentStore, opts ...Option) *Builder {
	b := &Builder{store: s, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push appends values to array fields of node.
func (b *Builder) Push(ctx context.Context, node *document.Node, pairs ...ir.IRPair) (bool, error) {
	return b.Apply(ctx, node, Append, pairs)
}

// AddToSet inserts values not already present into array fields of node.
func (b *Builder) AddToSet(ctx context.Context, node *document.Node, pairs ...ir.IRPair) (bool, error) {
	return b.Apply(ctx, node, SetInsert, pairs)
}

// Apply validates the whole batch, mutates node, then sends one update.
// Nothing is mutated when validation fails. Acknowledged fields leave the
// dirty overlay; otherwise they stay dirty.
func (b *Builder) Apply(ctx context.Context, node *document.Node, op Op, pairs []ir.IRPair) (bool, error) {
	plan, err := Build(node, op, pairs)
	if err != nil {
		return false, err
	}

	fields := make([]string, len(plan.Deltas))
	for i, d := range plan.Deltas {
		if err := node.Set(d.Field, d.Next); err != nil {
			return false, fmt.Errorf("%s %s: %w", op, node, err)
		}
		fields[i] = d.Field
	}

	ok, err := b.store.UpdateDocument(ctx, plan.Address.Selector(), plan.Update)
	if err != nil {
		b.logger.Warn("array update failed",
			"op", op.String(), "address", plan.Address.String(), "error", err)
		return false, fmt.Errorf("%s %s: %w", op, node, err)
	}
	if ok {
		node.ClearChanges(fields...)
	}

	b.logger.Debug("array update",
		"op", op.String(),
		"address", plan.Address.String(),
		"paths", plan.Update.Paths(),
		"acknowledged", ok)
	return ok, nil
}

// Build validates an operation and computes its update and deltas without
// touching node or the store.
func Build(node *document.Node, op Op, pairs []ir.IRPair) (Plan, error) {
	if !node.Persisted() {
		return Plan{}, &document.NotPersistedError{Type: node.Type().Name}
	}
	if len(pairs) == 0 {
		return Plan{}, fmt.Errorf("%s %s: no fields given", op, node)
	}

	addr, err := path.Resolve(node)
	if err != nil {
		return Plan{}, err
	}

	// Repeated fields are folded into one entry so the store sees one
	// path per field.
	var order []string
	values := make(map[string][]ir.IRValue)
	for _, p := range pairs {
		if _, seen := values[p.Key]; !seen {
			if err := checkField(node, p.Key); err != nil {
				return Plan{}, err
			}
			order = append(order, p.Key)
		}
		values[p.Key] = append(values[p.Key], flatten(p.Value)...)
	}

	plan := Plan{Address: addr, Update: store.Update{Operator: op.Operator()}}
	for _, field := range order {
		cur, _ := node.Get(field)
		existing, _ := cur.(ir.IRArray)

		vals := values[field]
		var next ir.IRArray
		switch op {
		case Append:
			next = append(existing.Clone(), vals...)
		case SetInsert:
			next = existing.Clone()
			vals = dedupe(vals)
			for _, v := range vals {
				if !next.Contains(v) {
					next = append(next, v)
				}
			}
		default:
			return Plan{}, fmt.Errorf("unknown array operation %s", op)
		}
		if next == nil {
			next = ir.IRArray{}
		}

		plan.Deltas = append(plan.Deltas, Delta{Field: field, Next: next})
		plan.Update.Fields = append(plan.Update.Fields, store.FieldUpdate{
			Path:   addr.Placeholder().Append(fieldpath.Field(field)),
			Values: vals,
		})
	}

	plan.Update, err = path.Positionally(addr.Selector(), plan.Update)
	if err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// checkField rejects fields that are not array attributes of node's type,
// and fields whose current value is not an array.
func checkField(node *document.Node, field string) error {
	t := node.Type()
	s := node.Schema()
	fail := func(msg string) error {
		return &FieldError{Type: t.Name, Field: field, Message: msg}
	}

	if field == schema.IDField || field == schema.TypeField {
		return fail("reserved field")
	}
	if _, ok := s.Relation(t, field); ok {
		return fail("is a relation, not an attribute")
	}
	kind, declared := s.FieldKind(t, field)
	switch {
	case !declared && !s.Dynamic(t):
		return fail("undeclared field")
	case declared && kind != schema.KindArray && kind != schema.KindAny:
		return fail(fmt.Sprintf("declared %s, not an array", kind))
	}

	cur, ok := node.Get(field)
	if !ok {
		return nil
	}
	switch cur.(type) {
	case ir.IRArray, ir.IRNull:
		return nil
	default:
		return fail(fmt.Sprintf("current value is %s, not an array", schema.KindOf(cur)))
	}
}

// flatten expands an array value one level; any other value is itself.
func flatten(v ir.IRValue) []ir.IRValue {
	if arr, ok := v.(ir.IRArray); ok {
		return arr.Clone()
	}
	return []ir.IRValue{v}
}

func dedupe(vals []ir.IRValue) []ir.IRValue {
	var out ir.IRArray
	for _, v := range vals {
		if !out.Contains(v) {
			out = append(out, v)
		}
	}
	return out
}
