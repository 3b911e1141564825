package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/docsync/internal/atomicop"
	"github.com/roach88/docsync/internal/document"
	"github.com/roach88/docsync/internal/fieldpath"
	"github.com/roach88/docsync/internal/idgen"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/kvstore"
	"github.com/roach88/docsync/internal/path"
	"github.com/roach88/docsync/internal/schema"
	"github.com/roach88/docsync/internal/session"
	"github.com/roach88/docsync/internal/store"
	"github.com/roach88/docsync/internal/testutil"
)

// Harness executes one scenario against a fresh session.
type Harness struct {
	store   *testutil.CountingStore
	session *session.Session
	handles map[string]*document.Node
	seq     int64
	logger  *slog.Logger
}

// Run executes a scenario and returns its result. Errors are reserved for
// scenarios that cannot run at all (bad schema, unknown handle); failed
// expectations and assertions are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	sch, err := loadSchema(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	backend, err := openBackend(scenario.Driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer backend.Close()

	counting := testutil.NewCountingStore(backend)
	h := &Harness{
		store:   counting,
		handles: make(map[string]*document.Node),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.session = session.New(counting, sch,
		session.WithIdentityMap(scenario.IdentityMap),
		session.WithIDGenerator(idgen.NewSequenceGenerator("id")),
		session.WithLogger(h.logger))

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	counting.Reset()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	for _, msg := range h.evaluate(ctx, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func loadSchema(p string) (*schema.Schema, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return schema.LoadDir(p)
	}
	src, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return schema.Compile(string(src))
}

func openBackend(driver string) (store.DocumentStore, error) {
	if driver == "badger" {
		return kvstore.InMemory()
	}
	return store.Open(":memory:")
}

func (h *Harness) executeSetup(ctx context.Context, setup []SetupDoc) error {
	for i, doc := range setup {
		raw, err := toIRObject(doc.Doc)
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		t, ok := h.session.Schema().Lookup(doc.Type)
		if !ok {
			return fmt.Errorf("setup[%d]: unknown type %q", i, doc.Type)
		}
		if _, ok := raw[schema.TypeField]; !ok {
			raw[schema.TypeField] = ir.IRString(doc.Type)
		}

		coll := h.session.Schema().Collection(t)
		if err := h.store.DocumentStore.InsertDocument(ctx, coll, raw); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		id := string(raw[schema.IDField].(ir.IRString))
		n, err := h.session.Find(ctx, doc.Type, id)
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		h.handles[id] = n

		h.logger.Debug("setup document stored", "collection", coll, "id", id)
	}
	return nil
}

// executeStep runs one step, records it and checks its expectation.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	args, err := toIRObject(step.Values)
	if err != nil {
		return err
	}

	var node *document.Node
	if step.Target != "" {
		if node, err = h.target(step.Target); err != nil {
			return err
		}
	}

	before := len(h.store.Updates())
	h.seq++
	ev := TraceEvent{Seq: h.seq, Op: step.Op, Target: step.Target, Args: args}

	var (
		ack     *bool
		address string
		same    *bool
		opErr   error
	)
	acked := func(ok bool, err error) {
		if err == nil {
			ack = &ok
		}
		opErr = err
	}

	switch step.Op {
	case OpCreate:
		var n *document.Node
		if n, opErr = h.session.Create(ctx, step.Type, args); opErr == nil {
			h.bind(step.As, n)
			ev.Args = withType(args, step.Type)
		}

	case OpEmbed:
		child, err := h.session.Build(step.Type, args)
		if err != nil {
			opErr = err
			break
		}
		acked(h.session.Embed(ctx, node, step.Relation, child))
		if opErr == nil {
			h.bind(step.As, child)
		}
		ev.Args = withType(args, step.Type)

	case OpSet:
		for _, k := range args.SortedKeys() {
			if opErr = node.Set(k, args[k]); opErr != nil {
				break
			}
		}

	case OpSave:
		acked(h.session.Save(ctx, node))

	case OpBecomes:
		opErr = h.session.Becomes(node, step.Type)
		ev.Args = ir.IRObject{schema.TypeField: ir.IRString(step.Type)}

	case OpDelete:
		acked(h.session.Delete(ctx, node))

	case OpPush, OpAddToSet:
		pairs := make([]ir.IRPair, 0, len(args))
		for _, k := range args.SortedKeys() {
			pairs = append(pairs, ir.O(k, args[k]))
		}
		if step.Op == OpPush {
			acked(h.session.Push(ctx, node, pairs...))
		} else {
			acked(h.session.AddToSet(ctx, node, pairs...))
		}

	case OpReload:
		got, err := h.session.Reload(ctx, node)
		if opErr = err; err == nil {
			s := got == node
			same = &s
		}

	case OpResolve:
		addr, err := h.session.ResolvePath(node)
		if opErr = err; err == nil {
			address = addr.String()
			ev.Args = ir.IRObject{"address": ir.IRString(address)}
		}

	case OpOverwrite:
		doc, err := toIRObject(step.Doc)
		if err != nil {
			return err
		}
		opErr = h.overwrite(ctx, node.Root(), doc)
		ev.Args = doc

	case OpExternalDelete:
		root := node.Root()
		opErr = h.store.DocumentStore.DeleteDocument(ctx, root.Collection(), root.ID())

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	ev.Outcome = outcome(ack, opErr)
	for _, u := range h.store.Updates()[before:] {
		ev.Updates = append(ev.Updates, traceUpdate(u))
	}
	result.AddStep(ev)

	h.check(i, step, ack, same, address, opErr, result)

	h.logger.Debug("step executed", "step", i, "op", step.Op, "target", step.Target, "outcome", ev.Outcome)
	return nil
}

// overwrite replaces the stored root without going through the session.
func (h *Harness) overwrite(ctx context.Context, root *document.Node, doc ir.IRObject) error {
	doc[schema.IDField] = ir.IRString(root.ID())
	if _, ok := doc[schema.TypeField]; !ok {
		doc[schema.TypeField] = ir.IRString(root.Type().Name)
	}
	inner := h.store.DocumentStore
	if err := inner.DeleteDocument(ctx, root.Collection(), root.ID()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return inner.InsertDocument(ctx, root.Collection(), doc)
}

func (h *Harness) bind(as string, n *document.Node) {
	if as == "" {
		as = n.ID()
	}
	h.handles[as] = n
}

func (h *Harness) check(i int, step Step, ack, same *bool, address string, err error, result *Result) {
	exp := step.Expect
	if exp == nil {
		exp = &StepExpect{}
	}
	where := fmt.Sprintf("step %d (%s %s)", i, step.Op, step.Target)

	switch {
	case err != nil && exp.Error == "":
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", where, err))
		return
	case err != nil && ErrorKind(err) != exp.Error:
		result.AddError(fmt.Sprintf("%s: expected error %s, got %s: %v", where, exp.Error, ErrorKind(err), err))
		return
	case err == nil && exp.Error != "":
		result.AddError(fmt.Sprintf("%s: expected error %s, got success", where, exp.Error))
		return
	}

	if exp.Ack != nil && (ack == nil || *ack != *exp.Ack) {
		result.AddError(fmt.Sprintf("%s: expected ack=%t, got %s", where, *exp.Ack, outcome(ack, err)))
	}
	if exp.Same != nil && (same == nil || *same != *exp.Same) {
		result.AddError(fmt.Sprintf("%s: expected same instance=%t", where, *exp.Same))
	}
	if exp.Address != "" && address != exp.Address {
		result.AddError(fmt.Sprintf("%s: expected address %s, got %s", where, exp.Address, address))
	}
}

// target resolves "handle" or "handle#embedded.path" to a live node.
func (h *Harness) target(ref string) (*document.Node, error) {
	handle, rest, _ := strings.Cut(ref, "#")
	n, ok := h.handles[handle]
	if !ok {
		return nil, fmt.Errorf("unknown handle %q", handle)
	}
	if rest == "" {
		return n, nil
	}
	p, err := fieldpath.Parse(rest)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", ref, err)
	}

	n, err = path.Walk(n, p)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", ref, err)
	}
	return n, nil
}

// ErrorKind names the category of a domain error for scenario
// expectations.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case document.IsDocumentNotFound(err):
		return "document_not_found"
	case document.IsIndexNotFound(err):
		return "index_not_found"
	case document.IsNotPersisted(err):
		return "not_persisted"
	case atomicop.IsFieldError(err):
		return "invalid_field"
	case schema.IsFieldError(err):
		return "invalid_value"
	case path.IsPositionError(err), store.IsPathError(err):
		return "invalid_path"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func outcome(ack *bool, err error) string {
	switch {
	case err != nil:
		return "error:" + ErrorKind(err)
	case ack == nil:
		return "ok"
	case *ack:
		return "ack"
	default:
		return "nack"
	}
}

func traceUpdate(u testutil.RecordedUpdate) UpdateTrace {
	fields := make(ir.IRObject, len(u.Update.Fields))
	for _, f := range u.Update.Fields {
		vals := make(ir.IRArray, len(f.Values))
		copy(vals, f.Values)
		fields[f.Path.String()] = vals
	}
	return UpdateTrace{
		Operator: string(u.Update.Operator),
		Selector: u.Selector.Collection + "/" + u.Selector.ID,
		Fields:   fields,
	}
}

func withType(args ir.IRObject, typeName string) ir.IRObject {
	out := args.Clone()
	if out == nil {
		out = ir.IRObject{}
	}
	out[schema.TypeField] = ir.IRString(typeName)
	return out
}

// toIRObject converts YAML-decoded values to IR. Floats with a fractional
// part are rejected.
func toIRObject(m map[string]any) (ir.IRObject, error) {
	if m == nil {
		return ir.IRObject{}, nil
	}
	out := make(ir.IRObject, len(m))
	for k, v := range m {
		iv, err := ir.FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = iv
	}
	return out, nil
}
