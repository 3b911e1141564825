package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/docsync/internal/fieldpath"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Target   string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Target != "" {
		fmt.Fprintf(&buf, " %s", e.Target)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertStored:
			err = h.assertStored(ctx, a)
		case AssertNotStored:
			err = h.assertNotStored(ctx, a)
		case AssertNode:
			err = h.assertNode(a)
		case AssertClean:
			err = h.assertClean(a)
		case AssertEmbeddedCount:
			err = h.assertEmbeddedCount(a)
		case AssertStoreCalls:
			err = h.assertStoreCalls(a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

// assertStored matches the stored document at the target against Expect.
// The store is read directly, bypassing call counting.
func (h *Harness) assertStored(ctx context.Context, a Assertion) error {
	node, err := h.target(handleOf(a.Target))
	if err != nil {
		return err
	}
	root := node.Root()
	raw, err := h.store.DocumentStore.FindDocument(ctx, root.Collection(), root.ID())
	if err != nil {
		return &AssertionError{Type: a.Type, Target: a.Target, Expected: "stored document", Actual: err.Error()}
	}

	_, rest, _ := strings.Cut(a.Target, "#")
	var doc ir.IRObject = raw
	if rest != "" {
		p, err := fieldpath.Parse(rest)
		if err != nil {
			return err
		}
		if doc, err = walkRaw(raw, p); err != nil {
			return &AssertionError{Type: a.Type, Target: a.Target, Expected: "stored embedded document", Actual: err.Error()}
		}
	}
	return matchSubset(a, doc)
}

func (h *Harness) assertNotStored(ctx context.Context, a Assertion) error {
	node, err := h.target(a.Target)
	if err != nil {
		return err
	}
	root := node.Root()
	_, err = h.store.DocumentStore.FindDocument(ctx, root.Collection(), root.ID())
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return &AssertionError{Type: a.Type, Target: a.Target, Expected: "no stored document", Actual: "document present"}
}

func (h *Harness) assertNode(a Assertion) error {
	node, err := h.target(a.Target)
	if err != nil {
		return err
	}
	return matchSubset(a, node.Raw())
}

func (h *Harness) assertClean(a Assertion) error {
	node, err := h.target(a.Target)
	if err != nil {
		return err
	}
	if changed := node.Changed(); len(changed) > 0 {
		return &AssertionError{Type: a.Type, Target: a.Target, Expected: "no dirty fields", Actual: fmt.Sprintf("dirty: %v", changed)}
	}
	return nil
}

func (h *Harness) assertEmbeddedCount(a Assertion) error {
	node, err := h.target(a.Target)
	if err != nil {
		return err
	}
	n := len(node.Embedded(a.Relation))
	if one := node.EmbeddedOne(a.Relation); one != nil {
		n = 1
	}
	if n != a.Count {
		return &AssertionError{
			Type: a.Type, Target: a.Target,
			Expected: fmt.Sprintf("%d children in %s", a.Count, a.Relation),
			Actual:   fmt.Sprintf("%d children", n),
		}
	}
	return nil
}

func (h *Harness) assertStoreCalls(a Assertion) error {
	got := h.store.Calls(a.Call)
	if a.Call == "total" {
		got = h.store.Total()
	}
	if got != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d calls to %s", a.Count, a.Call),
			Actual:   fmt.Sprintf("%d calls", got),
		}
	}
	return nil
}

// matchSubset checks every expected key against actual. An expected null
// also matches an absent key.
func matchSubset(a Assertion, actual ir.IRObject) error {
	expected, err := toIRObject(a.Expect)
	if err != nil {
		return err
	}
	for _, k := range expected.SortedKeys() {
		want := expected[k]
		got, ok := actual[k]
		if !ok {
			if _, isNull := want.(ir.IRNull); isNull {
				continue
			}
			return &AssertionError{Type: a.Type, Target: a.Target, Expected: fmt.Sprintf("field %q = %s", k, render(want)), Actual: "field absent"}
		}
		if !ir.Equal(want, got) {
			return &AssertionError{Type: a.Type, Target: a.Target, Expected: fmt.Sprintf("field %q = %s", k, render(want)), Actual: fmt.Sprintf("field %q = %s", k, render(got))}
		}
	}
	return nil
}

// walkRaw follows a concrete path through a stored document to an
// embedded object.
func walkRaw(doc ir.IRObject, p fieldpath.Path) (ir.IRObject, error) {
	var cur ir.IRValue = doc
	for _, seg := range p {
		switch seg.Kind {
		case fieldpath.KindField:
			obj, ok := cur.(ir.IRObject)
			if !ok {
				return nil, fmt.Errorf("%s: parent is not an object", seg)
			}
			if cur, ok = obj[seg.Field]; !ok {
				return nil, fmt.Errorf("%s: field absent", seg)
			}
		case fieldpath.KindIndex:
			arr, ok := cur.(ir.IRArray)
			if !ok || seg.Index >= len(arr) {
				return nil, fmt.Errorf("%s: index out of range", seg)
			}
			cur = arr[seg.Index]
		default:
			return nil, fmt.Errorf("unresolved placeholder in %s", p)
		}
	}
	obj, ok := cur.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("%s is not an embedded document", p)
	}
	return obj, nil
}

func handleOf(ref string) string {
	h, _, _ := strings.Cut(ref, "#")
	return h
}

func render(v ir.IRValue) string {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
