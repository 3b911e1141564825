package store

import (
	"github.com/roach88/docsync/internal/fieldpath"
	"github.com/roach88/docsync/internal/ir"
)

// Apply returns a copy of doc with upd applied. doc is never modified.
//
// Paths must be fully resolved: a positional placeholder is a *PathError.
// Missing intermediate objects are created for $set, $push and $addToSet;
// missing array positions are an error. $unset and $pull of a missing path
// are no-ops.
func Apply(doc ir.IRObject, upd Update) (ir.IRObject, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	out := doc.Clone()
	if out == nil {
		out = make(ir.IRObject)
	}
	for _, f := range upd.Fields {
		leaf := leafFor(upd.Operator, f)
		create := upd.Operator != OpUnset && upd.Operator != OpPull
		next, err := updateIn(out, f.Path, f.Path, create, leaf)
		if err != nil {
			return nil, err
		}
		out = next.(ir.IRObject)
	}
	return out, nil
}

// leafFunc computes the new value at the end of a path. keep=false removes it.
type leafFunc func(cur ir.IRValue, present bool) (next ir.IRValue, keep bool, err error)

func leafFor(op Operator, f FieldUpdate) leafFunc {
	switch op {
	case OpPush:
		return func(cur ir.IRValue, present bool) (ir.IRValue, bool, error) {
			arr, err := arrayAt(f.Path, cur, present)
			if err != nil {
				return nil, false, err
			}
			for _, v := range f.Values {
				arr = append(arr, ir.Clone(v))
			}
			return arr, true, nil
		}
	case OpAddToSet:
		return func(cur ir.IRValue, present bool) (ir.IRValue, bool, error) {
			arr, err := arrayAt(f.Path, cur, present)
			if err != nil {
				return nil, false, err
			}
			for _, v := range f.Values {
				if !arr.Contains(v) {
					arr = append(arr, ir.Clone(v))
				}
			}
			return arr, true, nil
		}
	case OpSet:
		return func(ir.IRValue, bool) (ir.IRValue, bool, error) {
			return ir.Clone(f.Values[0]), true, nil
		}
	case OpPull:
		return func(cur ir.IRValue, present bool) (ir.IRValue, bool, error) {
			if !present {
				return nil, false, nil
			}
			arr, err := arrayAt(f.Path, cur, present)
			if err != nil {
				return nil, false, err
			}
			kept := make(ir.IRArray, 0, len(arr))
			for _, v := range arr {
				if !pullMatches(v, f.Values[0]) {
					kept = append(kept, v)
				}
			}
			return kept, true, nil
		}
	default:
		return func(ir.IRValue, bool) (ir.IRValue, bool, error) {
			return nil, false, nil
		}
	}
}

// pullMatches reports whether elem is removed by a $pull of cond.
func pullMatches(elem, cond ir.IRValue) bool {
	c, ok := cond.(ir.IRObject)
	if !ok {
		return ir.Equal(elem, cond)
	}
	obj, ok := elem.(ir.IRObject)
	if !ok {
		return false
	}
	for k, want := range c {
		got, ok := obj[k]
		if !ok || !ir.Equal(got, want) {
			return false
		}
	}
	return true
}

func arrayAt(p fieldpath.Path, cur ir.IRValue, present bool) (ir.IRArray, error) {
	if !present {
		return ir.IRArray{}, nil
	}
	switch v := cur.(type) {
	case ir.IRArray:
		return v, nil
	case ir.IRNull:
		return ir.IRArray{}, nil
	default:
		return nil, &PathError{Path: p, Message: "value is not an array"}
	}
}

// updateIn walks p inside container and returns the updated container.
// Objects are modified in place; arrays may be reallocated by the leaf and
// are written back by the caller.
func updateIn(container ir.IRValue, p, full fieldpath.Path, create bool, leaf leafFunc) (ir.IRValue, error) {
	seg := p[0]
	switch seg.Kind {
	case fieldpath.KindField:
		obj, ok := container.(ir.IRObject)
		if !ok {
			return nil, &PathError{Path: full, Message: "cannot traverse field " + seg.Field + " of a non-object"}
		}
		cur, present := obj[seg.Field]
		if len(p) == 1 {
			next, keep, err := leaf(cur, present)
			if err != nil {
				return nil, err
			}
			if keep {
				obj[seg.Field] = next
			} else {
				delete(obj, seg.Field)
			}
			return obj, nil
		}

		if _, isNull := cur.(ir.IRNull); !present || isNull {
			if !create {
				return obj, nil
			}
			if p[1].Kind != fieldpath.KindField {
				return nil, &PathError{Path: full, Message: "array " + seg.Field + " does not exist"}
			}
			cur = make(ir.IRObject)
		}
		next, err := updateIn(cur, p[1:], full, create, leaf)
		if err != nil {
			return nil, err
		}
		obj[seg.Field] = next
		return obj, nil

	case fieldpath.KindIndex:
		arr, ok := container.(ir.IRArray)
		if !ok {
			return nil, &PathError{Path: full, Message: "cannot index a non-array"}
		}
		if seg.Index < 0 || seg.Index >= len(arr) {
			if !create {
				return arr, nil
			}
			return nil, &PathError{Path: full, Message: "index out of range"}
		}
		if len(p) == 1 {
			next, keep, err := leaf(arr[seg.Index], true)
			if err != nil {
				return nil, err
			}
			if !keep {
				next = ir.IRNull{}
			}
			arr[seg.Index] = next
			return arr, nil
		}
		next, err := updateIn(arr[seg.Index], p[1:], full, create, leaf)
		if err != nil {
			return nil, err
		}
		arr[seg.Index] = next
		return arr, nil

	default:
		return nil, &PathError{Path: full, Message: "unresolved positional placeholder"}
	}
}
