package ot

import (
	"fmt"
	"unicode/utf8"

	"github.com/roach88/otcore/internal/model"
)

// ApplyError reports the patch that could not be applied.
type ApplyError struct {
	Index  int
	Patch  model.Patch
	Reason string
}

func (e *ApplyError) Error() string {
	if e.Patch == nil {
		return fmt.Sprintf("patch %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("patch %d (%s %s): %s", e.Index, e.Patch.Kind(), e.Patch.Target(), e.Reason)
}

// Apply applies patches to doc in order and returns the resulting document.
// doc is not modified. The first failing patch aborts with *ApplyError.
func Apply(doc model.Object, patches []model.Patch) (model.Object, error) {
	if doc == nil {
		doc = model.EmptyDocument()
	}
	var cur model.Value = doc
	for i, p := range patches {
		if err := model.ValidatePatch(p); err != nil {
			return nil, &ApplyError{Index: i, Patch: p, Reason: err.Error()}
		}
		next, err := applyValue(cur, p)
		if err != nil {
			return nil, &ApplyError{Index: i, Patch: p, Reason: err.Error()}
		}
		cur = next
	}
	obj, ok := cur.(model.Object)
	if !ok {
		return nil, &ApplyError{Index: len(patches) - 1, Reason: "document root is no longer an object"}
	}
	return obj, nil
}

// applyValue applies one patch whose path is relative to root.
// Unlike Apply it accepts root-targeted list and text patches, which
// Compose needs when folding edits into a SetField value.
func applyValue(root model.Value, p model.Patch) (model.Value, error) {
	switch v := p.(type) {
	case model.SetField:
		return edit(root, v.Path, func(model.Value) (model.Value, bool, error) {
			return v.Value, false, nil
		})
	case model.DeleteField:
		return edit(root, v.Path, func(model.Value) (model.Value, bool, error) {
			return nil, true, nil
		})
	case model.InsertListItem:
		return edit(root, v.Path, func(cur model.Value) (model.Value, bool, error) {
			arr, err := asList(cur, true)
			if err != nil {
				return nil, false, err
			}
			if v.Index > len(arr) {
				return nil, false, fmt.Errorf("insert index %d out of range [0, %d]", v.Index, len(arr))
			}
			out := make(model.Array, 0, len(arr)+1)
			out = append(out, arr[:v.Index]...)
			out = append(out, v.Value)
			out = append(out, arr[v.Index:]...)
			return out, false, nil
		})
	case model.RemoveListItem:
		return edit(root, v.Path, func(cur model.Value) (model.Value, bool, error) {
			arr, err := asList(cur, false)
			if err != nil {
				return nil, false, err
			}
			if v.Index >= len(arr) {
				return nil, false, fmt.Errorf("remove index %d out of range [0, %d)", v.Index, len(arr))
			}
			out := make(model.Array, 0, len(arr)-1)
			out = append(out, arr[:v.Index]...)
			out = append(out, arr[v.Index+1:]...)
			return out, false, nil
		})
	case model.MoveListItem:
		return edit(root, v.Path, func(cur model.Value) (model.Value, bool, error) {
			arr, err := asList(cur, false)
			if err != nil {
				return nil, false, err
			}
			if v.From >= len(arr) || v.To >= len(arr) {
				return nil, false, fmt.Errorf("move %d -> %d out of range [0, %d)", v.From, v.To, len(arr))
			}
			item := arr[v.From]
			rest := make(model.Array, 0, len(arr))
			rest = append(rest, arr[:v.From]...)
			rest = append(rest, arr[v.From+1:]...)
			out := make(model.Array, 0, len(arr))
			out = append(out, rest[:v.To]...)
			out = append(out, item)
			out = append(out, rest[v.To:]...)
			return out, false, nil
		})
	case model.SpliceText:
		return edit(root, v.Path, func(cur model.Value) (model.Value, bool, error) {
			str, ok := cur.(model.String)
			if !ok {
				if cur == nil {
					return nil, false, fmt.Errorf("text field does not exist")
				}
				return nil, false, fmt.Errorf("splice target is %s, not a string", model.KindName(cur))
			}
			runes := []rune(string(str))
			if v.Index+v.DeleteCount > len(runes) {
				return nil, false, fmt.Errorf("splice range [%d, %d) exceeds length %d", v.Index, v.Index+v.DeleteCount, len(runes))
			}
			out := make([]rune, 0, len(runes)-v.DeleteCount+utf8.RuneCountInString(v.Text))
			out = append(out, runes[:v.Index]...)
			out = append(out, []rune(v.Text)...)
			out = append(out, runes[v.Index+v.DeleteCount:]...)
			return model.String(string(out)), false, nil
		})
	case nil:
		return nil, fmt.Errorf("nil patch")
	default:
		return nil, fmt.Errorf("unknown patch type %T", p)
	}
}

func asList(cur model.Value, allowMissing bool) (model.Array, error) {
	switch c := cur.(type) {
	case nil:
		if allowMissing {
			return model.Array{}, nil
		}
		return nil, fmt.Errorf("list does not exist")
	case model.Array:
		return c, nil
	default:
		return nil, fmt.Errorf("target is %s, not a list", model.KindName(cur))
	}
}

// editFunc receives the current value at the path (nil when the final
// segment is missing) and returns its replacement, or remove=true.
type editFunc func(cur model.Value) (next model.Value, remove bool, err error)

// edit rebuilds the spine from node down to path, copying each container
// it passes through. Only the last segment may be missing.
func edit(node model.Value, path model.Path, fn editFunc) (model.Value, error) {
	if path.IsRoot() {
		next, remove, err := fn(node)
		if err != nil {
			return nil, err
		}
		if remove {
			return nil, fmt.Errorf("cannot delete the document root")
		}
		return next, nil
	}

	seg, rest := path[0], path[1:]
	switch n := node.(type) {
	case model.Object:
		child, exists := n[seg]
		if !exists && !rest.IsRoot() {
			return nil, fmt.Errorf("field %q does not exist", seg)
		}
		if rest.IsRoot() {
			var cur model.Value
			if exists {
				cur = child
			}
			next, remove, err := fn(cur)
			if err != nil {
				return nil, err
			}
			if remove && !exists {
				return n, nil
			}
			out := n.Clone()
			if remove {
				delete(out, seg)
			} else {
				out[seg] = next
			}
			return out, nil
		}
		next, err := edit(child, rest, fn)
		if err != nil {
			return nil, err
		}
		out := n.Clone()
		out[seg] = next
		return out, nil

	case model.Array:
		idx, ok := model.Path{seg}.IndexAt(0)
		if !ok {
			return nil, fmt.Errorf("segment %q is not a list index", seg)
		}
		if idx >= len(n) {
			return nil, fmt.Errorf("list index %d out of range [0, %d)", idx, len(n))
		}
		var next model.Value
		if rest.IsRoot() {
			v, remove, err := fn(n[idx])
			if err != nil {
				return nil, err
			}
			if remove {
				return nil, fmt.Errorf("cannot delete list element %d, use remove", idx)
			}
			next = v
		} else {
			v, err := edit(n[idx], rest, fn)
			if err != nil {
				return nil, err
			}
			next = v
		}
		out := n.Clone()
		out[idx] = next
		return out, nil

	default:
		return nil, fmt.Errorf("cannot descend into %s at %q", model.KindName(node), seg)
	}
}
