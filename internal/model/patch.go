package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// PatchKind identifies a Patch variant.
type PatchKind int

const (
	KindSetField PatchKind = iota + 1
	KindDeleteField
	KindInsertListItem
	KindRemoveListItem
	KindMoveListItem
	KindSpliceText
)

// AllKinds lists every PatchKind. The transform rule table is checked against it.
var AllKinds = []PatchKind{
	KindSetField,
	KindDeleteField,
	KindInsertListItem,
	KindRemoveListItem,
	KindMoveListItem,
	KindSpliceText,
}

// Wire names for each kind.
const (
	OpSet    = "set"
	OpDelete = "delete"
	OpInsert = "insert"
	OpRemove = "remove"
	OpMove   = "move"
	OpSplice = "splice"
)

func (k PatchKind) String() string {
	switch k {
	case KindSetField:
		return "SetField"
	case KindDeleteField:
		return "DeleteField"
	case KindInsertListItem:
		return "InsertListItem"
	case KindRemoveListItem:
		return "RemoveListItem"
	case KindMoveListItem:
		return "MoveListItem"
	case KindSpliceText:
		return "SpliceText"
	}
	return fmt.Sprintf("PatchKind(%d)", int(k))
}

// Patch is one atomic edit against a document path.
// The set of implementations is closed: see AllKinds.
type Patch interface {
	Kind() PatchKind
	// Target is the path the patch addresses. For list and text patches
	// it is the path of the list or string being edited.
	Target() Path
	// WithTarget returns a copy of the patch addressing p instead.
	WithTarget(p Path) Patch
	isPatch()
}

// SetField creates or replaces the value at Path.
type SetField struct {
	Path  Path
	Value Value
}

// DeleteField removes the object key at Path. Deleting a missing key is a no-op.
type DeleteField struct {
	Path Path
}

// InsertListItem inserts Value before the element at Index.
// Index == len inserts at the end.
type InsertListItem struct {
	Path  Path
	Index int
	Value Value
}

// RemoveListItem removes the element at Index.
type RemoveListItem struct {
	Path  Path
	Index int
}

// MoveListItem removes the element at From and reinserts it at To,
// where To is an index into the list with the element removed.
type MoveListItem struct {
	Path Path
	From int
	To   int
}

// SpliceText deletes DeleteCount code points at Index and inserts Text there.
type SpliceText struct {
	Path        Path
	Index       int
	DeleteCount int
	Text        string
}

func (SetField) Kind() PatchKind       { return KindSetField }
func (DeleteField) Kind() PatchKind    { return KindDeleteField }
func (InsertListItem) Kind() PatchKind { return KindInsertListItem }
func (RemoveListItem) Kind() PatchKind { return KindRemoveListItem }
func (MoveListItem) Kind() PatchKind   { return KindMoveListItem }
func (SpliceText) Kind() PatchKind     { return KindSpliceText }

func (p SetField) Target() Path       { return p.Path }
func (p DeleteField) Target() Path    { return p.Path }
func (p InsertListItem) Target() Path { return p.Path }
func (p RemoveListItem) Target() Path { return p.Path }
func (p MoveListItem) Target() Path   { return p.Path }
func (p SpliceText) Target() Path     { return p.Path }

func (p SetField) WithTarget(t Path) Patch       { p.Path = t; return p }
func (p DeleteField) WithTarget(t Path) Patch    { p.Path = t; return p }
func (p InsertListItem) WithTarget(t Path) Patch { p.Path = t; return p }
func (p RemoveListItem) WithTarget(t Path) Patch { p.Path = t; return p }
func (p MoveListItem) WithTarget(t Path) Patch   { p.Path = t; return p }
func (p SpliceText) WithTarget(t Path) Patch     { p.Path = t; return p }

func (SetField) isPatch()       {}
func (DeleteField) isPatch()    {}
func (InsertListItem) isPatch() {}
func (RemoveListItem) isPatch() {}
func (MoveListItem) isPatch()   {}
func (SpliceText) isPatch()     {}

// IsWrite reports whether k replaces or removes a whole node.
func (k PatchKind) IsWrite() bool {
	return k == KindSetField || k == KindDeleteField
}

// IsList reports whether k edits the structure of a list.
func (k PatchKind) IsList() bool {
	return k == KindInsertListItem || k == KindRemoveListItem || k == KindMoveListItem
}

// ErrInvalidPatch is wrapped by every structural validation failure.
var ErrInvalidPatch = errors.New("invalid patch")

// ValidatePatch checks a patch for structural problems that do not
// depend on document contents.
func ValidatePatch(p Patch) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s %s: %s", ErrInvalidPatch, p.Kind(), p.Target(), fmt.Sprintf(format, args...))
	}
	switch v := p.(type) {
	case SetField:
		if v.Value == nil {
			return fail("value is required")
		}
		if v.Path.IsRoot() {
			if _, ok := v.Value.(Object); !ok {
				return fail("root value must be an object, got %s", KindName(v.Value))
			}
		}
	case DeleteField:
		if v.Path.IsRoot() {
			return fail("cannot delete the document root")
		}
	case InsertListItem:
		if v.Path.IsRoot() {
			return fail("path is required")
		}
		if v.Index < 0 {
			return fail("negative index %d", v.Index)
		}
		if v.Value == nil {
			return fail("value is required")
		}
	case RemoveListItem:
		if v.Path.IsRoot() {
			return fail("path is required")
		}
		if v.Index < 0 {
			return fail("negative index %d", v.Index)
		}
	case MoveListItem:
		if v.Path.IsRoot() {
			return fail("path is required")
		}
		if v.From < 0 || v.To < 0 {
			return fail("negative index (from=%d, to=%d)", v.From, v.To)
		}
	case SpliceText:
		if v.Path.IsRoot() {
			return fail("path is required")
		}
		if v.Index < 0 || v.DeleteCount < 0 {
			return fail("negative index or delete count (index=%d, delete=%d)", v.Index, v.DeleteCount)
		}
	case nil:
		return fmt.Errorf("%w: nil patch", ErrInvalidPatch)
	default:
		return fmt.Errorf("%w: unknown patch type %T", ErrInvalidPatch, p)
	}
	return nil
}

// patchWire is the JSON form of a Patch.
type patchWire struct {
	Op     string          `json:"op" validate:"required,oneof=set delete insert remove move splice"`
	Path   string          `json:"path"`
	Value  json.RawMessage `json:"value,omitempty"`
	Index  *int            `json:"index,omitempty" validate:"omitempty,gte=0"`
	From   *int            `json:"from,omitempty" validate:"omitempty,gte=0"`
	To     *int            `json:"to,omitempty" validate:"omitempty,gte=0"`
	Delete *int            `json:"delete,omitempty" validate:"omitempty,gte=0"`
	Text   *string         `json:"text,omitempty"`
}

// MarshalPatch encodes a patch in its wire form.
func MarshalPatch(p Patch) ([]byte, error) {
	w := patchWire{Path: p.Target().String()}
	var value Value
	switch v := p.(type) {
	case SetField:
		w.Op, value = OpSet, v.Value
	case DeleteField:
		w.Op = OpDelete
	case InsertListItem:
		w.Op, w.Index, value = OpInsert, intPtr(v.Index), v.Value
	case RemoveListItem:
		w.Op, w.Index = OpRemove, intPtr(v.Index)
	case MoveListItem:
		w.Op, w.From, w.To = OpMove, intPtr(v.From), intPtr(v.To)
	case SpliceText:
		w.Op, w.Index, w.Delete, w.Text = OpSplice, intPtr(v.Index), intPtr(v.DeleteCount), &v.Text
	default:
		return nil, fmt.Errorf("marshal patch: unknown type %T", p)
	}
	if value != nil {
		raw, err := MarshalCanonical(value)
		if err != nil {
			return nil, fmt.Errorf("marshal patch value: %w", err)
		}
		w.Value = raw
	}
	return json.Marshal(w)
}

// UnmarshalPatch decodes and structurally validates a patch.
func UnmarshalPatch(data []byte) (Patch, error) {
	var w patchWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if err := validate.Struct(w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	path, err := ParsePath(w.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	var value Value
	if len(w.Value) > 0 {
		value, err = DecodeValue(w.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: value: %v", ErrInvalidPatch, err)
		}
	}

	need := func(name string, v *int) (int, error) {
		if v == nil {
			return 0, fmt.Errorf("%w: %s %s: %q is required", ErrInvalidPatch, w.Op, w.Path, name)
		}
		return *v, nil
	}

	var p Patch
	switch w.Op {
	case OpSet:
		p = SetField{Path: path, Value: value}
	case OpDelete:
		p = DeleteField{Path: path}
	case OpInsert:
		idx, err := need("index", w.Index)
		if err != nil {
			return nil, err
		}
		p = InsertListItem{Path: path, Index: idx, Value: value}
	case OpRemove:
		idx, err := need("index", w.Index)
		if err != nil {
			return nil, err
		}
		p = RemoveListItem{Path: path, Index: idx}
	case OpMove:
		from, err := need("from", w.From)
		if err != nil {
			return nil, err
		}
		to, err := need("to", w.To)
		if err != nil {
			return nil, err
		}
		p = MoveListItem{Path: path, From: from, To: to}
	case OpSplice:
		idx, err := need("index", w.Index)
		if err != nil {
			return nil, err
		}
		del := 0
		if w.Delete != nil {
			del = *w.Delete
		}
		text := ""
		if w.Text != nil {
			text = norm.NFC.String(*w.Text)
		}
		p = SpliceText{Path: path, Index: idx, DeleteCount: del, Text: text}
	}
	if err := ValidatePatch(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Patches is an ordered patch sequence with a JSON array encoding.
type Patches []Patch

// MarshalJSON implements json.Marshaler.
func (ps Patches) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, len(ps))
	for i, p := range ps {
		raw, err := MarshalPatch(p)
		if err != nil {
			return nil, fmt.Errorf("patch %d: %w", i, err)
		}
		raws[i] = raw
	}
	return json.Marshal(raws)
}

// UnmarshalJSON implements json.Unmarshaler.
// Errors carry the index of the offending patch via *PatchDecodeError.
func (ps *Patches) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("%w: patches: %v", ErrInvalidPatch, err)
	}
	out := make(Patches, len(raws))
	for i, raw := range raws {
		p, err := UnmarshalPatch(raw)
		if err != nil {
			return &PatchDecodeError{Index: i, Err: err}
		}
		out[i] = p
	}
	*ps = out
	return nil
}

// PatchDecodeError reports which patch of a sequence failed to decode.
type PatchDecodeError struct {
	Index int
	Err   error
}

func (e *PatchDecodeError) Error() string {
	return fmt.Sprintf("patch %d: %v", e.Index, e.Err)
}

func (e *PatchDecodeError) Unwrap() error {
	return e.Err
}

func intPtr(n int) *int {
	return &n
}
