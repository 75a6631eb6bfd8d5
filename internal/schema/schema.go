// Package schema checks documents against per-type CUE definitions.
//
// Schemas are embedded from schemas/*.cue. Every field is optional
// because a document is built up one patch at a time from {}; a field
// that is present must match its declared type. Unknown fields are
// allowed.
package schema

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/otcore/internal/model"
)

//go:embed schemas/*.cue
var files embed.FS

// ErrSchemaViolation is matched by every *ValidationError.
var ErrSchemaViolation = errors.New("schema violation")

// ValidationError reports the first field that fails its definition.
type ValidationError struct {
	Type    model.ObjectType
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s document: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s document: %s: %s", e.Type, e.Path, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrSchemaViolation
}

// Registry holds the compiled definition of every object type.
// A cue.Context is not safe for concurrent use, so Validate serializes.
type Registry struct {
	mu   sync.Mutex
	ctx  *cue.Context
	defs map[model.ObjectType]cue.Value
}

// New compiles the embedded schemas.
func New() (*Registry, error) {
	r := &Registry{
		ctx:  cuecontext.New(),
		defs: make(map[model.ObjectType]cue.Value, len(model.ObjectTypes)),
	}
	for _, typ := range model.ObjectTypes {
		name := "schemas/" + string(typ) + ".cue"
		src, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("load schema %s: %w", typ, err)
		}
		v := r.ctx.CompileBytes(src, cue.Filename(name))
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", typ, err)
		}
		def := v.LookupPath(cue.ParsePath(definitionName(typ)))
		if !def.Exists() {
			return nil, fmt.Errorf("compile schema %s: %s not defined", typ, definitionName(typ))
		}
		r.defs[typ] = def
	}
	return r, nil
}

// MustNew is like New but panics on error. The schemas are embedded,
// so a failure is a build defect.
func MustNew() *Registry {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks doc against the definition for typ.
func (r *Registry) Validate(typ model.ObjectType, doc model.Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.defs[typ]
	if !ok {
		return &ValidationError{Type: typ, Message: "unknown object type"}
	}
	val := r.ctx.Encode(model.ToGo(doc))
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode %s document: %w", typ, err)
	}
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return toValidationError(typ, err)
	}
	return nil
}

// definitionName maps "boulder" to "#Boulder".
func definitionName(typ model.ObjectType) string {
	s := string(typ)
	return "#" + strings.ToUpper(s[:1]) + s[1:]
}

func toValidationError(typ model.ObjectType, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Type: typ, Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &ValidationError{
		Type:    typ,
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}
