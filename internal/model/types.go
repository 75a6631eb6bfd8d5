package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ObjectType is the kind of record an object holds.
type ObjectType string

const (
	TypeAccount  ObjectType = "account"
	TypeBoulder  ObjectType = "boulder"
	TypePassport ObjectType = "passport"
)

// ObjectTypes lists the supported object types.
var ObjectTypes = []ObjectType{TypeAccount, TypeBoulder, TypePassport}

// ObjectID identifies an object within a tenant (one gym).
type ObjectID struct {
	Tenant string     `json:"tenant" validate:"required,max=64,excludesall=/"`
	Type   ObjectType `json:"type" validate:"required,oneof=account boulder passport"`
	ID     string     `json:"id" validate:"required,max=128,excludesall=/"`
}

// NewObjectID builds and validates an ObjectID.
func NewObjectID(tenant string, typ ObjectType, id string) (ObjectID, error) {
	oid := ObjectID{Tenant: tenant, Type: typ, ID: id}
	if err := oid.Validate(); err != nil {
		return ObjectID{}, err
	}
	return oid, nil
}

// MustObjectID is like NewObjectID but panics on error.
// Use only in tests.
func MustObjectID(tenant string, typ ObjectType, id string) ObjectID {
	oid, err := NewObjectID(tenant, typ, id)
	if err != nil {
		panic(err)
	}
	return oid
}

// ParseObjectID parses the "tenant/type/id" form.
func ParseObjectID(s string) (ObjectID, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return ObjectID{}, fmt.Errorf("object id %q: want tenant/type/id", s)
	}
	return NewObjectID(parts[0], ObjectType(parts[1]), parts[2])
}

// Validate checks field constraints.
func (o ObjectID) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("object id %q: %w", o.String(), err)
	}
	return nil
}

// String returns "tenant/type/id". It is also the storage key.
func (o ObjectID) String() string {
	return o.Tenant + "/" + string(o.Type) + "/" + o.ID
}

// IsZero reports whether no field is set.
func (o ObjectID) IsZero() bool {
	return o == ObjectID{}
}

// Operation is an edit submitted by a client against BaseRevision.
//
// Nonce is optional. A client that sends the same edit twice on purpose
// sets a distinct nonce on each, so the second is not taken for a retry
// of the first.
type Operation struct {
	ObjectID     ObjectID `json:"object_id"`
	BaseRevision int64    `json:"base_revision" validate:"gte=0"`
	Patches      Patches  `json:"patches"`
	Author       string   `json:"author" validate:"required,max=128"`
	Nonce        string   `json:"nonce,omitempty" validate:"max=128"`
}

// Validate checks the operation fields and every patch.
// Patch failures are reported as *PatchDecodeError carrying the index.
func (op Operation) Validate() error {
	if err := op.ObjectID.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(op); err != nil {
		return fmt.Errorf("operation %s: %w", op.ObjectID, err)
	}
	for i, p := range op.Patches {
		if err := ValidatePatch(p); err != nil {
			return &PatchDecodeError{Index: i, Err: err}
		}
	}
	return nil
}

// CommittedOperation is an Operation after a successful commit.
// Patches are the adjusted patches actually applied at Revision.
// Immutable once written.
type CommittedOperation struct {
	ObjectID     ObjectID  `json:"object_id"`
	Revision     int64     `json:"revision"`
	BaseRevision int64     `json:"base_revision"`
	Patches      Patches   `json:"patches"`
	Author       string    `json:"author"`
	CommittedAt  time.Time `json:"committed_at"`
	OperationID  string    `json:"operation_id"` // content hash of the submission
}

// Snapshot is the current-state record of an object.
type Snapshot struct {
	ObjectID ObjectID `json:"object_id"`
	Revision int64    `json:"revision"`
	Value    Object   `json:"value"`
}

// EmptyDocument returns the initial value of every object.
func EmptyDocument() Object {
	return Object{}
}
