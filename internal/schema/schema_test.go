package schema

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/otcore/internal/model"
)

func TestNew_CompilesEveryType(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	for _, typ := range model.ObjectTypes {
		assert.Contains(t, r.defs, typ)
	}
}

func TestValidate_Accepts(t *testing.T) {
	r := MustNew()
	tests := []struct {
		name string
		typ  model.ObjectType
		doc  model.Object
	}{
		{"empty boulder", model.TypeBoulder, model.Object{}},
		{"full boulder", model.TypeBoulder, model.Object{
			"setter":  model.Array{model.String("acc-1"), model.String("acc-2")},
			"sector":  model.String("north"),
			"grade":   model.String("yellow"),
			"gradeNr": model.Int(3),
			"setDate": model.Int(1718000000000),
			"removed": model.Int(0),
			"isDraft": model.Int(0),
			"name":    model.String("Sloper Party"),
		}},
		{"unknown fields allowed", model.TypeBoulder, model.Object{
			"color": model.String("red"),
			"items": model.Array{model.String("a")},
		}},
		{"account", model.TypeAccount, model.Object{
			"login": model.String("ana"),
			"role":  model.String("setter"),
			"email": model.String("ana@example.com"),
			"name":  model.Null{},
		}},
		{"passport", model.TypePassport, model.Object{
			"accountId": model.String("acc-1"),
			"validity":  model.String("unconfirmed"),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, r.Validate(tt.typ, tt.doc))
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	r := MustNew()
	tests := []struct {
		name  string
		typ   model.ObjectType
		doc   model.Object
		field string
	}{
		{"grade number is text", model.TypeBoulder, model.Object{"gradeNr": model.String("3")}, "gradeNr"},
		{"negative set date", model.TypeBoulder, model.Object{"setDate": model.Int(-1)}, "setDate"},
		{"setter is not a list", model.TypeBoulder, model.Object{"setter": model.String("acc-1")}, "setter"},
		{"setter entry is not text", model.TypeBoulder, model.Object{"setter": model.Array{model.Int(1)}}, "setter"},
		{"unknown role", model.TypeAccount, model.Object{"role": model.String("owner")}, "role"},
		{"bad email", model.TypeAccount, model.Object{"email": model.String("not-an-email")}, "email"},
		{"empty login", model.TypeAccount, model.Object{"login": model.String("")}, "login"},
		{"unknown validity", model.TypePassport, model.Object{"validity": model.String("maybe")}, "validity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.typ, tt.doc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchemaViolation))

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.typ, ve.Type)
			assert.Contains(t, ve.Error(), tt.field)
		})
	}
}

func TestValidate_UnknownType(t *testing.T) {
	err := MustNew().Validate(model.ObjectType("gym"), model.Object{})
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestValidate_Concurrent(t *testing.T) {
	r := MustNew()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := model.Object{"gradeNr": model.Int(int64(i))}
			if err := r.Validate(model.TypeBoulder, doc); err != nil {
				t.Errorf("goroutine %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
}

func TestDefinitionName(t *testing.T) {
	assert.Equal(t, "#Boulder", definitionName(model.TypeBoulder))
	assert.Equal(t, "#Account", definitionName(model.TypeAccount))
	assert.Equal(t, "#Passport", definitionName(model.TypePassport))
}
