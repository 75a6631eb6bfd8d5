package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValue_Kinds(t *testing.T) {
	v, err := DecodeValue([]byte(`{"a":1,"b":"x","c":true,"d":null,"e":[1,"y"],"f":{"g":-3}}`))
	require.NoError(t, err)

	want := Object{
		"a": Int(1),
		"b": String("x"),
		"c": Bool(true),
		"d": Null{},
		"e": Array{Int(1), String("y")},
		"f": Object{"g": Int(-3)},
	}
	assert.True(t, Equal(want, v), "got %#v", v)
}

func TestDecodeValue_RejectsFloats(t *testing.T) {
	for _, input := range []string{`1.5`, `{"a":2e3}`, `[1, 0.1]`} {
		_, err := DecodeValue([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestDecodeValue_LargeIntegers(t *testing.T) {
	v, err := DecodeValue([]byte(`9007199254740993`))
	require.NoError(t, err)
	assert.Equal(t, Int(9007199254740993), v)
}

func TestDecodeValue_NFCNormalizes(t *testing.T) {
	// "e" followed by a combining acute accent composes to U+00E9.
	v, err := DecodeValue([]byte(`"cafe\u0301"`))
	require.NoError(t, err)
	assert.Equal(t, String("caf\u00e9"), v)
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same ints", Int(1), Int(1), true},
		{"int vs string", Int(1), String("1"), false},
		{"nested equal", Object{"a": Array{Int(1)}}, Object{"a": Array{Int(1)}}, true},
		{"array order", Array{Int(1), Int(2)}, Array{Int(2), Int(1)}, false},
		{"missing key", Object{"a": Null{}}, Object{}, false},
		{"nil vs null", nil, Null{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestObjectClone_Independent(t *testing.T) {
	orig := Object{"a": Int(1)}
	c := orig.Clone()
	c["b"] = Int(2)
	assert.Len(t, orig, 1)
}

func TestToGo_FromGo(t *testing.T) {
	v := Object{"a": Array{Int(1), String("x"), Null{}}, "b": Bool(false)}
	back, err := FromGo(ToGo(v))
	require.NoError(t, err)
	assert.True(t, Equal(v, back))
}
