package testutil

import (
	"fmt"

	"github.com/roach88/otcore/internal/model"
)

// MustDocument parses a JSON object literal into a document.
// Panics on malformed input; use only with literals in tests.
func MustDocument(js string) model.Object {
	v, err := model.DecodeValue([]byte(js))
	if err != nil {
		panic(fmt.Sprintf("MustDocument(%q): %v", js, err))
	}
	obj, ok := v.(model.Object)
	if !ok {
		panic(fmt.Sprintf("MustDocument(%q): not an object", js))
	}
	return obj
}
