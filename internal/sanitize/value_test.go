// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	v, err := Decode([]byte(`{"name":"Ada","skills":["go",1,true,null]}`))
	require.NoError(t, err)

	assert.Equal(t, Record{
		"name":   String("Ada"),
		"skills": List{String("go"), Scalar{V: float64(1)}, Scalar{V: true}, Scalar{V: nil}},
	}, v)

	_, err = Decode([]byte(`{"name":`))
	assert.Error(t, err)
}

func TestInto(t *testing.T) {
	var dst struct {
		Name   string   `json:"name"`
		Skills []string `json:"skills"`
	}

	err := Into(SanitizeDeep(Record{
		"name":   String("<b>Ada</b>"),
		"skills": List{String("go")},
	}), &dst)

	require.NoError(t, err)
	assert.Equal(t, "Ada", dst.Name)
	assert.Equal(t, []string{"go"}, dst.Skills)
}

func TestAny_RoundTripsShape(t *testing.T) {
	in := map[string]any{"a": []any{"x", float64(2)}, "b": map[string]any{"c": "d"}}
	assert.Equal(t, in, Any(FromAny(in)))
}
