package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/carp/internal/wire"
)

func TestNormalizerReplacesConsistently(t *testing.T) {
	n := Normalizer{Fields: []string{"id", "createdOn"}}

	entries := []LoggedRequest{
		{
			ID:       "random",
			Request:  wire.Object{"__type": wire.String("op"), "id": wire.String("abc")},
			Response: wire.Object{"id": wire.String("abc"), "createdOn": wire.Int(17), "nested": wire.Array{wire.Object{"id": wire.String("def")}}},
		},
		{
			Request:  wire.Object{"__type": wire.String("op"), "id": wire.String("def")},
			Response: wire.Object{"id": wire.String("def"), "createdOn": wire.Null{}},
		},
	}

	out := n.Normalize(entries)

	assert.Empty(t, out[0].ID)
	assert.Equal(t, wire.String("<id#1>"), out[0].Request["id"])
	resp := out[0].Response.(wire.Object)
	assert.Equal(t, wire.String("<id#1>"), resp["id"], "same value, same placeholder")
	assert.Equal(t, wire.String("<createdOn#1>"), resp["createdOn"])
	assert.Equal(t, wire.String("<id#2>"), resp["nested"].(wire.Array)[0].(wire.Object)["id"])

	assert.Equal(t, wire.String("<id#2>"), out[1].Request["id"], "numbering spans entries")
	assert.Equal(t, wire.Null{}, out[1].Response.(wire.Object)["createdOn"], "nulls are kept")

	assert.Equal(t, wire.String("abc"), entries[0].Request["id"], "input must not be modified")
	assert.Equal(t, "random", entries[0].ID)
}

func TestNormalizerWithoutFieldsIsIdentity(t *testing.T) {
	v := wire.Object{"id": wire.String("x")}
	assert.Equal(t, v, Normalizer{}.Value(v))
}

func TestNormalizerValue(t *testing.T) {
	n := Normalizer{Fields: []string{"t"}}
	got := n.Value(wire.Array{wire.Object{"t": wire.Int(1)}, wire.Object{"t": wire.Int(1)}, wire.Object{"t": wire.Int(2)}})
	assert.Equal(t, wire.Array{
		wire.Object{"t": wire.String("<t#1>")},
		wire.Object{"t": wire.String("<t#1>")},
		wire.Object{"t": wire.String("<t#2>")},
	}, got)
}
