package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithParamHeader(t *testing.T) {
	full, err := withParamHeader("MATCH (n {name: $name}) RETURN n", map[string]interface{}{
		"name":  "Sarah",
		"limit": 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "CYPHER limit=10 name='Sarah' MATCH (n {name: $name}) RETURN n", full)
}

func TestWithParamHeader_NoParams(t *testing.T) {
	full, err := withParamHeader("RETURN 1", nil)
	require.NoError(t, err)
	assert.Equal(t, "RETURN 1", full)
}

func TestEncodeLiteral(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
	}{
		{nil, "null"},
		{"plain", "'plain'"},
		{true, "true"},
		{42, "42"},
		{int64(42), "42"},
		{1.5, "1.5"},
		{[]string{"a", "b"}, "['a', 'b']"},
		{[]interface{}{"a", 1}, "['a', 1]"},
	}
	for _, c := range cases {
		got, err := encodeLiteral(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%v", c.in)
	}

	_, err := encodeLiteral(map[string]int{"no": 1})
	require.Error(t, err)
}

func TestEncodeLiteral_EscapesStrings(t *testing.T) {
	got, err := encodeLiteral(`O'Brien \ co`)
	require.NoError(t, err)
	assert.Equal(t, `'O\'Brien \\ co'`, got)
}

func TestParseReply_WriteOnly(t *testing.T) {
	result, err := parseReply([]interface{}{
		[]interface{}{"Nodes created: 1", "Properties set: 3"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Equal(t, int64(1), result.Statistics["nodes_created"])
	assert.Equal(t, int64(3), result.Statistics["properties_set"])
}

func TestParseReply_ReadWithRows(t *testing.T) {
	result, err := parseReply([]interface{}{
		[]interface{}{"entity_id", "name", "props"},
		[]interface{}{
			[]interface{}{"e1", "Sarah", []interface{}{
				[]interface{}{"role", "engineer"},
				[]interface{}{"mention_count", int64(2)},
			}},
			[]interface{}{"e2", "Atlas", []interface{}{}},
		},
		[]interface{}{"Cached execution: 1"},
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)

	assert.Equal(t, "e1", result.Rows[0]["entity_id"])
	assert.Equal(t, "Sarah", result.Rows[0]["name"])
	props, ok := result.Rows[0]["props"].(map[string]interface{})
	require.True(t, ok, "pair arrays decode as maps")
	assert.Equal(t, "engineer", props["role"])
	assert.Equal(t, int64(2), props["mention_count"])

	// An empty property container stays a plain (empty) list
	assert.Equal(t, []interface{}{}, result.Rows[1]["props"])
}

func TestParseReply_RejectsUnknownShapes(t *testing.T) {
	_, err := parseReply("OK")
	require.Error(t, err)

	_, err = parseReply([]interface{}{
		[]interface{}{}, []interface{}{},
	})
	require.Error(t, err)
}

func TestDecodeValue_NestedLists(t *testing.T) {
	decoded := decodeValue([]interface{}{
		"plain",
		[]interface{}{
			[]interface{}{"k", "v"},
		},
	})
	list, ok := decoded.([]interface{})
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, "plain", list[0])
	inner, ok := list[1].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "v", inner["k"])
}
