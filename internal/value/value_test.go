package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromJSONScalarsAndContainers(t *testing.T) {
	v := FromJSON([]byte(`{"a": 1, "b": "s", "c": true, "d": null, "e": [1,2], "f": {"g": 1}}`))
	require.True(t, v.IsObject())

	entries, ok := v.ObjectEntries()
	require.True(t, ok)

	a := entries["a"]
	assert.True(t, a.IsNumber())
	f, _ := a.AsFloat()
	assert.Equal(t, float64(1), f)

	b := entries["b"]
	s, _ := b.AsString()
	assert.Equal(t, "s", s)

	c := entries["c"]
	bl, _ := c.AsBool()
	assert.True(t, bl)

	assert.True(t, entries["d"].IsNull())

	e := entries["e"]
	require.True(t, e.IsArray())
	elems, _ := e.ArrayElements()
	assert.Len(t, elems, 2)

	fv := entries["f"]
	require.True(t, fv.IsObject())
}

func TestConvertibleToIntTruncatesFraction(t *testing.T) {
	v := Number(123.45)
	assert.True(t, v.ConvertibleToInt())
	assert.Equal(t, int64(123), v.AsInt())
}

func TestConvertibleToUIntRejectsNegative(t *testing.T) {
	v := Int(-1)
	assert.True(t, v.ConvertibleToInt())
	assert.False(t, v.ConvertibleToUInt())
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(String("a"), String("a")))
	assert.False(t, Equal(String("a"), String("b")))
	assert.True(t, Equal(Null(), Null()))
	assert.False(t, Equal(Null(), Bool(false)))
}

func TestInterfaceRoundTrip(t *testing.T) {
	v := Object(map[string]Value{"x": Int(1), "y": String("z")})
	iface := v.Interface()
	m, ok := iface.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), m["x"])
	assert.Equal(t, "z", m["y"])
}
