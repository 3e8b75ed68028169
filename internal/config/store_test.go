package config

import (
	"testing"

	"github.com/QuadTriangle/wsagent/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func updates(m map[string]value.Value) value.Value {
	return value.Object(m)
}

func TestRequiredKeyMissing(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.RegisterKey("url", STRING, true, nil))

	ok, errs := s.Update(updates(nil))
	assert.False(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "'url' is required", errs[0].FullMessage())
	assert.True(t, s.Get("url").IsNull())
}

func TestIntCoercionTruncates(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.RegisterKey("bar", INT, false, nil))

	ok, errs := s.Update(updates(map[string]value.Value{"bar": value.Number(123.45)}))
	require.True(t, ok)
	require.Empty(t, errs)
	assert.Equal(t, int64(123), s.Get("bar").AsInt())
}

func TestDefaultProducer(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.RegisterKey("baz", INT, false, StaticDefault(value.Int(123))))

	got := s.Get("baz")
	assert.Equal(t, int64(123), got.AsInt())

	dump := s.Dump()
	entry, ok := dump.Entry("baz")
	require.True(t, ok)
	assert.True(t, entry.UserValue.IsNull())
	assert.Equal(t, int64(123), entry.EffectiveValue.AsInt())
}

func TestUpdateFailsLeaveStoreUnchanged(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.RegisterKey("bar", INT, false, nil))
	ok, _ := s.Update(updates(map[string]value.Value{"bar": value.Int(7)}))
	require.True(t, ok)

	ok, errs := s.Update(updates(map[string]value.Value{"bar": value.String("not-a-number")}))
	assert.False(t, ok)
	assert.NotEmpty(t, errs)
	assert.Equal(t, int64(7), s.Get("bar").AsInt())
}

func TestUnknownKeysIgnored(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.RegisterKey("bar", INT, false, nil))

	ok, errs := s.Update(updates(map[string]value.Value{"unknown": value.Bool(true)}))
	require.True(t, ok)
	require.Empty(t, errs)
	assert.True(t, s.Get("unknown").IsNull())

	dump := s.Dump()
	_, ok2 := dump.Entry("unknown")
	assert.False(t, ok2)
}

func TestDumpRoundTripIsNoOp(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.RegisterKey("url", STRING, true, nil))
	require.NoError(t, s.RegisterKey("baz", INT, false, StaticDefault(value.Int(123))))
	ok, _ := s.Update(updates(map[string]value.Value{"url": value.String("ws://a/")}))
	require.True(t, ok)

	before := s.Dump()
	preview, errs := s.PreviewUpdate(updates(nil))
	require.Empty(t, errs)
	s.ForceApplyPreview(preview)
	after := s.Dump()

	assert.Equal(t, before.JSON(), after.JSON())
}

func TestUpdatesMustBeObject(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.RegisterKey("bar", INT, false, nil))
	_, errs := s.PreviewUpdate(value.String("oops"))
	require.Len(t, errs, 1)
	assert.Equal(t, "The JSON document must be an object", errs[0].FullMessage())
}

func TestUIntNegativeRejected(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.RegisterKey("n", UINT, false, nil))
	ok, errs := s.Update(updates(map[string]value.Value{"n": value.Int(-5)}))
	assert.False(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "'n' must be greater than 0", errs[0].FullMessage())
}

func TestExplicitNullClearsUserValue(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.RegisterKey("bar", INT, false, StaticDefault(value.Int(9))))
	ok, _ := s.Update(updates(map[string]value.Value{"bar": value.Int(7)}))
	require.True(t, ok)
	assert.Equal(t, int64(7), s.Get("bar").AsInt())

	ok, errs := s.Update(updates(map[string]value.Value{"bar": value.Null()}))
	require.True(t, ok)
	require.Empty(t, errs)
	assert.Equal(t, int64(9), s.Get("bar").AsInt())
}

func TestRegisterKeyRequiredWithDefaultFails(t *testing.T) {
	s := NewStore()
	err := s.RegisterKey("url", STRING, true, StaticDefault(value.String("x")))
	assert.Error(t, err)
}
