package keyenc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeObjectKeyOrderIsInsensitive(t *testing.T) {
	a, err := FromAny(map[string]any{"foo": "bar", "baz": "qux"})
	require.NoError(t, err)
	b, err := FromAny(map[string]any{"baz": "qux", "foo": "bar"})
	require.NoError(t, err)

	sa, err := Serialize(a)
	require.NoError(t, err)
	sb, err := Serialize(b)
	require.NoError(t, err)

	require.Equal(t, sa, sb)
	require.Equal(t, `{"baz":"qux","foo":"bar"}`, sa)
}

func TestSerializeArrayPreservesOrder(t *testing.T) {
	v, err := FromAny([]any{"a", "b", "c"})
	require.NoError(t, err)
	s, err := Serialize(v)
	require.NoError(t, err)
	require.Equal(t, `["a","b","c"]`, s)
}

func TestSerializeScalars(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{true, "true"},
		{false, "false"},
		{"hi", `"hi"`},
		{5, "5"},
		{5.5, "5.5"},
	}
	for _, c := range cases {
		v, err := FromAny(c.in)
		require.NoError(t, err)
		s, err := Serialize(v)
		require.NoError(t, err)
		require.Equal(t, c.want, s)
	}
}

func TestSerializeObjectOmitsAbsentFields(t *testing.T) {
	obj := Object{"foo": Str("bar"), "gone": Absent{}}
	s, err := Serialize(obj)
	require.NoError(t, err)
	require.Equal(t, `{"foo":"bar"}`, s)
}

func TestSerializeArrayRendersAbsentAsNull(t *testing.T) {
	arr := Array{Str("a"), Absent{}, Str("c")}
	s, err := Serialize(arr)
	require.NoError(t, err)
	require.Equal(t, `["a",null,"c"]`, s)
}

func TestSerializeNestedStructures(t *testing.T) {
	v, err := FromAny(map[string]any{
		"name": "k",
		"tags": []any{"x", "y"},
	})
	require.NoError(t, err)
	s, err := Serialize(v)
	require.NoError(t, err)
	require.Equal(t, `{"name":"k","tags":["x","y"]}`, s)
}

func TestFromAnyRejectsUnsupportedType(t *testing.T) {
	type weird struct{}
	_, err := FromAny(weird{})
	require.Error(t, err)
	var uerr *UnsupportedTypeError
	require.ErrorAs(t, err, &uerr)
}

func TestNewChainKeyStructuralEquality(t *testing.T) {
	k1, err := NewChainKey(map[string]any{"key": "k"})
	require.NoError(t, err)
	k2, err := NewChainKey(map[string]any{"key": "k"})
	require.NoError(t, err)
	require.Equal(t, k1.Serial, k2.Serial)
}

func TestVersionSerialRoundTripsBaseAndSub(t *testing.T) {
	v := Version{Base: "foobase", Sub: 7}
	require.Equal(t, "foobase/7", v.Serial())
	require.True(t, Version{Base: "x"}.IsInitial())
	require.False(t, v.IsInitial())
	require.Equal(t, Version{Base: "foobase"}, v.Initial())
}

func TestRecordKeySerial(t *testing.T) {
	ck, err := NewChainKey(map[string]any{"key": "k"})
	require.NoError(t, err)
	rk := RecordKey{Chain: ck, Version: Version{Base: "b", Sub: 0}}
	require.Contains(t, rk.Serial(), ck.Serial)
	require.Contains(t, rk.Serial(), "b/0")
}
