package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindNone, KindString, KindHash, KindList, KindSet} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("zset")
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestNormalize(t *testing.T) {
	v, err := Normalize("set", []string{"b", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, SetValue{"a", "b"}, v)

	v, err = Normalize("none", nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = Normalize("hash", "not a map")
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, StringValue("")))
	assert.False(t, Equal(ListValue{"a"}, SetValue{"a"}))
	assert.True(t, Equal(HashValue{"a": "1"}, HashValue{"a": "1"}))
	assert.False(t, Equal(ListValue{"a", "b"}, ListValue{"b", "a"}))
}

func TestNewItem(t *testing.T) {
	item := NewItem(KindHash)
	assert.Equal(t, "", item.Key)
	assert.EqualValues(t, -1, item.TTL)
	assert.Equal(t, HashValue{}, item.Value)
	assert.Nil(t, NewItem(KindNone).Value)
}

func TestWithHelpers_CopyOnWrite(t *testing.T) {
	item := &Item{Key: "a", Kind: KindString, TTL: -1, Value: StringValue("1")}
	edited := item.WithKey("b").WithTTL(5).WithValue(ListValue{"x"})

	assert.Equal(t, "a", item.Key)
	assert.EqualValues(t, -1, item.TTL)
	assert.Equal(t, KindString, item.Kind)
	assert.Equal(t, "b", edited.Key)
	assert.Equal(t, KindList, edited.Kind)
}

func TestTooltip(t *testing.T) {
	item := &Item{Key: "user:1", Kind: KindHash, TTL: 30}
	assert.Equal(t, "name: user:1\ntype: hash\nTTL: 30", item.Tooltip())
}

func TestFormatTTL(t *testing.T) {
	assert.Equal(t, "Persistent", FormatTTL(-1))
	assert.Equal(t, "Persistent", FormatTTL(0))
	assert.Equal(t, "TTL: 0:01:05", FormatTTL(65))
	assert.Equal(t, "TTL: 1 day, 2:03:04", FormatTTL(86400+2*3600+3*60+4))
	assert.Equal(t, "TTL: 3 days, 0:00:00", FormatTTL(3*86400))
}

func TestIncrBy(t *testing.T) {
	cases := []struct {
		in   string
		step int64
		want string
		ok   bool
	}{
		{"41", 1, "42", true},
		{"0", -1, "-1", true},
		{"1.5", 1, "2.5", true},
		{"2.0", 1, "3.0", true},
		{"abc", 1, "abc", false},
	}
	for _, tc := range cases {
		got, ok := IncrBy(tc.in, tc.step)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
	}
}
