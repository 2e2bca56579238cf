package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCode(t *testing.T) {
	tests := []struct {
		in   string
		want Code
	}{
		{"KEY_W", KEY_W},
		{"w", KEY_W},
		{"key_kpminus", KEY_KPMINUS},
		{" KPPLUS ", KEY_KPPLUS},
		{"previoussong", KEY_PREVSONG},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCodeUnknown(t *testing.T) {
	for _, in := range []string{"", "KEY_NOPE", "matrix"} {
		_, err := ParseCode(in)
		assert.ErrorIs(t, err, ErrUnknownKey, in)
	}
}

func TestIdentityEquality(t *testing.T) {
	assert.Equal(t, Key(KEY_W), Key(KEY_W))
	assert.NotEqual(t, Key(KEY_W), Key(KEY_A))
	assert.Equal(t, At(1, 2), At(1, 2))
	assert.NotEqual(t, At(1, 2), At(2, 1))
	assert.NotEqual(t, Key(KEY_ESC), At(0, 0))

	held := map[Identity]int{Key(KEY_W): 1, At(1, 2): 2}
	assert.Equal(t, 1, held[Key(KEY_W)])
	assert.Equal(t, 2, held[At(1, 2)])
}

func TestIdentityAccessors(t *testing.T) {
	code, ok := Key(KEY_UP).Code()
	assert.True(t, ok)
	assert.Equal(t, KEY_UP, code)

	_, _, ok = Key(KEY_UP).Position()
	assert.False(t, ok)

	row, col, ok := At(4, 4).Position()
	assert.True(t, ok)
	assert.Equal(t, uint8(4), row)
	assert.Equal(t, uint8(4), col)

	assert.True(t, Identity{}.IsZero())
	assert.False(t, At(0, 0).IsZero())
}

func TestParseRoundTrip(t *testing.T) {
	for _, id := range []Identity{Key(KEY_W), Key(KEY_KPSLASH), At(0, 0), At(5, 4)} {
		parsed, err := Parse(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}
}

func TestParseMatrixErrors(t *testing.T) {
	for _, in := range []string{"matrix(1)", "matrix(a,2)", "matrix(1,300)", "matrix(1,2,3)"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrUnknownKey, in)
	}
}

func TestIdentityTextUnmarshal(t *testing.T) {
	var id Identity
	require.NoError(t, id.UnmarshalText([]byte("Matrix(2, 3)")))
	assert.Equal(t, At(2, 3), id)

	_, err := Identity{}.MarshalText()
	assert.Error(t, err)
}

func TestDefaultLayoutResolve(t *testing.T) {
	l := DefaultLayout()
	tests := []struct {
		id   Identity
		want Code
		ok   bool
	}{
		{At(1, 2), KEY_W, true},
		{At(2, 1), KEY_A, true},
		{At(2, 2), KEY_S, true},
		{At(2, 3), KEY_D, true},
		{At(4, 4), KEY_KPMINUS, true},
		{At(5, 4), KEY_KPPLUS, true},
		{At(5, 0), KEY_KPSLASH, true},
		{At(7, 2), KEY_RESERVED, false},
		{At(4, 9), KEY_RESERVED, false},
		{At(12, 0), KEY_RESERVED, false},
		{Key(KEY_F5), KEY_F5, true},
	}
	for _, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			got, ok := l.Resolve(tt.id)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLayoutFind(t *testing.T) {
	l := DefaultLayout()
	id, ok := l.Find(KEY_KPPLUS)
	require.True(t, ok)
	assert.Equal(t, At(5, 4), id)

	_, ok = l.Find(KEY_F12)
	assert.False(t, ok)
}

func TestAllCodesSorted(t *testing.T) {
	codes := AllCodes()
	require.NotEmpty(t, codes)
	for i := 1; i < len(codes); i++ {
		assert.Less(t, codes[i-1], codes[i])
	}
	assert.Contains(t, codes, KEY_VOLUMEUP)
	assert.NotContains(t, codes, KEY_RESERVED)
}
