package annotation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyOf_String(t *testing.T) {
	assert.Equal(t, "3:14", KeyOf(3, 14).String())
	assert.Equal(t, "0:0", KeyOf(0, 0).String())
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("12:7")
	require.NoError(t, err)
	assert.Equal(t, KeyOf(12, 7), k)

	for _, bad := range []string{"", "12", "12:", ":7", "a:1", "1:b", "-1:2", "1:2:3", " 1:2", "1:+2"} {
		_, err := ParseKey(bad)
		assert.Truef(t, errors.Is(err, ErrMalformedKey), "ParseKey(%q) = %v", bad, err)
	}
}

func TestMessageKey_TextRoundTrip(t *testing.T) {
	b, err := KeyOf(4, 2).MarshalText()
	require.NoError(t, err)
	var k MessageKey
	require.NoError(t, k.UnmarshalText(b))
	assert.Equal(t, KeyOf(4, 2), k)
	assert.Error(t, k.UnmarshalText([]byte("x")))
}

func TestMessageKey_Less(t *testing.T) {
	assert.True(t, KeyOf(1, 9).Less(KeyOf(2, 0)))
	assert.True(t, KeyOf(2, 0).Less(KeyOf(2, 1)))
	assert.False(t, KeyOf(2, 1).Less(KeyOf(2, 1)))
}
