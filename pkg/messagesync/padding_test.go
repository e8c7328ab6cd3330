package messagesync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPadStrip_RoundTrips(t *testing.T) {
	cases := [][]byte{
		[]byte(""),
		[]byte("hi"),
		make([]byte, 159),
		make([]byte, 160),
		make([]byte, 161),
		[]byte("a message that is considerably longer than one sixty byte block of padding"),
	}
	for _, c := range cases {
		padded := Pad(c)
		require.Equal(t, 0, len(padded)%blockSize)
		require.Equal(t, c, Strip(padded))
	}
}

func TestPad_AlwaysGrowsByAtLeastOneByte(t *testing.T) {
	c := make([]byte, 160)
	padded := Pad(c)
	require.Greater(t, len(padded), len(c))
}

func TestStrip_LeavesUnpaddedContentUnchanged(t *testing.T) {
	// No trailing 0x80 marker: Strip must not mutate the content.
	c := []byte{0x01, 0x02, 0x03}
	require.Equal(t, c, Strip(c))
}
