package nmdc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLockExtractsValueAndExtendedFlag(t *testing.T) {
	l, err := ParseLock("$Lock EXTENDEDPROTOCOLABCDEF Pk=airdc-go")
	require.NoError(t, err)
	assert.True(t, l.ExtendedProtocol)
	assert.Equal(t, "EXTENDEDPROTOCOLABCDEF", l.Value)
}

func TestFormatKeyIsDeterministicForSameLock(t *testing.T) {
	l, err := ParseLock("$Lock EXTENDEDPROTOCOL_ABCDEFGHIJ Pk=test")
	require.NoError(t, err)
	k1 := FormatKey(l)
	k2 := FormatKey(l)
	assert.Equal(t, k1, k2)
	assert.Contains(t, k1, "$Key ")
}

func TestFormatKeyEscapesReservedBytes(t *testing.T) {
	// A lock chosen so the transform is likely to touch a reserved byte;
	// the key FormatKey emits must never contain a literal 0x00 byte.
	l := Lock{Value: "aaaaaaaaaa"}
	key := FormatKey(l)
	for _, b := range []byte(key) {
		assert.NotEqual(t, byte(0), b)
	}
}
