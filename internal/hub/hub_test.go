package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachineHappyPath(t *testing.T) {
	c := New("adc://hub.example", nil, time.Millisecond)
	require.NoError(t, c.setState(StateIdentify))
	require.NoError(t, c.setState(StateVerify))
	require.NoError(t, c.setState(StateNormal))
	require.NoError(t, c.setState(StateDisconnected))
	assert.Equal(t, StateDisconnected, c.State())
}

func TestStateMachineRejectsSkippingVerify(t *testing.T) {
	c := New("adc://hub.example", nil, time.Millisecond)
	err := c.setState(StateNormal)
	var stateErr *StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestSearchLimiterThrottles(t *testing.T) {
	l := NewSearchLimiter(50 * time.Millisecond)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
	time.Sleep(60 * time.Millisecond)
	assert.True(t, l.Allow())
}

func TestSUDPRoundTrip(t *testing.T) {
	s, err := NewSUDP([]byte("0123456789abcdef"))
	require.NoError(t, err)

	plaintext := []byte("RES FN/share/file.bin SI1024 TRABCDEF")
	ciphertext, err := s.Encrypt(plaintext)
	require.NoError(t, err)

	decrypted, err := s.Decrypt(ciphertext)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(decrypted), len(plaintext))
	assert.Equal(t, plaintext, decrypted[:len(plaintext)])
}
