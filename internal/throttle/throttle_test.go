package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnlimitedGrantsImmediately(t *testing.T) {
	l := NewLimiter(0)
	defer l.Stop()
	got := l.Acquire(1<<20, nil)
	assert.Equal(t, int64(1<<20), got)
}

func TestLimiterGrantsUpToBucket(t *testing.T) {
	l := NewLimiter(100)
	defer l.Stop()

	got := l.Acquire(60, nil)
	assert.Equal(t, int64(60), got)

	got = l.Acquire(60, nil)
	assert.Equal(t, int64(40), got)
}

func TestLimiterRefillsEachSecond(t *testing.T) {
	l := NewLimiter(10)
	defer l.Stop()

	got := l.Acquire(10, nil)
	require := assert.New(t)
	require.Equal(int64(10), got)

	cancel := make(chan struct{})
	time.AfterFunc(2*time.Second, func() { close(cancel) })
	got = l.Acquire(5, cancel)
	assert.Equal(t, int64(5), got)
}

func TestAcquireCancelReturnsZero(t *testing.T) {
	l := NewLimiter(10)
	defer l.Stop()
	_ = l.Acquire(10, nil)

	cancel := make(chan struct{})
	close(cancel)
	got := l.Acquire(5, cancel)
	assert.Equal(t, int64(0), got)
}
