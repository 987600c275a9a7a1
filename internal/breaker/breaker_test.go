package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_ThresholdTransitionsToOpen(t *testing.T) {
	b := New(Config{FailureThreshold: 3, Cooldown: time.Minute, HalfOpenMaxCalls: 1})

	b.RecordFailure("akshare", "timeout")
	b.RecordFailure("akshare", "timeout")
	assert.True(t, b.IsAvailable("akshare"), "one below threshold stays closed")

	b.RecordFailure("akshare", "timeout")
	assert.False(t, b.IsAvailable("akshare"), "reaching threshold opens the breaker")
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: 10 * time.Millisecond, HalfOpenMaxCalls: 1})
	fakeNow := time.Now()
	b.now = func() time.Time { return fakeNow }

	b.RecordFailure("chip", "banned")
	require.False(t, b.IsAvailable("chip"))

	fakeNow = fakeNow.Add(20 * time.Millisecond)
	assert.True(t, b.IsAvailable("chip"), "cooldown elapsed allows a half-open probe")
	assert.False(t, b.IsAvailable("chip"), "half-open probe budget exhausted after one call")
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: time.Millisecond, HalfOpenMaxCalls: 2})
	fakeNow := time.Now()
	b.now = func() time.Time { return fakeNow }

	b.RecordFailure("tushare", "5xx")
	fakeNow = fakeNow.Add(time.Millisecond)
	require.True(t, b.IsAvailable("tushare"))

	b.RecordSuccess("tushare")

	status := b.GetStatus()
	require.Len(t, status, 1)
	assert.Equal(t, Closed, status[0].State)
	assert.Equal(t, 0, status[0].Failures)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Cooldown: time.Millisecond, HalfOpenMaxCalls: 1})
	fakeNow := time.Now()
	b.now = func() time.Time { return fakeNow }

	b.RecordFailure("yfinance", "503")
	fakeNow = fakeNow.Add(time.Millisecond)
	require.True(t, b.IsAvailable("yfinance"))

	b.RecordFailure("yfinance", "503 again")
	assert.False(t, b.IsAvailable("yfinance"))
}

func TestBreaker_ResetSingleAndAll(t *testing.T) {
	b := New(DefaultConfig())
	b.RecordFailure("a", "x")
	b.RecordFailure("b", "x")

	b.Reset("a")
	assert.Len(t, b.GetStatus(), 1)

	b.Reset("")
	assert.Len(t, b.GetStatus(), 0)
}
