package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldProcess_DropsRepeatWithinTTL(t *testing.T) {
	d := New(time.Minute, 10)
	key := PayloadKey([]byte(`{"temperature":21}`))

	assert.True(t, d.ShouldProcess(key))
	assert.False(t, d.ShouldProcess(key))
}

func TestShouldProcess_AcceptsAgainAfterTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := New(time.Minute, 10)
	d.now = func() time.Time { return now }

	require.True(t, d.ShouldProcess("a"))
	now = now.Add(2 * time.Minute)
	assert.True(t, d.ShouldProcess("a"))
}

func TestShouldProcess_EmptyKeyAlwaysPasses(t *testing.T) {
	d := New(time.Minute, 10)
	assert.True(t, d.ShouldProcess(""))
	assert.True(t, d.ShouldProcess(""))
	assert.Equal(t, 0, d.Len())
}

func TestShouldProcess_CapacityBounded(t *testing.T) {
	d := New(time.Hour, 3)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		d.ShouldProcess(k)
	}
	assert.LessOrEqual(t, d.Len(), 3)
}

func TestPayloadKey_Stable(t *testing.T) {
	a := PayloadKey([]byte("x"))
	b := PayloadKey([]byte("x"))
	c := PayloadKey([]byte("y"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
