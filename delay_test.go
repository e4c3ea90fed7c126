package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayProgressionShape(t *testing.T) {
	require.Len(t, delayProgression, 37)
	counts := map[time.Duration]int{}
	for _, d := range delayProgression {
		counts[d]++
	}
	assert.Equal(t, 16, counts[16*time.Millisecond])
	assert.Equal(t, 6, counts[32*time.Millisecond])
	assert.Equal(t, 8, counts[64*time.Millisecond])
	assert.Equal(t, 4, counts[128*time.Millisecond])
	assert.Equal(t, 2, counts[256*time.Millisecond])
	assert.Equal(t, 1, counts[512*time.Millisecond])
}

func TestDelayProgressionMonotonic(t *testing.T) {
	for i := 1; i < len(delayProgression); i++ {
		assert.GreaterOrEqual(t, delayProgression[i], delayProgression[i-1])
	}
}

func TestDelayNextClampsAtEnd(t *testing.T) {
	d := newDelay()
	for i := 0; i < len(delayProgression)+10; i++ {
		d = d.next()
	}
	assert.Equal(t, delayProgression[len(delayProgression)-1], d.duration())
}

func TestDelayResetReturnsToFirstStep(t *testing.T) {
	d := newDelay()
	d = d.next().next().next()
	d = d.reset()
	assert.Equal(t, delayProgression[0], d.duration())
}
