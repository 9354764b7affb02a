package blockingpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmaIsIdempotentForSameWindow(t *testing.T) {
	w := newFreqWindow()
	w.push(5)
	w.push(3)
	w.push(1)

	first := w.ema()
	second := w.ema()
	assert.Equal(t, first, second)
}

func TestEmaOfAllZerosIsZero(t *testing.T) {
	w := newFreqWindow()
	w.ensureSeeded()
	assert.Equal(t, 0.0, w.ema())
}

func TestWindowEvictsOldestBeyondTen(t *testing.T) {
	w := newFreqWindow()
	for i := 0; i < frequencyQueueSize+5; i++ {
		w.push(float64(i))
	}
	assert.Len(t, w.samples, frequencyQueueSize)
	assert.Equal(t, float64(frequencyQueueSize+4), w.samples[0])
}

func TestScaleCountClampsToNumCPU(t *testing.T) {
	got := scaleCount(2, 1000, 4)
	assert.Equal(t, int64(4), got)
}

func TestScaleCountNeverNegative(t *testing.T) {
	got := scaleCount(2, -1000, 4)
	assert.Equal(t, int64(0), got)
}
