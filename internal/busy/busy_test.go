package busy

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounter_AcquireRelease(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_in_flight"})
	c := NewCounter(gauge)

	assert.False(t, c.Busy())
	r1 := c.Acquire()
	r2 := c.Acquire()
	assert.EqualValues(t, 2, c.Count())
	assert.Equal(t, float64(2), testutil.ToFloat64(gauge))

	r1()
	r1()
	assert.EqualValues(t, 1, c.Count())
	r2()
	assert.False(t, c.Busy())
	assert.Equal(t, float64(0), testutil.ToFloat64(gauge))
}

func TestCounter_DoReleasesOnError(t *testing.T) {
	c := NewCounter(nil)
	boom := errors.New("boom")

	err := c.Do(func() error {
		assert.True(t, c.Busy())
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.Busy())
}

func TestCounter_ConcurrentUse(t *testing.T) {
	c := NewCounter(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Do(func() error { return nil })
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 0, c.Count())
}
