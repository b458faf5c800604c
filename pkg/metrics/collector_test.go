package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mozaicserver/mozaic/pkg/metrics"
)

func TestCollectorSamplesCountOnStart(t *testing.T) {
	calls := make(chan struct{}, 4)
	c := metrics.NewCollector(func() int {
		select {
		case calls <- struct{}{}:
		default:
		}
		return 3
	})

	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool {
		select {
		case <-calls:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestCollectorStopsCleanly(t *testing.T) {
	c := metrics.NewCollector(func() int { return 0 })
	c.Start()
	c.Stop()
}
