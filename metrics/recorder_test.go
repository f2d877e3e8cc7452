package metrics_test

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/chainweave/forge/metrics"
)

func TestRecorderSnapshot(t *testing.T) {
	r := metrics.NewRecorder(prometheus.NewRegistry())

	r.RecordGeneration(metrics.OutcomeSuccess, 100*time.Millisecond)
	r.RecordGeneration(metrics.OutcomeFallback, 200*time.Millisecond)
	r.RecordSimulation(true, 50*time.Millisecond)
	r.RecordSimulation(false, 70*time.Millisecond)
	r.RecordPipeline("completed", time.Second)
	r.RecordPipeline("failed", time.Second)
	r.RecordPipeline("partial", time.Second)
	r.SSEConnected()
	r.SSEConnected()
	r.SSEDisconnected()

	snap := r.Snapshot()
	assert.Equal(t, int64(2), snap.Generations)
	assert.Equal(t, int64(1), snap.GenerationFallbacks)
	assert.Equal(t, int64(0), snap.GenerationFailures)
	assert.Equal(t, int64(2), snap.Simulations)
	assert.Equal(t, int64(1), snap.SimulationFailures)
	assert.Equal(t, int64(3), snap.PipelineExecutions)
	assert.Equal(t, int64(1), snap.PipelineFailures)
	assert.Equal(t, int64(1), snap.PipelinePartials)
	assert.Equal(t, int64(1), snap.SSEClients)
}

func TestRecorderNilRegisterer(t *testing.T) {
	r := metrics.NewRecorder(nil)
	r.RecordGeneration(metrics.OutcomeSuccess, time.Millisecond)
	assert.Equal(t, int64(1), r.Snapshot().Generations)
}

func TestRecorderConcurrent(t *testing.T) {
	r := metrics.NewRecorder(prometheus.NewRegistry())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.RecordSimulation(j%2 == 0, time.Millisecond)
			}
		}()
	}
	wg.Wait()

	snap := r.Snapshot()
	assert.Equal(t, int64(800), snap.Simulations)
	assert.Equal(t, int64(400), snap.SimulationFailures)
}
