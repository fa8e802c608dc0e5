package anchor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/sensor-anchoring-gateway/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(3)
	require.Equal(t, 3, q.Cap())

	for i := int32(0); i < 3; i++ {
		require.NoError(t, q.Push(ctx, SensorReading{SensorID: "s", Values: []int32{i}}, time.Second))
	}
	require.Equal(t, 3, q.Len())

	for i := int32(0); i < 3; i++ {
		r, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, []int32{i}, r.Values)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PushTimesOutWhenFull(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(1)
	require.NoError(t, q.Push(ctx, SensorReading{SensorID: "a"}, time.Second))

	start := time.Now()
	err := q.Push(ctx, SensorReading{SensorID: "b"}, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrQueueFull)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	r, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", r.SensorID)
}

func TestQueue_PopTimesOutWhenEmpty(t *testing.T) {
	q := NewQueue(1)
	_, err := q.Pop(context.Background(), 10*time.Millisecond)
	require.ErrorIs(t, err, ErrQueueEmpty)
}

func TestQueue_PopUnblocksOnPush(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		assert.NoError(t, q.Push(ctx, SensorReading{SensorID: "late"}, time.Second))
	}()

	r, err := q.Pop(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", r.SensorID)
	wg.Wait()
}

func TestQueue_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := NewQueue(1)
	_, err := q.Pop(ctx, time.Second)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, q.Push(ctx, SensorReading{}, time.Second), "free slot is taken without waiting")
	require.ErrorIs(t, q.Push(ctx, SensorReading{}, time.Second), context.Canceled)
}

func TestIntake_SubmitReading(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(1)
	in := NewIntake(q, metrics.NewMetrics("test", prometheus.NewRegistry()), testLogger())

	assert.Equal(t, Accepted, in.SubmitReading(ctx, SensorReading{SensorID: "a"}, time.Second))
	assert.Equal(t, Dropped, in.SubmitReading(ctx, SensorReading{SensorID: "b"}, 10*time.Millisecond))

	submitted, dropped := in.Counts()
	assert.Equal(t, uint64(1), submitted)
	assert.Equal(t, uint64(1), dropped)
	assert.Equal(t, 1, q.Len())
}
