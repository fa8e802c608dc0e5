package anchor

import (
	"context"
	"errors"
	"time"
)

var (
	ErrQueueFull  = errors.New("queue full")
	ErrQueueEmpty = errors.New("queue empty")
)

// SensorReading is one measurement of a sensor.
type SensorReading struct {
	SensorID string
	Values   []int32
	At       time.Time
}

// Queue is a bounded FIFO of whole readings, safe for concurrent producers.
type Queue struct {
	items chan SensorReading
}

func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{items: make(chan SensorReading, capacity)}
}

// Push enqueues r, waiting at most timeout for a free slot.
func (q *Queue) Push(ctx context.Context, r SensorReading, timeout time.Duration) error {
	select {
	case q.items <- r:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.items <- r:
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop dequeues the oldest reading, waiting at most timeout for one to arrive.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (SensorReading, error) {
	select {
	case r := <-q.items:
		return r, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-q.items:
		return r, nil
	case <-timer.C:
		return SensorReading{}, ErrQueueEmpty
	case <-ctx.Done():
		return SensorReading{}, ctx.Err()
	}
}

func (q *Queue) Len() int { return len(q.items) }

func (q *Queue) Cap() int { return cap(q.items) }
