package anchor

import (
	"context"
	"log/slog"
	"time"

	"github.com/ruteri/sensor-anchoring-gateway/metrics"
	"go.uber.org/atomic"
)

// SubmitOutcome is the result of handing a reading to the pipeline.
type SubmitOutcome int

const (
	Accepted SubmitOutcome = iota
	Dropped
)

func (o SubmitOutcome) String() string {
	if o == Accepted {
		return "accepted"
	}
	return "dropped"
}

// Submitter accepts readings from producers.
type Submitter interface {
	SubmitReading(ctx context.Context, r SensorReading, timeout time.Duration) SubmitOutcome
}

// Intake is the producer side of the pipeline. A full queue drops the reading;
// the warning and the counters are the only side effects.
type Intake struct {
	queue   *Queue
	metrics *metrics.Metrics
	log     *slog.Logger

	submitted atomic.Uint64
	dropped   atomic.Uint64
}

func NewIntake(queue *Queue, m *metrics.Metrics, log *slog.Logger) *Intake {
	return &Intake{queue: queue, metrics: m, log: log}
}

func (in *Intake) SubmitReading(ctx context.Context, r SensorReading, timeout time.Duration) SubmitOutcome {
	if err := in.queue.Push(ctx, r, timeout); err != nil {
		in.dropped.Inc()
		in.metrics.ReadingDropped()
		in.log.Warn("failed to send sensor data", "err", err, slog.String("sensor", r.SensorID))
		return Dropped
	}
	in.submitted.Inc()
	in.metrics.ReadingSubmitted()
	return Accepted
}

// Counts returns the number of accepted and dropped readings.
func (in *Intake) Counts() (submitted, dropped uint64) {
	return in.submitted.Load(), in.dropped.Load()
}
