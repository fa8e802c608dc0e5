package anchor

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/atomic"
)

// SimulatorOpts configures a Simulator.
type SimulatorOpts struct {
	Sensors      []string
	StartupDelay time.Duration
	PushTimeout  time.Duration
	Clock        func() time.Time
}

// Simulator produces dummy readings round-robin across a fixed sensor set.
// Each reading carries the next value of a shared counter.
type Simulator struct {
	opts     SimulatorOpts
	out      Submitter
	interval *atomic.Duration
	log      *slog.Logger

	next atomic.Int32
}

// NewSimulator creates a producer. interval is read before every wait, so
// updates take effect on the next cycle.
func NewSimulator(opts SimulatorOpts, out Submitter, interval *atomic.Duration, log *slog.Logger) *Simulator {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Simulator{opts: opts, out: out, interval: interval, log: log}
}

// Run produces readings until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	if len(s.opts.Sensors) == 0 {
		return nil
	}

	if err := sleep(ctx, s.opts.StartupDelay); err != nil {
		return nil
	}

	for i := 0; ; i = (i + 1) % len(s.opts.Sensors) {
		s.Emit(ctx, s.opts.Sensors[i])
		if err := sleep(ctx, s.interval.Load()); err != nil {
			return nil
		}
	}
}

// Emit submits one reading for sensor.
func (s *Simulator) Emit(ctx context.Context, sensor string) SubmitOutcome {
	value := s.next.Inc() - 1
	s.log.Info("simulate sensor data", slog.String("sensor", sensor), slog.Int("value", int(value)))
	return s.out.SubmitReading(ctx, SensorReading{
		SensorID: sensor,
		Values:   []int32{value},
		At:       s.opts.Clock(),
	}, s.opts.PushTimeout)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
