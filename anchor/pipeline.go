package anchor

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Stats is a snapshot of the whole pipeline.
type Stats struct {
	QueueLength   int         `json:"queue_length"`
	QueueCapacity int         `json:"queue_capacity"`
	Submitted     uint64      `json:"submitted"`
	Dropped       uint64      `json:"dropped"`
	Worker        WorkerStats `json:"worker"`
}

// Pipeline bundles the producers, the queue and the workers.
type Pipeline struct {
	Queue     *Queue
	Intake    *Intake
	Simulator *Simulator
	Workers   []*Worker
}

// Run starts the simulator, if any, and every worker, and waits until ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if p.Simulator != nil {
		g.Go(func() error { return p.Simulator.Run(ctx) })
	}
	for _, w := range p.Workers {
		w := w // per-iteration copy; go.mod targets go1.21 loop semantics
		g.Go(func() error { return w.Run(ctx) })
	}
	return g.Wait()
}

func (p *Pipeline) Stats() Stats {
	s := Stats{
		QueueLength:   p.Queue.Len(),
		QueueCapacity: p.Queue.Cap(),
	}
	s.Submitted, s.Dropped = p.Intake.Counts()
	for _, w := range p.Workers {
		ws := w.Stats()
		s.Worker.Processed += ws.Processed
		s.Worker.IdleTimeouts += ws.IdleTimeouts
		s.Worker.NotReady += ws.NotReady
		s.Worker.BuildFailures += ws.BuildFailures
		s.Worker.SendFailures += ws.SendFailures
		s.Worker.Delivered += ws.Delivered
		s.Worker.Rejected += ws.Rejected
		s.Worker.Unexpected += ws.Unexpected
		s.Worker.VerificationFailures += ws.VerificationFailures
	}
	return s
}
