package anchor

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/sensor-anchoring-gateway/envelope"
	"github.com/ruteri/sensor-anchoring-gateway/identity"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
	"github.com/ruteri/sensor-anchoring-gateway/metrics"
	"go.uber.org/atomic"
)

const DefaultPopTimeout = 30 * time.Second

var (
	ErrNoBackendKey  = errors.New("no backend public key configured")
	ErrResponseChain = errors.New("response does not reference the request signature")
)

// DeviceRunner runs a function on the Ready context of a sensor. It is
// implemented by identity.Manager.
type DeviceRunner interface {
	WithReadyDevice(ctx context.Context, rawID string, fn func(dev *interfaces.DeviceContext) error) error
}

// WorkerOpts configures a Worker.
type WorkerOpts struct {
	// Endpoint is the anchoring URL.
	Endpoint string

	// BackendPublicKey verifies response envelopes.
	BackendPublicKey ed25519.PublicKey

	PopTimeout   time.Duration
	Verification VerificationPolicy
}

// WorkerStats counts processed readings per outcome.
type WorkerStats struct {
	Processed            uint64 `json:"processed"`
	IdleTimeouts         uint64 `json:"idle_timeouts"`
	NotReady             uint64 `json:"not_ready"`
	BuildFailures        uint64 `json:"build_failures"`
	SendFailures         uint64 `json:"send_failures"`
	Delivered            uint64 `json:"delivered"`
	Rejected             uint64 `json:"rejected"`
	Unexpected           uint64 `json:"unexpected"`
	VerificationFailures uint64 `json:"verification_failures"`
}

type workerCounters struct {
	processed, idle, notReady, buildFailures, sendFailures atomic.Uint64
	delivered, rejected, unexpected, verificationFailures  atomic.Uint64
}

// Worker consumes readings and anchors them one at a time.
type Worker struct {
	opts     WorkerOpts
	queue    *Queue
	devices  DeviceRunner
	builder  *envelope.Builder
	client   interfaces.BackendClient
	crypto   interfaces.CryptoProvider
	handlers []ResponseHandler
	metrics  *metrics.Metrics
	log      *slog.Logger

	counters workerCounters
}

func NewWorker(opts WorkerOpts, queue *Queue, devices DeviceRunner, builder *envelope.Builder, client interfaces.BackendClient, crypto interfaces.CryptoProvider, m *metrics.Metrics, log *slog.Logger, handlers ...ResponseHandler) *Worker {
	if opts.PopTimeout == 0 {
		opts.PopTimeout = DefaultPopTimeout
	}
	if opts.Verification == "" {
		opts.Verification = ReportDelivered
	}
	return &Worker{
		opts:     opts,
		queue:    queue,
		devices:  devices,
		builder:  builder,
		client:   client,
		crypto:   crypto,
		handlers: handlers,
		metrics:  m,
		log:      log,
	}
}

// Run consumes the queue until ctx is done. Pop timeouts are idle cycles.
func (w *Worker) Run(ctx context.Context) error {
	for {
		r, err := w.queue.Pop(ctx, w.opts.PopTimeout)
		switch {
		case err == nil:
		case errors.Is(err, ErrQueueEmpty):
			w.counters.idle.Inc()
			w.log.Warn("data receive timeout", slog.Duration("timeout", w.opts.PopTimeout))
			continue
		default:
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		w.log.Info("received sensor data", slog.String("sensor", r.SensorID), slog.Any("values", r.Values))
		w.Process(ctx, r)
	}
}

// Process anchors a single reading. A reading whose device is not Ready is
// discarded.
func (w *Worker) Process(ctx context.Context, r SensorReading) AnchorResult {
	w.counters.processed.Inc()

	var (
		res AnchorResult
		ran bool
	)
	err := w.devices.WithReadyDevice(ctx, r.SensorID, func(dev *interfaces.DeviceContext) error {
		ran = true
		res = w.anchor(ctx, r, dev)
		return res.Err
	})
	if !ran {
		res = AnchorResult{Outcome: OutcomeNotReady, Err: err}
	}

	w.record(r, res)
	return res
}

func (w *Worker) anchor(ctx context.Context, r SensorReading, dev *interfaces.DeviceContext) AnchorResult {
	payload, err := envelope.NewReading(r.Values, r.At).Encode()
	if err != nil {
		return AnchorResult{Outcome: OutcomeBuildFailed, Err: err}
	}

	req, data, err := w.builder.Build(ctx, dev, envelope.PayloadReading, payload)
	if err != nil {
		return AnchorResult{Outcome: OutcomeBuildFailed, Err: err}
	}

	w.log.Info("send envelope to backend", slog.String("endpoint", w.opts.Endpoint), slog.Int("size", len(data)))

	resp, err := w.client.SendEnvelope(ctx, w.opts.Endpoint, dev.UUID, data)
	if err != nil {
		return AnchorResult{Outcome: OutcomeSendFailed, Err: err}
	}

	res := AnchorResult{Status: resp.StatusCode, Class: Classify(resp.StatusCode)}
	switch res.Class {
	case ClassSuccess:
		res.Outcome = OutcomeDelivered
		respEnv, err := w.verify(req, resp.Body)
		if err != nil {
			w.log.Warn("response signature not verifiable",
				"err", err,
				slog.String("sensor", r.SensorID),
				slog.Int("status", resp.StatusCode))
			if w.opts.Verification == TreatAsFailure {
				res.Outcome = OutcomeVerificationFailed
				res.Err = err
			}
			return res
		}
		res.Verified = true
		for _, h := range w.handlers {
			h.HandleResponse(ctx, r.SensorID, respEnv)
		}

	case ClassClientOrServerError:
		res.Outcome = OutcomeRejected
		w.log.Warn("http status of response", slog.String("sensor", r.SensorID), slog.Int("status", resp.StatusCode))

	default:
		res.Outcome = OutcomeUnexpected
		w.log.Warn("unexpected http status", slog.String("sensor", r.SensorID), slog.Int("status", resp.StatusCode))
	}
	return res
}

// verify decodes a response envelope and checks it was signed by the backend
// in answer to req.
func (w *Worker) verify(req *envelope.Envelope, body []byte) (*envelope.Envelope, error) {
	if len(w.opts.BackendPublicKey) == 0 {
		return nil, ErrNoBackendKey
	}

	resp, err := envelope.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not decode response: %w", err)
	}
	if err := envelope.Verify(resp, w.opts.BackendPublicKey, w.crypto); err != nil {
		return nil, err
	}
	if resp.PreviousSignature != req.Signature {
		return nil, ErrResponseChain
	}
	return resp, nil
}

func (w *Worker) record(r SensorReading, res AnchorResult) {
	switch res.Outcome {
	case OutcomeNotReady:
		w.counters.notReady.Inc()
		reason := identity.ReasonOf(res.Err)
		w.metrics.EnsureReadyFailed(string(reason))
		w.log.Warn("device not ready, discarding reading", "err", res.Err, slog.String("sensor", r.SensorID))
		return
	case OutcomeBuildFailed:
		w.counters.buildFailures.Inc()
		w.log.Error("failed to build envelope", "err", res.Err, slog.String("sensor", r.SensorID))
		return
	case OutcomeSendFailed:
		w.counters.sendFailures.Inc()
		w.log.Error("failed to anchor at backend", "err", res.Err, slog.String("sensor", r.SensorID))
		return
	case OutcomeDelivered:
		w.counters.delivered.Inc()
	case OutcomeRejected:
		w.counters.rejected.Inc()
	case OutcomeUnexpected:
		w.counters.unexpected.Inc()
	}

	if res.Class == ClassSuccess && !res.Verified {
		w.counters.verificationFailures.Inc()
		w.metrics.VerificationFailed()
	}
	w.metrics.Anchored(res.Class.String())
}

func (w *Worker) Stats() WorkerStats {
	c := &w.counters
	return WorkerStats{
		Processed:            c.processed.Load(),
		IdleTimeouts:         c.idle.Load(),
		NotReady:             c.notReady.Load(),
		BuildFailures:        c.buildFailures.Load(),
		SendFailures:         c.sendFailures.Load(),
		Delivered:            c.delivered.Load(),
		Rejected:             c.rejected.Load(),
		Unexpected:           c.unexpected.Load(),
		VerificationFailures: c.verificationFailures.Load(),
	}
}
