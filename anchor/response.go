package anchor

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/ruteri/sensor-anchoring-gateway/envelope"
	"go.uber.org/atomic"
)

// ResponseHandler inspects a verified backend response.
type ResponseHandler interface {
	HandleResponse(ctx context.Context, sensor string, resp *envelope.Envelope)
}

// DiagnosticsHandler dumps response payloads at debug level.
type DiagnosticsHandler struct {
	log *slog.Logger
}

func NewDiagnosticsHandler(log *slog.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{log: log}
}

func (h *DiagnosticsHandler) HandleResponse(ctx context.Context, sensor string, resp *envelope.Envelope) {
	if !h.log.Enabled(ctx, slog.LevelDebug) {
		return
	}
	h.log.DebugContext(ctx, "response payload",
		slog.String("sensor", sensor),
		slog.Int("payload_type", int(resp.PayloadType)),
		slog.String("dump", hex.Dump(resp.Payload)))
}

// IntervalHandler applies the "i" configuration key to the producer cadence.
type IntervalHandler struct {
	interval *atomic.Duration
	log      *slog.Logger
}

func NewIntervalHandler(interval *atomic.Duration, log *slog.Logger) *IntervalHandler {
	return &IntervalHandler{interval: interval, log: log}
}

func (h *IntervalHandler) HandleResponse(ctx context.Context, sensor string, resp *envelope.Envelope) {
	if resp.PayloadType != envelope.PayloadResponse {
		return
	}

	cfg, err := envelope.DecodeResponseConfig(resp.Payload)
	if err != nil {
		h.log.Warn("unknown configuration received", "err", err, slog.String("sensor", sensor))
		return
	}
	if cfg.Interval == nil || *cfg.Interval == 0 {
		return
	}

	next := time.Duration(*cfg.Interval) * time.Second
	if prev := h.interval.Swap(next); prev != next {
		h.log.Info("interval updated", slog.Duration("interval", next), slog.Duration("previous", prev))
	}
}
