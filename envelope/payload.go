package envelope

import (
	"fmt"
	"time"

	"github.com/ruteri/sensor-anchoring-gateway/codec"
)

// Reading is the payload of an anchored sensor measurement.
type Reading struct {
	Values    []int32 `cbor:"v"`
	Timestamp int64   `cbor:"t"`
}

// NewReading captures values at time at.
func NewReading(values []int32, at time.Time) Reading {
	return Reading{Values: values, Timestamp: at.Unix()}
}

// Encode returns the CBOR payload bytes.
func (r Reading) Encode() ([]byte, error) {
	return codec.Marshal(r)
}

// DecodeReading parses a PayloadReading payload.
func DecodeReading(data []byte) (Reading, error) {
	var r Reading
	if err := codec.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("could not decode reading: %w", err)
	}
	return r, nil
}

// ResponseConfig is the configuration a backend may push back in its answer.
type ResponseConfig struct {
	// Interval is the requested measurement cadence in seconds.
	Interval *uint32 `cbor:"i,omitempty"`
}

// Encode returns the CBOR payload bytes.
func (c ResponseConfig) Encode() ([]byte, error) {
	return codec.Marshal(c)
}

// DecodeResponseConfig parses a PayloadResponse payload.
func DecodeResponseConfig(data []byte) (ResponseConfig, error) {
	var c ResponseConfig
	if len(data) == 0 {
		return c, nil
	}
	if err := codec.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("could not decode response config: %w", err)
	}
	return c, nil
}
