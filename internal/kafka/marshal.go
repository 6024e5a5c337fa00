package kafka

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/mennohie/wdm-project-group-9/internal/orders"
)

func EncodeEnvelope(env orders.Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// DecodeEnvelope fails with orders.ErrMalformedEnvelope on bad JSON or missing
// required fields. Whatever was parsed is still returned so the caller can
// report against the correlation id when one is present.
func DecodeEnvelope(b []byte) (orders.Envelope, error) {
	var env orders.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("%w: %v", orders.ErrMalformedEnvelope, err)
	}
	return env, env.Validate()
}

func EncodeStatus(rec orders.StatusRecord) ([]byte, error) {
	return json.Marshal(rec)
}

func DecodeStatus(b []byte) (orders.StatusRecord, error) {
	var rec orders.StatusRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, fmt.Errorf("decode status: %w", err)
	}
	if rec.CorrelationID == "" || !rec.Status.Valid() {
		return rec, fmt.Errorf("decode status: invalid record %+v", rec)
	}
	return rec, nil
}
