package banyantask

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// Encoder defines the interface for task payload serialization.
// Stores treat the result as opaque bytes.
type Encoder interface {
	// Encode serializes a task value to bytes.
	Encode(any) ([]byte, error)
	// Decode deserializes a stored payload into a task value.
	Decode([]byte, any) error
}

// JSONEncoder is the default Encoder.
// It uses standard library for encoding and sonic for decoding.
type JSONEncoder struct{}

// Encode serializes a value to JSON using standard library.
func (*JSONEncoder) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode deserializes JSON bytes using sonic. A null or empty payload
// leaves v at its zero value so field-less tasks round-trip.
func (*JSONEncoder) Decode(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return sonic.Unmarshal(data, v)
}

var defaultEncoder Encoder = &JSONEncoder{}
