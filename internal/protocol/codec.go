package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Codec serializes envelopes for the wire.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSONCodec is the codec used by the batch endpoint.
//
// Numbers landing in untyped (any) fields are kept as json.Number so values
// survive a decode/encode cycle without float coercion.
type JSONCodec struct{}

// Encode marshals v to JSON.
func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode unmarshals JSON data into v.
func (JSONCodec) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// DecodeResponse decodes a response envelope whose results are of type T.
// T may be a struct, a slice or a map (object-keyed payloads such as
// building-id to building).
func DecodeResponse[T any](c Codec, data []byte) (*Response[T], error) {
	var resp Response[T]
	if err := c.Decode(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response envelope: %w", err)
	}
	return &resp, nil
}
