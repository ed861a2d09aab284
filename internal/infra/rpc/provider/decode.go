package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Validator is implemented by result schemas that check their own shape.
type Validator interface {
	Validate() error
}

// ErrEmptyBody is returned when a JSON result is expected but none was sent.
var ErrEmptyBody = errors.New("empty response body")

// DecodeJSON returns a Decoder that unmarshals into T and validates it.
func DecodeJSON[T any]() Decoder {
	return func(resp Response) (any, error) {
		var out T
		if err := decodeInto(resp.Body, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func decodeInto(body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return ErrEmptyBody
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid response shape: %w", err)
		}
	}
	return nil
}

func rawDecoder(resp Response) (any, error) {
	return json.RawMessage(resp.Body), nil
}
