// Package codec decodes request bodies and encodes response values for
// typed handlers and action results.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrEmptyBody is returned when a request that must carry a body has none.
var ErrEmptyBody = errors.New("codec: empty request body")

// JSONCodec decodes T from and encodes U to JSON.
type JSONCodec[T any, U any] struct {
	// DisallowUnknownFields rejects request fields that T does not declare.
	DisallowUnknownFields bool
}

// NewJSONCodec creates a JSONCodec for request type T and response type U.
func NewJSONCodec[T any, U any]() *JSONCodec[T, U] {
	return &JSONCodec[T, U]{}
}

// ContentType returns the media type written by Encode.
func (c *JSONCodec[T, U]) ContentType() string {
	return "application/json; charset=utf-8"
}

// Decode reads a single JSON value from the request body.
func (c *JSONCodec[T, U]) Decode(r *http.Request) (T, error) {
	var data T
	if r.Body == nil || r.Body == http.NoBody {
		return data, ErrEmptyBody
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if c.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			return data, ErrEmptyBody
		}
		return data, fmt.Errorf("codec: decode json: %w", err)
	}
	return data, nil
}

// Encode writes resp as JSON. The status code is left to the caller; if none
// was written, net/http sends 200.
func (c *JSONCodec[T, U]) Encode(w http.ResponseWriter, resp U) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("codec: encode json: %w", err)
	}
	w.Header().Set("Content-Type", c.ContentType())
	_, err = w.Write(body)
	return err
}
