// Package protocol defines the JSON wire types of the kernel IPC admin API.
// Byte payloads travel as standard base64 strings (encoding/json's []byte
// encoding); timestamps are Unix milliseconds.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ContentType is the media type of every request and response body.
const ContentType = "application/json"

// CreateEndpointRequest is the body of POST /v1/endpoints. An empty name
// creates an anonymous endpoint.
type CreateEndpointRequest struct {
	Name string `json:"name,omitempty"`
}

// CreateEndpointResponse reports the port of a newly created endpoint.
type CreateEndpointResponse struct {
	Port uint64 `json:"port"`
	Name string `json:"name,omitempty"`
}

// SendRequest is the body of POST /v1/endpoints/{port}/messages.
// Sender 0 means "no real sender".
type SendRequest struct {
	Sender uint64 `json:"sender"`
	Data   []byte `json:"data"`
}

// Message is one delivered message.
type Message struct {
	Sender uint64 `json:"sender"`
	Data   []byte `json:"data"`
}

// EndpointInfo is a snapshot of one live endpoint.
type EndpointInfo struct {
	Port      uint64   `json:"port"`
	Name      string   `json:"name,omitempty"`
	Pending   int      `json:"pending"`
	Waiting   []uint64 `json:"waiting"`
	CreatedAt int64    `json:"created_at"`
}

// ListEndpointsResponse is the body of GET /v1/endpoints. Truncated is set
// when more endpoints exist than the listing limit.
type ListEndpointsResponse struct {
	Endpoints []EndpointInfo `json:"endpoints"`
	Truncated bool           `json:"truncated,omitempty"`
}

// ResolveResponse is the body of GET /v1/names/{name}.
type ResolveResponse struct {
	Name string `json:"name"`
	Port uint64 `json:"port"`
}

// ErrTrailingData is returned by Decode when the body holds more than one value.
var ErrTrailingData = errors.New("trailing data after JSON value")

// Decode reads exactly one JSON value from r into v, rejecting unknown fields.
func Decode(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if dec.More() {
		return fmt.Errorf("decode %T: %w", v, ErrTrailingData)
	}
	return nil
}
