// Package model defines the types threaded through the relay chain.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/url"
	"slices"
	"time"
)

// Method is an HTTP method accepted in a Descriptor.
type Method string

// Supported methods.
const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodHead, MethodOptions:
		return true
	}
	return false
}

// SendsJSON reports whether the payload for m is encoded as a JSON body.
// All other methods send it as a form or raw body.
func (m Method) SendsJSON() bool {
	return m == MethodPost || m == MethodPut || m == MethodPatch
}

// Timeout bounds, in milliseconds.
const (
	MinTimeoutMS     = 100
	MaxTimeoutMS     = 120_000
	DefaultTimeoutMS = 10_000
)

// Descriptor is a relay request. It is decoded once at ingress and, when
// forwarded, copied with a shorter chain; a hop never modifies the value it
// received.
type Descriptor struct {
	Method      Method            `json:"method"`
	URL         string            `json:"url"`
	Params      map[string]string `json:"params"`
	Headers     map[string]string `json:"headers"`
	Data        json.RawMessage   `json:"data"`
	Cookies     map[string]string `json:"cookies"`
	Impersonate string            `json:"impersonate"`
	Proxies     map[string]string `json:"proxies"`
	TimeoutMS   int               `json:"timeout_ms"`
	ReturnData  bool              `json:"return_data"`
	Stream      bool              `json:"stream"`
	APIKey      string            `json:"apikey"`
	Chain       []string          `json:"proxy_chain"`
}

// ValidationError describes a descriptor that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// DecodeDescriptor reads a JSON descriptor from r, fills defaults for absent
// fields and validates the result.
func DecodeDescriptor(r io.Reader) (*Descriptor, error) {
	d := Descriptor{
		TimeoutMS:  DefaultTimeoutMS,
		ReturnData: true,
	}
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, &ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	if d.Chain == nil {
		d.Chain = []string{}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks field constraints.
func (d *Descriptor) Validate() error {
	if !d.Method.Valid() {
		return &ValidationError{Field: "method", Reason: fmt.Sprintf("unsupported method %q", d.Method)}
	}
	if err := validateURL(d.URL); err != nil {
		return &ValidationError{Field: "url", Reason: err.Error()}
	}
	if d.TimeoutMS < MinTimeoutMS || d.TimeoutMS > MaxTimeoutMS {
		return &ValidationError{
			Field:  "timeout_ms",
			Reason: fmt.Sprintf("must be between %d and %d; got %d", MinTimeoutMS, MaxTimeoutMS, d.TimeoutMS),
		}
	}
	for i, hop := range d.Chain {
		if hop == "" {
			return &ValidationError{Field: fmt.Sprintf("proxy_chain[%d]", i), Reason: "empty relay URL"}
		}
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https; got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// Timeout returns the total hop timeout.
func (d *Descriptor) Timeout() time.Duration {
	return time.Duration(d.TimeoutMS) * time.Millisecond
}

// HasData reports whether a payload was supplied.
func (d *Descriptor) HasData() bool {
	trimmed := bytes.TrimSpace(d.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// SplitChain returns the next relay and the relays after it.
// ok is false when the chain is empty.
func (d *Descriptor) SplitChain() (head string, tail []string, ok bool) {
	if len(d.Chain) == 0 {
		return "", nil, false
	}
	return d.Chain[0], d.Chain[1:], true
}

// WithChain returns a deep copy of d whose chain is replaced by chain.
func (d *Descriptor) WithChain(chain []string) *Descriptor {
	next := *d
	next.Params = maps.Clone(d.Params)
	next.Headers = maps.Clone(d.Headers)
	next.Cookies = maps.Clone(d.Cookies)
	next.Proxies = maps.Clone(d.Proxies)
	next.Data = slices.Clone(d.Data)
	next.Chain = append([]string{}, chain...)
	return &next
}
