package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecodeDescriptor_Defaults(t *testing.T) {
	d, err := DecodeDescriptor(strings.NewReader(`{"method":"GET","url":"https://example.com"}`))
	if err != nil {
		t.Fatalf("DecodeDescriptor() error = %v", err)
	}
	if d.TimeoutMS != DefaultTimeoutMS {
		t.Errorf("TimeoutMS = %d, want %d", d.TimeoutMS, DefaultTimeoutMS)
	}
	if !d.ReturnData {
		t.Error("ReturnData = false, want true")
	}
	if d.Stream {
		t.Error("Stream = true, want false")
	}
	if d.Chain == nil || len(d.Chain) != 0 {
		t.Errorf("Chain = %v, want empty non-nil slice", d.Chain)
	}
	if d.HasData() {
		t.Error("HasData() = true, want false")
	}
}

func TestDecodeDescriptor_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"malformed JSON", `{"method":`, "body"},
		{"unknown method", `{"method":"TRACE","url":"https://example.com"}`, "method"},
		{"lowercase method", `{"method":"get","url":"https://example.com"}`, "method"},
		{"missing url", `{"method":"GET"}`, "url"},
		{"relative url", `{"method":"GET","url":"/path"}`, "url"},
		{"ftp url", `{"method":"GET","url":"ftp://example.com"}`, "url"},
		{"timeout too low", `{"method":"GET","url":"https://example.com","timeout_ms":99}`, "timeout_ms"},
		{"timeout too high", `{"method":"GET","url":"https://example.com","timeout_ms":120001}`, "timeout_ms"},
		{"empty relay", `{"method":"GET","url":"https://example.com","proxy_chain":["https://r1",""]}`, "proxy_chain[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDescriptor(strings.NewReader(tt.body))
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestDecodeDescriptor_TimeoutBounds(t *testing.T) {
	for _, ms := range []int{MinTimeoutMS, MaxTimeoutMS} {
		body := `{"method":"GET","url":"https://example.com","timeout_ms":` + itoa(ms) + `}`
		d, err := DecodeDescriptor(strings.NewReader(body))
		if err != nil {
			t.Fatalf("timeout_ms=%d: error = %v", ms, err)
		}
		if d.Timeout() != time.Duration(ms)*time.Millisecond {
			t.Errorf("Timeout() = %v", d.Timeout())
		}
	}
}

func TestMethod_SendsJSON(t *testing.T) {
	tests := []struct {
		method Method
		want   bool
	}{
		{MethodGet, false},
		{MethodPost, true},
		{MethodPut, true},
		{MethodDelete, false},
		{MethodPatch, true},
		{MethodHead, false},
		{MethodOptions, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			if got := tt.method.SendsJSON(); got != tt.want {
				t.Errorf("SendsJSON() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasData(t *testing.T) {
	tests := []struct {
		data string
		want bool
	}{
		{"", false},
		{"null", false},
		{" null ", false},
		{`{"x":1}`, true},
		{`"raw"`, true},
		{`0`, true},
	}
	for _, tt := range tests {
		d := Descriptor{Data: json.RawMessage(tt.data)}
		if got := d.HasData(); got != tt.want {
			t.Errorf("HasData(%q) = %v, want %v", tt.data, got, tt.want)
		}
	}
}

func TestWithChain_DoesNotMutateOriginal(t *testing.T) {
	orig := &Descriptor{
		Method:  MethodPost,
		URL:     "https://target",
		Headers: map[string]string{"X-A": "1"},
		Data:    json.RawMessage(`{"x":1}`),
		Chain:   []string{"https://r1", "https://r2", "https://r3"},
	}

	head, tail, ok := orig.SplitChain()
	if !ok || head != "https://r1" {
		t.Fatalf("SplitChain() = %q, %v, %v", head, tail, ok)
	}

	next := orig.WithChain(tail)
	next.Headers["X-A"] = "changed"
	next.Chain[0] = "mutated"

	if len(orig.Chain) != 3 || orig.Chain[1] != "https://r2" {
		t.Errorf("original chain changed: %v", orig.Chain)
	}
	if orig.Headers["X-A"] != "1" {
		t.Errorf("original headers changed: %v", orig.Headers)
	}
	if len(next.Chain) != 2 {
		t.Errorf("len(next.Chain) = %d, want 2", len(next.Chain))
	}
}

func TestWithChain_EmptyEncodesAsArray(t *testing.T) {
	d := &Descriptor{Method: MethodGet, URL: "https://example.com", Chain: []string{"https://r1"}}
	_, tail, _ := d.SplitChain()

	raw, err := json.Marshal(d.WithChain(tail))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"proxy_chain":[]`) {
		t.Errorf("encoded = %s, want proxy_chain as empty array", raw)
	}
}

func TestSplitChain_Empty(t *testing.T) {
	d := &Descriptor{Chain: []string{}}
	if _, _, ok := d.SplitChain(); ok {
		t.Error("SplitChain() ok = true for empty chain")
	}
}

func itoa(n int) string {
	raw, _ := json.Marshal(n)
	return string(raw)
}
