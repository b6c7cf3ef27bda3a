package model

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"net/http"
	"time"
)

// ErrStreamConsumed is returned when a body is read after it was streamed.
var ErrStreamConsumed = errors.New("stream already consumed")

// chunkSize is the read size used when streaming a body.
const chunkSize = 32 * 1024

// HopResponse is the raw result of one outbound hop.
// It is owned by the caller that issued the hop until rendered.
type HopResponse struct {
	StatusCode int
	URL        string
	Elapsed    time.Duration
	Header     http.Header
	Cookies    map[string]string
	Body       *Body
}

// Body is a response body that can be buffered or streamed once.
// It is not safe for concurrent use.
type Body struct {
	rc       io.ReadCloser
	buf      []byte
	buffered bool
	consumed bool
	closed   bool
}

// NewBody wraps rc. A nil rc is treated as an empty body.
func NewBody(rc io.ReadCloser) *Body {
	if rc == nil {
		rc = http.NoBody
	}
	return &Body{rc: rc}
}

// Bytes reads the whole body and caches it. Further calls return the cached
// bytes. It fails with ErrStreamConsumed after Chunks has drained the body.
func (b *Body) Bytes() ([]byte, error) {
	if b.buffered {
		return b.buf, nil
	}
	if b.consumed {
		return nil, ErrStreamConsumed
	}
	b.consumed = true
	defer b.Close()

	data, err := io.ReadAll(b.rc)
	if err != nil {
		return nil, err
	}
	b.buf, b.buffered = data, true
	return data, nil
}

// Chunks yields the body as it arrives from the network. The sequence can be
// ranged over once; a second pass yields ErrStreamConsumed. A buffered body
// is yielded as a single chunk.
func (b *Body) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if b.buffered {
			if len(b.buf) > 0 {
				yield(b.buf, nil)
			}
			return
		}
		if b.consumed {
			yield(nil, ErrStreamConsumed)
			return
		}
		b.consumed = true
		defer b.Close()

		buf := make([]byte, chunkSize)
		for {
			n, err := b.rc.Read(buf)
			if n > 0 {
				if !yield(bytes.Clone(buf[:n]), nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// Close releases the underlying connection. It is safe to call repeatedly.
func (b *Body) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.rc.Close()
}
