package model

import (
	"errors"
	"io"
	"strings"
	"testing"
)

type trackingCloser struct {
	io.Reader
	closed int
}

func (t *trackingCloser) Close() error {
	t.closed++
	return nil
}

func TestBody_Bytes(t *testing.T) {
	rc := &trackingCloser{Reader: strings.NewReader("hello")}
	b := NewBody(rc)

	got, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Bytes() = %q, want %q", got, "hello")
	}

	again, err := b.Bytes()
	if err != nil || string(again) != "hello" {
		t.Errorf("second Bytes() = %q, %v", again, err)
	}
	if rc.closed != 1 {
		t.Errorf("closed %d times, want 1", rc.closed)
	}
}

func TestBody_ChunksSinglePass(t *testing.T) {
	b := NewBody(io.NopCloser(strings.NewReader(strings.Repeat("a", chunkSize+10))))

	var total int
	for chunk, err := range b.Chunks() {
		if err != nil {
			t.Fatalf("first pass error = %v", err)
		}
		total += len(chunk)
	}
	if total != chunkSize+10 {
		t.Errorf("streamed %d bytes, want %d", total, chunkSize+10)
	}

	var secondErr error
	for _, err := range b.Chunks() {
		secondErr = err
	}
	if !errors.Is(secondErr, ErrStreamConsumed) {
		t.Errorf("second pass error = %v, want ErrStreamConsumed", secondErr)
	}

	if _, err := b.Bytes(); !errors.Is(err, ErrStreamConsumed) {
		t.Errorf("Bytes() after stream error = %v, want ErrStreamConsumed", err)
	}
}

func TestBody_ChunksAfterBytes(t *testing.T) {
	b := NewBody(io.NopCloser(strings.NewReader("cached")))
	if _, err := b.Bytes(); err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	var got strings.Builder
	for chunk, err := range b.Chunks() {
		if err != nil {
			t.Fatalf("Chunks() error = %v", err)
		}
		got.Write(chunk)
	}
	if got.String() != "cached" {
		t.Errorf("Chunks() = %q, want %q", got.String(), "cached")
	}
}

func TestBody_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	b := NewBody(io.NopCloser(io.MultiReader(strings.NewReader("part"), errReader{boom})))

	var gotErr error
	for _, err := range b.Chunks() {
		if err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, boom) {
		t.Errorf("error = %v, want %v", gotErr, boom)
	}
}

func TestBody_NilReader(t *testing.T) {
	b := NewBody(nil)
	got, err := b.Bytes()
	if err != nil || len(got) != 0 {
		t.Errorf("Bytes() = %q, %v; want empty", got, err)
	}
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
