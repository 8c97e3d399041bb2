package assemble

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrBodyConsumed is returned when a streaming body is opened a second time.
var ErrBodyConsumed = errors.New("assemble: streaming body already consumed")

type bodyKind uint8

const (
	kindNone bodyKind = iota
	kindBytes
	kindReader
)

// Body is the payload of an outgoing request. In-memory bodies know their
// exact length and can be replayed on retry; streaming bodies are read once
// and only know their length when it was declared with Sized.
type Body struct {
	kind bodyKind
	data []byte
	r    *onceReader
	size int64
}

// NoBody is the empty body of requests that carry no payload. It never
// produces a content-length header.
var NoBody = Body{size: -1}

// Bytes returns an in-memory body. A nil slice is an empty body of
// length zero, unlike NoBody.
func Bytes(b []byte) Body {
	return Body{kind: kindBytes, data: b, size: int64(len(b))}
}

// String returns an in-memory body holding s.
func String(s string) Body {
	return Bytes([]byte(s))
}

// Reader returns a streaming body of unknown length.
func Reader(r io.Reader) Body {
	return Sized(r, -1)
}

// Sized returns a streaming body of exactly n bytes. A negative n marks
// the length as unknown.
func Sized(r io.Reader, n int64) Body {
	if n < 0 {
		n = -1
	}
	return Body{kind: kindReader, r: &onceReader{r: r}, size: n}
}

// Len returns the exact body length and whether it is known.
func (b Body) Len() (int64, bool) {
	if b.kind == kindNone || b.size < 0 {
		return 0, false
	}
	return b.size, true
}

// IsNone reports whether b is NoBody.
func (b Body) IsNone() bool {
	return b.kind == kindNone
}

// Replayable reports whether Open can be called more than once.
func (b Body) Replayable() bool {
	return b.kind != kindReader
}

// Bytes returns the in-memory payload, or nil for streaming bodies.
func (b Body) Bytes() []byte {
	return b.data
}

// Open returns a reader over the payload. In-memory bodies return a fresh
// reader each time; streaming bodies can be opened once.
func (b Body) Open() (io.ReadCloser, error) {
	switch b.kind {
	case kindBytes:
		return io.NopCloser(bytes.NewReader(b.data)), nil
	case kindReader:
		return b.r.open()
	default:
		return io.NopCloser(strings.NewReader("")), nil
	}
}

type onceReader struct {
	mu     sync.Mutex
	r      io.Reader
	opened bool
}

func (o *onceReader) open() (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.opened {
		return nil, ErrBodyConsumed
	}
	o.opened = true
	if rc, ok := o.r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(o.r), nil
}
