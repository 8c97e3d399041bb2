package impersonate

import (
	"slices"

	"github.com/valyala/bytebufferpool"
)

var bufferPool bytebufferpool.Pool

// GetBuffer retrieves a buffer from the pool.
func GetBuffer() *bytebufferpool.ByteBuffer {
	return bufferPool.Get()
}

// PutBuffer returns a buffer to the pool.
func PutBuffer(b *bytebufferpool.ByteBuffer) {
	bufferPool.Put(b)
}

// withBuffer runs fill on a pooled buffer and returns a copy of what it
// wrote. The buffer goes back to the pool before returning.
func withBuffer(fill func(buf *bytebufferpool.ByteBuffer) error) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)
	if err := fill(buf); err != nil {
		return nil, err
	}
	return slices.Clone(buf.B), nil
}
