package tlsconf

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	utls "github.com/refraction-networking/utls"
	"github.com/valyala/bytebufferpool"
)

// CertCompressor is a certificate compression algorithm (RFC 8879)
// advertised in the ClientHello. Both functions are required.
type CertCompressor struct {
	ID         utls.CertCompressionAlgo
	Compress   func([]byte) ([]byte, error)
	Decompress func([]byte) ([]byte, error)
}

// Brotli returns the brotli certificate compressor used by Chromium.
func Brotli() CertCompressor {
	return CertCompressor{
		ID: utls.CertCompressionBrotli,
		Compress: func(in []byte) ([]byte, error) {
			return compressWith(in, func(w io.Writer) io.WriteCloser {
				return brotli.NewWriter(w)
			})
		},
		Decompress: func(in []byte) ([]byte, error) {
			return readAll(brotli.NewReader(bytes.NewReader(in)))
		},
	}
}

// Zlib returns the zlib certificate compressor used by Firefox and Safari.
func Zlib() CertCompressor {
	return CertCompressor{
		ID: utls.CertCompressionZlib,
		Compress: func(in []byte) ([]byte, error) {
			return compressWith(in, func(w io.Writer) io.WriteCloser {
				return zlib.NewWriter(w)
			})
		},
		Decompress: func(in []byte) ([]byte, error) {
			r, err := zlib.NewReader(bytes.NewReader(in))
			if err != nil {
				return nil, err
			}
			defer r.Close() //nolint:errcheck
			return readAll(r)
		},
	}
}

// Zstd returns the zstd certificate compressor used by Firefox.
func Zstd() CertCompressor {
	return CertCompressor{
		ID: utls.CertCompressionZstd,
		Compress: func(in []byte) ([]byte, error) {
			enc, err := zstd.NewWriter(nil)
			if err != nil {
				return nil, err
			}
			defer enc.Close() //nolint:errcheck
			return enc.EncodeAll(in, nil), nil
		},
		Decompress: func(in []byte) ([]byte, error) {
			dec, err := zstd.NewReader(nil)
			if err != nil {
				return nil, err
			}
			defer dec.Close()
			return dec.DecodeAll(in, nil)
		},
	}
}

func compressWith(in []byte, newWriter func(io.Writer) io.WriteCloser) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	w := newWriter(buf)
	if _, err := w.Write(in); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}

func readAll(r io.Reader) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}
