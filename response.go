package impersonate

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/andybalholm/brotli"
	http "github.com/bogdanfinn/fhttp"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// MaxStreamBufferSize is the longest line a stream callback receives.
const MaxStreamBufferSize = 512 * 1024

// StreamCallback receives one line of a streamed body. Returning an error
// stops the stream.
type StreamCallback func([]byte) error

// StreamErrCallback receives read errors of a streamed body.
type StreamErrCallback func(error)

// StreamDoneCallback runs after a streamed body ended.
type StreamDoneCallback func()

// Response represents an HTTP response.
type Response struct {
	stream      StreamCallback
	streamErr   StreamErrCallback
	streamDone  StreamDoneCallback
	cancel      context.CancelFunc
	RawResponse *http.Response
	BodyBytes   []byte
	Context     context.Context
	Client      *Client
}

// NewResponse wraps resp. The body is decoded according to its
// Content-Encoding and buffered, or handed to stream line by line.
func NewResponse(
	ctx context.Context,
	resp *http.Response,
	client *Client,
	stream StreamCallback,
	streamErr StreamErrCallback,
	streamDone StreamDoneCallback,
) (*Response, error) {
	response := &Response{
		RawResponse: resp,
		Context:     ctx,
		stream:      stream,
		streamErr:   streamErr,
		streamDone:  streamDone,
		Client:      client,
	}

	body, err := decodeBody(resp)
	if err != nil {
		resp.Body.Close() //nolint:errcheck
		return nil, err
	}
	resp.Body = body

	if response.stream != nil {
		go response.handleStream()
		return response, nil
	}
	if err := response.handleNonStream(); err != nil {
		return nil, err
	}
	return response, nil
}

// decodedBody closes the decoder and the wire body together.
type decodedBody struct {
	io.Reader
	closers []func() error
}

func (d *decodedBody) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// decodeBody wraps the body in decoders for each Content-Encoding, applied
// in reverse order. The encoding headers are removed once decoded.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	var encodings []string
	for _, v := range resp.Header.Values("Content-Encoding") {
		for _, e := range strings.Split(v, ",") {
			if e = strings.ToLower(strings.TrimSpace(e)); e != "" && e != "identity" {
				encodings = append(encodings, e)
			}
		}
	}
	if len(encodings) == 0 || resp.Request != nil && resp.Request.Method == http.MethodHead {
		return resp.Body, nil
	}

	out := &decodedBody{Reader: resp.Body, closers: []func() error{resp.Body.Close}}
	for _, enc := range slices.Backward(encodings) {
		switch enc {
		case "gzip", "x-gzip":
			zr, err := gzip.NewReader(out.Reader)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrResponseReadFailed, err)
			}
			out.Reader = zr
			out.closers = append(out.closers, zr.Close)
		case "deflate":
			rc, err := deflateReader(out.Reader)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrResponseReadFailed, err)
			}
			out.Reader = rc
			out.closers = append(out.closers, rc.Close)
		case "br":
			out.Reader = brotli.NewReader(out.Reader)
		case "zstd":
			zr, err := zstd.NewReader(out.Reader)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrResponseReadFailed, err)
			}
			out.Reader = zr
			out.closers = append(out.closers, func() error { zr.Close(); return nil })
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentEncoding, enc)
		}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return out, nil
}

// deflateReader accepts zlib-wrapped deflate, which is what servers send,
// and raw deflate streams.
func deflateReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil {
		return nil, err
	}
	if head[0]&0x0f == 8 && (uint16(head[0])<<8|uint16(head[1]))%31 == 0 {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

// handleStream processes the HTTP response as a stream.
func (r *Response) handleStream() {
	defer func() {
		if err := r.RawResponse.Body.Close(); err != nil && r.Client.Logger != nil {
			r.Client.Logger.Errorf("failed to close response body: %v", err)
		}
		if r.cancel != nil {
			r.cancel()
		}
	}()

	scanner := bufio.NewScanner(r.RawResponse.Body)
	scanBuf := make([]byte, 0, MaxStreamBufferSize)
	scanner.Buffer(scanBuf, MaxStreamBufferSize)

	for scanner.Scan() {
		if err := r.stream(scanner.Bytes()); err != nil {
			break
		}
	}

	if err := scanner.Err(); err != nil && r.streamErr != nil {
		r.streamErr(err)
	}

	if r.streamDone != nil {
		r.streamDone()
	}
}

// handleNonStream reads the decoded body into a pooled buffer.
func (r *Response) handleNonStream() error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	_, err := buf.ReadFrom(r.RawResponse.Body)
	_ = r.RawResponse.Body.Close()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResponseReadFailed, err)
	}

	// the pooled buffer is reused once returned
	r.BodyBytes = slices.Clone(buf.B)
	r.RawResponse.Body = io.NopCloser(bytes.NewReader(r.BodyBytes))
	return nil
}

// StatusCode returns the HTTP status code of the response.
func (r *Response) StatusCode() int {
	return r.RawResponse.StatusCode
}

// Status returns the status string of the response (e.g., "200 OK").
func (r *Response) Status() string {
	return r.RawResponse.Status
}

// Proto returns the protocol the response arrived over, e.g. "HTTP/2.0".
func (r *Response) Proto() string {
	return r.RawResponse.Proto
}

// Header returns the response headers.
func (r *Response) Header() http.Header {
	return r.RawResponse.Header
}

// Cookies parses and returns the cookies set in the response.
func (r *Response) Cookies() []*http.Cookie {
	return r.RawResponse.Cookies()
}

// Location returns the URL redirected address.
func (r *Response) Location() (*url.URL, error) {
	return r.RawResponse.Location()
}

// URL returns the request URL that elicited the response.
func (r *Response) URL() *url.URL {
	return r.RawResponse.Request.URL
}

// ContentType returns the value of the "Content-Type" header.
func (r *Response) ContentType() string {
	return r.Header().Get("Content-Type")
}

// IsContentType checks if the response Content-Type header matches a given content type.
func (r *Response) IsContentType(contentType string) bool {
	return strings.Contains(r.ContentType(), contentType)
}

// IsJSON checks if the response Content-Type indicates JSON.
func (r *Response) IsJSON() bool {
	return r.IsContentType("application/json")
}

// IsXML checks if the response Content-Type indicates XML.
func (r *Response) IsXML() bool {
	return r.IsContentType("application/xml") || r.IsContentType("text/xml")
}

// IsYAML checks if the response Content-Type indicates YAML.
func (r *Response) IsYAML() bool {
	return r.IsContentType("application/yaml") || r.IsContentType("application/x-yaml")
}

// ContentLength returns the length of the decoded body.
func (r *Response) ContentLength() int {
	return len(r.BodyBytes)
}

// IsEmpty checks if the response body is empty.
func (r *Response) IsEmpty() bool {
	return r.ContentLength() == 0
}

// IsSuccess checks if the response status code indicates success (200 - 299).
func (r *Response) IsSuccess() bool {
	code := r.StatusCode()
	return code >= 200 && code <= 299
}

// IsError checks if the response status code indicates an error (>= 400).
func (r *Response) IsError() bool {
	return r.StatusCode() >= 400
}

// IsClientError checks if the response status code indicates a client error (400 - 499).
func (r *Response) IsClientError() bool {
	code := r.StatusCode()
	return code >= 400 && code < 500
}

// IsServerError checks if the response status code indicates a server error (>= 500).
func (r *Response) IsServerError() bool {
	return r.StatusCode() >= 500
}

// IsRedirect checks if the response status code indicates a redirect (300 - 399).
func (r *Response) IsRedirect() bool {
	code := r.StatusCode()
	return code >= 300 && code < 400
}

// Body returns the response body as a byte slice.
func (r *Response) Body() []byte {
	return r.BodyBytes
}

// String returns the response body as a string.
func (r *Response) String() string {
	return string(r.BodyBytes)
}

// Scan attempts to unmarshal the response body based on its content type.
func (r *Response) Scan(v any) error {
	switch {
	case r.IsJSON():
		return r.ScanJSON(v)
	case r.IsXML():
		return r.ScanXML(v)
	case r.IsYAML():
		return r.ScanYAML(v)
	}

	return fmt.Errorf("%w: %s", ErrUnsupportedContentType, r.ContentType())
}

// ScanJSON unmarshals the response body into a struct via JSON decoding.
func (r *Response) ScanJSON(v any) error {
	if r.BodyBytes == nil {
		return nil
	}
	return r.Client.JSONDecoder.Decode(r.BodyBytes, v)
}

// ScanXML unmarshals the response body into a struct via XML decoding.
func (r *Response) ScanXML(v any) error {
	if r.BodyBytes == nil {
		return nil
	}
	return r.Client.XMLDecoder.Decode(r.BodyBytes, v)
}

// ScanYAML unmarshals the response body into a struct via YAML decoding.
func (r *Response) ScanYAML(v any) error {
	if r.BodyBytes == nil {
		return nil
	}
	return r.Client.YAMLDecoder.Decode(r.BodyBytes, v)
}

const DirPermissions = 0o750

// Save saves the response body to a file path or io.Writer.
func (r *Response) Save(v any) error {
	switch p := v.(type) {
	case string:
		return r.saveToFile(p)
	case io.Writer:
		return r.saveToWriter(p)
	default:
		return ErrNotSupportSaveMethod
	}
}

func (r *Response) saveToFile(path string) error {
	file := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(file), DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	outFile, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := outFile.Close(); err != nil && r.Client.Logger != nil {
			r.Client.Logger.Errorf("failed to close file: %v", err)
		}
	}()

	if _, err = outFile.Write(r.Body()); err != nil {
		return fmt.Errorf("failed to write response body to file: %w", err)
	}
	return nil
}

func (r *Response) saveToWriter(w io.Writer) error {
	if _, err := w.Write(r.Body()); err != nil {
		return fmt.Errorf("failed to write response body to io.Writer: %w", err)
	}

	if wc, ok := w.(io.WriteCloser); ok {
		if err := wc.Close(); err != nil && r.Client.Logger != nil {
			r.Client.Logger.Errorf("failed to close io.Writer: %v", err)
		}
	}
	return nil
}

// Lines returns an iterator over the lines of a buffered body.
func (r *Response) Lines() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		if r.BodyBytes == nil {
			return
		}

		scanner := bufio.NewScanner(bytes.NewReader(r.BodyBytes))
		for scanner.Scan() {
			if !yield(scanner.Bytes()) {
				break
			}
		}
	}
}

// Close closes the response body.
func (r *Response) Close() error {
	return r.RawResponse.Body.Close()
}
