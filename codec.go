package impersonate

import (
	"encoding/xml"
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/goccy/go-yaml"
	"github.com/valyala/bytebufferpool"
)

// Content types set by the body helpers.
const (
	ContentTypeJSON = "application/json;charset=utf-8"
	ContentTypeXML  = "application/xml;charset=utf-8"
	ContentTypeYAML = "application/yaml;charset=utf-8"
	ContentTypeForm = "application/x-www-form-urlencoded"
	ContentTypeText = "text/plain;charset=utf-8"
)

// Encoder turns a value into a request payload. Payloads are held in
// memory so that retries and protocol fallback can resend them.
type Encoder interface {
	Encode(v any) ([]byte, error)
	ContentType() string
}

// Decoder unmarshals a buffered response body.
type Decoder interface {
	Decode(data []byte, v any) error
}

// Codec pairs a marshal function with its content type.
type Codec struct {
	MarshalFunc   func(v any) ([]byte, error)
	UnmarshalFunc func(data []byte, v any) error
	Type          string
}

// Encode marshals v into a pooled buffer and returns a private copy.
func (c *Codec) Encode(v any) ([]byte, error) {
	return withBuffer(func(buf *bytebufferpool.ByteBuffer) error {
		data, err := c.MarshalFunc(v)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEncodingFailed, err)
		}
		_, err = buf.Write(data)
		return err
	})
}

// ContentType returns the media type of encoded payloads.
func (c *Codec) ContentType() string {
	return c.Type
}

// Decode unmarshals data into v.
func (c *Codec) Decode(data []byte, v any) error {
	if err := c.UnmarshalFunc(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", c.Type, err)
	}
	return nil
}

func jsonMarshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

var (
	// DefaultJSONCodec marshals with encoding/json/v2 semantics.
	DefaultJSONCodec = &Codec{MarshalFunc: jsonMarshal, UnmarshalFunc: jsonUnmarshal, Type: ContentTypeJSON}

	// DefaultYAMLCodec uses goccy/go-yaml.
	DefaultYAMLCodec = &Codec{MarshalFunc: yaml.Marshal, UnmarshalFunc: yaml.Unmarshal, Type: ContentTypeYAML}

	DefaultXMLCodec = &Codec{MarshalFunc: xml.Marshal, UnmarshalFunc: xml.Unmarshal, Type: ContentTypeXML}
)
