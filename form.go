package impersonate

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/url"

	"github.com/google/go-querystring/query"
	"github.com/valyala/bytebufferpool"
)

// File is a multipart file part.
type File struct {
	Name     string        // Form field name
	FileName string        // File name
	Content  io.ReadCloser // File content
}

func stringMapToValues(data map[string]string) url.Values {
	values := make(url.Values, len(data))
	for key, value := range data {
		values.Set(key, value)
	}
	return values
}

// toValues accepts url.Values, plain string maps and structs tagged for
// go-querystring.
func toValues(v any) (url.Values, error) {
	switch data := v.(type) {
	case url.Values:
		return data, nil
	case map[string][]string:
		return url.Values(data), nil
	case map[string]string:
		return stringMapToValues(data), nil
	default:
		values, err := query.Values(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormFieldsType, err)
		}
		return values, nil
	}
}

// parseForm splits v into plain fields and file parts. Only map[string]any
// can carry files.
func parseForm(v any) (url.Values, []*File, error) {
	data, ok := v.(map[string]any)
	if !ok {
		values, err := toValues(v)
		return values, nil, err
	}
	values := make(url.Values)
	var files []*File
	for key, value := range data {
		switch v := value.(type) {
		case string:
			values.Set(key, v)
		case []string:
			for _, s := range v {
				values.Add(key, s)
			}
		case *File:
			v.Name = key
			files = append(files, v)
		default:
			return nil, nil, fmt.Errorf("%w: %T", ErrUnsupportedDataType, value)
		}
	}
	return values, files, nil
}

// FormEncoder encodes url-encoded form payloads.
type FormEncoder struct{}

// Encode encodes v as application/x-www-form-urlencoded.
func (FormEncoder) Encode(v any) ([]byte, error) {
	values, err := toValues(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingFailed, err)
	}
	return []byte(values.Encode()), nil
}

// ContentType returns the form media type.
func (FormEncoder) ContentType() string {
	return ContentTypeForm
}

// DefaultFormEncoder is the default FormEncoder instance.
var DefaultFormEncoder Encoder = FormEncoder{}

// encodeMultipart writes fields and files as multipart/form-data. File
// contents are drained and closed.
func encodeMultipart(boundary string, fields url.Values, files []*File) ([]byte, string, error) {
	var contentType string
	data, err := withBuffer(func(buf *bytebufferpool.ByteBuffer) error {
		writer := multipart.NewWriter(buf)
		if boundary != "" {
			if err := writer.SetBoundary(boundary); err != nil {
				return fmt.Errorf("setting custom boundary failed: %w", err)
			}
		}
		for key, vals := range fields {
			for _, val := range vals {
				if err := writer.WriteField(key, val); err != nil {
					return fmt.Errorf("writing form field failed: %w", err)
				}
			}
		}
		for _, file := range files {
			part, err := writer.CreateFormFile(file.Name, file.FileName)
			if err != nil {
				return fmt.Errorf("creating form file failed: %w", err)
			}
			_, err = io.Copy(part, file.Content)
			closeErr := file.Content.Close()
			if err != nil {
				return fmt.Errorf("copying file content failed: %w", err)
			}
			if closeErr != nil {
				return fmt.Errorf("closing file content failed: %w", closeErr)
			}
		}
		contentType = writer.FormDataContentType()
		return writer.Close()
	})
	return data, contentType, err
}
