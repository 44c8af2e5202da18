package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"sort"

	"github.com/spf13/cast"
)

type part struct {
	key      string
	value    string
	filename string
	content  []byte
	isFile   bool
}

// Multipart is a fully buffered multipart/form-data body. Encoding it twice
// yields identical bytes, so a request can be replayed after a token refresh.
type Multipart struct {
	boundary string
	parts    []part
}

// NewMultipart returns an empty body.
func NewMultipart() *Multipart {
	return &Multipart{boundary: multipart.NewWriter(io.Discard).Boundary()}
}

// AddField appends a text part.
func (m *Multipart) AddField(key, value string) {
	m.parts = append(m.parts, part{key: key, value: value})
}

// AddFile appends a file part.
func (m *Multipart) AddFile(key, filename string, content []byte) {
	m.parts = append(m.parts, part{key: key, filename: filename, content: content, isFile: true})
}

// AddUpload reads an uploaded file into the body.
func (m *Multipart) AddUpload(key string, fh *multipart.FileHeader) error {
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	m.AddFile(key, fh.Filename, content)
	return nil
}

// Keys lists the part keys in order, repeated keys included.
func (m *Multipart) Keys() []string {
	keys := make([]string, len(m.parts))
	for i, p := range m.parts {
		keys[i] = p.key
	}
	return keys
}

// ContentType is the header value including the boundary.
func (m *Multipart) ContentType() string {
	return "multipart/form-data; boundary=" + m.boundary
}

// Bytes encodes the body.
func (m *Multipart) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(m.boundary); err != nil {
		return nil, err
	}
	for _, p := range m.parts {
		if !p.isFile {
			if err := w.WriteField(p.key, p.value); err != nil {
				return nil, err
			}
			continue
		}
		fw, err := w.CreateFormFile(p.key, p.filename)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(p.content); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormBody encodes a serialized value map as multipart. Lists become repeated
// keys, nil becomes an empty string, uploads become file parts. Keys are
// written in sorted order.
func FormBody(values map[string]any) (*Multipart, error) {
	m := NewMultipart()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := m.add(k, values[k]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Multipart) add(key string, v any) error {
	switch val := v.(type) {
	case nil:
		m.AddField(key, "")
	case *multipart.FileHeader:
		if val != nil {
			return m.AddUpload(key, val)
		}
	case []*multipart.FileHeader:
		for _, fh := range val {
			if err := m.AddUpload(key, fh); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range val {
			s, err := scalarString(item)
			if err != nil {
				return fmt.Errorf("field %s: %w", key, err)
			}
			m.AddField(key, s)
		}
	case []string:
		for _, item := range val {
			m.AddField(key, item)
		}
	default:
		s, err := scalarString(val)
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		m.AddField(key, s)
	}
	return nil
}

func scalarString(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
