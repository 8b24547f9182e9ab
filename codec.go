package ersatz

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

var (
	// ErrNoDecoder is returned when a body matcher names a content type no
	// registered decoder handles.
	ErrNoDecoder = errors.New("no request decoder registered for content type")
	// ErrNoEncoder is returned when a response body is set for a content type
	// no registered encoder handles.
	ErrNoEncoder = errors.New("no response encoder registered for content type")
)

// DecodeFunc turns a raw request body into a value for body predicates.
type DecodeFunc func(body []byte, r *Request) (any, error)

// EncodeFunc turns a response value into bytes.
type EncodeFunc func(v any) ([]byte, error)

// Decoders maps media types to request body decoders.
type Decoders struct {
	mu  sync.RWMutex
	fns map[string]DecodeFunc
}

// NewDecoders returns a decoder set with JSON, text, form and multipart
// decoders installed.
func NewDecoders() *Decoders {
	d := &Decoders{fns: make(map[string]DecodeFunc)}
	d.Register("application/json", DecodeJSON)
	d.Register("text/plain", DecodeText)
	d.Register("application/x-www-form-urlencoded", DecodeParams)
	d.Register("multipart/form-data", DecodeParams)
	return d
}

// Register installs fn for contentType, replacing any existing decoder.
func (d *Decoders) Register(contentType string, fn DecodeFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fns[normalizeMediaType(contentType)] = fn
}

// Resolve returns the decoder for contentType or an error wrapping ErrNoDecoder.
func (d *Decoders) Resolve(contentType string) (DecodeFunc, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoDecoder, contentType)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn, ok := d.fns[normalizeMediaType(contentType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoDecoder, contentType)
	}
	return fn, nil
}

// DecodeJSON parses the body with gjson and returns the generic value
// (map[string]any, []any, string, float64, bool or nil).
func DecodeJSON(body []byte, _ *Request) (any, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid JSON body")
	}
	return gjson.ParseBytes(body).Value(), nil
}

// DecodeText returns the body as a string.
func DecodeText(body []byte, _ *Request) (any, error) {
	return string(body), nil
}

// DecodeParams returns the body-derived parameters of form and multipart
// requests as url.Values.
func DecodeParams(body []byte, r *Request) (any, error) {
	if r != nil && len(r.Params) > 0 {
		return r.Params, nil
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Encoders maps media types to response body encoders.
type Encoders struct {
	mu  sync.RWMutex
	fns map[string]EncodeFunc
}

// NewEncoders returns an encoder set with JSON, text and form encoders.
func NewEncoders() *Encoders {
	e := &Encoders{fns: make(map[string]EncodeFunc)}
	e.Register("application/json", EncodeJSON)
	e.Register("text/plain", EncodeText)
	e.Register("text/html", EncodeText)
	e.Register("application/x-www-form-urlencoded", EncodeForm)
	return e
}

// Register installs fn for contentType, replacing any existing encoder.
func (e *Encoders) Register(contentType string, fn EncodeFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fns[normalizeMediaType(contentType)] = fn
}

// Resolve returns the encoder for contentType or an error wrapping ErrNoEncoder.
func (e *Encoders) Resolve(contentType string) (EncodeFunc, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoEncoder, contentType)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.fns[normalizeMediaType(contentType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoEncoder, contentType)
	}
	return fn, nil
}

// EncodeJSON marshals v as JSON. Raw strings and byte slices that are
// already valid JSON are passed through.
func EncodeJSON(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		if gjson.ValidBytes(x) {
			return x, nil
		}
	case string:
		if gjson.Valid(x) {
			return []byte(x), nil
		}
	}
	return json.Marshal(v)
}

// EncodeText formats v with fmt.
func EncodeText(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	}
	return []byte(fmt.Sprint(v)), nil
}

// EncodeForm encodes url.Values or map[string]string as a form body.
func EncodeForm(v any) ([]byte, error) {
	switch x := v.(type) {
	case url.Values:
		return []byte(x.Encode()), nil
	case map[string]string:
		values := url.Values{}
		for k, s := range x {
			values.Set(k, s)
		}
		return []byte(values.Encode()), nil
	case map[string][]string:
		return []byte(url.Values(x).Encode()), nil
	}
	return nil, fmt.Errorf("cannot form-encode %T", v)
}

func normalizeMediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
