package ersatz

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/tidwall/sjson"
)

// Response is one canned reply of an expectation. Expectations hand out
// responses through AddResponse; each is configured before traffic starts and
// read-only afterwards.
type Response struct {
	StatusCode  int
	Headers     http.Header
	Cookies     map[string]Cookie
	Body        []byte
	ContentType string
	Chunking    *Chunking
	Delay       time.Duration
	// Hang holds the request open until the client gives up.
	Hang bool

	encoders *Encoders
}

func newResponse(encoders *Encoders) *Response {
	return &Response{
		StatusCode: http.StatusOK,
		Headers:    make(http.Header),
		Cookies:    make(map[string]Cookie),
		encoders:   encoders,
	}
}

// status is the code sent for r; a nil response is 204 No Content.
func (r *Response) status() int {
	if r == nil {
		return http.StatusNoContent
	}
	if r.StatusCode == 0 {
		return http.StatusOK
	}
	return r.StatusCode
}

// Code sets the status code.
func (r *Response) Code(code int) *Response {
	r.StatusCode = code
	return r
}

// Header adds values to the named response header. Existing values are kept.
func (r *Response) Header(name string, values ...string) *Response {
	for _, v := range values {
		r.Headers.Add(name, v)
	}
	return r
}

// Cookie sets a response cookie.
func (r *Response) Cookie(name string, c Cookie) *Response {
	r.Cookies[name] = c
	return r
}

// CookieValue sets a response cookie with only a value.
func (r *Response) CookieValue(name, value string) *Response {
	return r.Cookie(name, Cookie{Value: value})
}

// Bytes sets the raw body and its content type.
func (r *Response) Bytes(body []byte, contentType string) *Response {
	r.Body = body
	r.ContentType = contentType
	return r
}

// Text sets a plain-text body.
func (r *Response) Text(body string) *Response {
	return r.Bytes([]byte(body), "text/plain")
}

// File reads the body from path.
func (r *Response) File(path, contentType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	r.Bytes(data, contentType)
	return nil
}

// Encode renders v with the encoder registered for contentType and uses the
// result as the body. The error wraps ErrNoEncoder when no encoder handles
// the content type.
func (r *Response) Encode(v any, contentType string) error {
	encode, err := r.encoders.Resolve(contentType)
	if err != nil {
		return err
	}
	data, err := encode(v)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", contentType, err)
	}
	r.Body = data
	r.ContentType = contentType
	return nil
}

// JSONField sets a value at an sjson path inside the current body, starting
// from an empty object when no body is set.
// Example: .JSONField("user.id", 42)
func (r *Response) JSONField(path string, value any) error {
	body := r.Body
	if len(body) == 0 {
		body = []byte("{}")
	}
	out, err := sjson.SetBytes(body, path, value)
	if err != nil {
		return fmt.Errorf("set json field %q: %w", path, err)
	}
	r.Body = out
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
	return nil
}

// Chunked splits the body into count chunks with a fixed pause between them.
func (r *Response) Chunked(count int, delay time.Duration) *Response {
	r.Chunking = &Chunking{Count: count, Delay: delay}
	return r
}

// ChunkedRange splits the body into count chunks with pauses drawn from
// [minDelay, maxDelay].
func (r *Response) ChunkedRange(count int, minDelay, maxDelay time.Duration) *Response {
	r.Chunking = &Chunking{Count: count, Delay: minDelay, DelayMax: maxDelay}
	return r
}

// Delayed pauses before the response is written.
func (r *Response) Delayed(d time.Duration) *Response {
	r.Delay = d
	return r
}

// Timeout makes the server never answer, simulating an upstream that hangs.
func (r *Response) Timeout() *Response {
	r.Hang = true
	return r
}
