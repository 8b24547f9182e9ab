package ersatz

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTP methods understood by the matcher. ANY is a registration-only sentinel
// that matches every one of the standard verbs; it never arrives on the wire.
const (
	GET     = http.MethodGet
	HEAD    = http.MethodHead
	POST    = http.MethodPost
	PUT     = http.MethodPut
	DELETE  = http.MethodDelete
	PATCH   = http.MethodPatch
	OPTIONS = http.MethodOptions
	TRACE   = http.MethodTrace
	ANY     = "ANY"
)

// StandardMethods lists the verbs matched by the ANY sentinel.
var StandardMethods = []string{GET, HEAD, POST, PUT, DELETE, PATCH, OPTIONS, TRACE}

// Cookie is the composite cookie view used for matching inbound cookies and
// for describing cookies set on responses.
type Cookie struct {
	Value    string
	Domain   string
	Path     string
	Version  int
	Secure   bool
	HTTPOnly bool
	Comment  string
	MaxAge   int
}

// Request is the read-only view of an inbound request that matchers see.
type Request struct {
	Method            string
	Path              string
	Scheme            string
	Header            http.Header
	Query             url.Values
	Cookies           map[string]Cookie
	Body              []byte
	ContentType       string
	ContentLength     int64
	CharacterEncoding string
	// Params holds parameters decoded from form-urlencoded or multipart bodies.
	Params url.Values
	// Raw is the underlying transport request, nil for synthetic requests.
	Raw *http.Request
}

// NewRequest builds a matching view from an HTTP request whose body has
// already been read into body.
func NewRequest(r *http.Request, body []byte) *Request {
	req := &Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		Scheme:        "http",
		Header:        r.Header.Clone(),
		Query:         r.URL.Query(),
		Cookies:       make(map[string]Cookie),
		Body:          body,
		ContentLength: r.ContentLength,
		Raw:           r,
	}
	if r.TLS != nil {
		req.Scheme = "https"
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for _, c := range r.Cookies() {
		req.Cookies[c.Name] = Cookie{
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
			MaxAge:   c.MaxAge,
		}
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, params, err := mime.ParseMediaType(ct)
		if err == nil {
			req.ContentType = mediaType
			req.CharacterEncoding = params["charset"]
			req.Params = bodyParams(mediaType, params, body)
		} else {
			req.ContentType = ct
		}
	}
	if req.Params == nil {
		req.Params = url.Values{}
	}
	return req
}

// bodyParams extracts parameters from form-urlencoded and multipart bodies.
func bodyParams(mediaType string, params map[string]string, body []byte) url.Values {
	switch {
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil
		}
		return values
	case strings.HasPrefix(mediaType, "multipart/"):
		boundary := params["boundary"]
		if boundary == "" {
			return nil
		}
		values := url.Values{}
		mr := multipart.NewReader(bytes.NewReader(body), boundary)
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			if part.FileName() != "" {
				values.Add(part.FormName(), part.FileName())
				_ = part.Close()
				continue
			}
			data, err := io.ReadAll(part)
			_ = part.Close()
			if err != nil {
				break
			}
			values.Add(part.FormName(), string(data))
		}
		return values
	}
	return nil
}

// Chunking instructs the transport to split a response body into Count chunks
// and pause between them. When DelayMax is greater than Delay each pause is
// drawn uniformly from [Delay, DelayMax].
type Chunking struct {
	Count    int
	Delay    time.Duration
	DelayMax time.Duration
}

// UnmatchedRequest is the history record for a request that no expectation
// answered.
type UnmatchedRequest struct {
	ID        string
	Method    string
	URL       string
	Headers   map[string][]string
	Body      string
	Timestamp time.Time
}
