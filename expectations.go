package ersatz

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Listener is invoked once per matched call, after the call counter has been
// incremented.
type Listener func(r *Request)

// Expectation pairs request matchers with an ordered list of canned responses,
// a call counter and a call-count verifier.
type Expectation struct {
	method string
	path   string

	mu        sync.RWMutex
	matchers  []Matcher
	responses []*Response
	listeners []Listener
	verifier  Predicate[int]

	calls atomic.Int64

	decoders *Decoders
	encoders *Encoders
	waiter   Waiter
	logger   zerolog.Logger
}

// NewExpectation creates an expectation that matches everything until
// matchers are added. The decoders and encoders are used by body matchers and
// encoded responses; nil selects the default sets.
func NewExpectation(decoders *Decoders, encoders *Encoders) *Expectation {
	if decoders == nil {
		decoders = NewDecoders()
	}
	if encoders == nil {
		encoders = NewEncoders()
	}
	return &Expectation{
		verifier: AnyCount(),
		decoders: decoders,
		encoders: encoders,
		waiter:   DefaultWaiter,
		logger:   zerolog.Nop(),
	}
}

// Matcher registers an additional matcher. All matchers must accept a request
// for the expectation to match it.
func (e *Expectation) Matcher(m Matcher) *Expectation {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.matchers = append(e.matchers, m)
	return e
}

// Matchers returns a copy of the registered matchers.
func (e *Expectation) Matchers() []Matcher {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Matcher, len(e.matchers))
	copy(out, e.matchers)
	return out
}

// Header requires one of the header's values to equal value.
// Example: .Header("Authorization", "Bearer token")
func (e *Expectation) Header(name, value string) *Expectation {
	return e.Matcher(HeaderEquals(name, value))
}

// HeaderMatching applies a value-set predicate to the named header.
// Example: .HeaderMatching("Accept", HasItem(ContainsString("json")))
func (e *Expectation) HeaderMatching(name string, p Predicate[[]string]) *Expectation {
	return e.Matcher(Header(name, p))
}

// Headers requires every name/value pair.
func (e *Expectation) Headers(headers map[string]string) *Expectation {
	for k, v := range headers {
		e.Header(k, v)
	}
	return e
}

// Query requires one of the query parameter's values to equal value.
// Example: .Query("id", "123")
func (e *Expectation) Query(name, value string) *Expectation {
	return e.Matcher(QueryEquals(name, value))
}

// QueryMatching applies a value-set predicate to the named query parameter.
func (e *Expectation) QueryMatching(name string, p Predicate[[]string]) *Expectation {
	return e.Matcher(Query(name, p))
}

// Queries requires every name/value pair.
func (e *Expectation) Queries(params map[string]string) *Expectation {
	for k, v := range params {
		e.Query(k, v)
	}
	return e
}

// Param requires a body-derived parameter value.
func (e *Expectation) Param(name, value string) *Expectation {
	return e.Matcher(ParamEquals(name, value))
}

// Cookie requires the named cookie to carry value.
func (e *Expectation) Cookie(name, value string) *Expectation {
	return e.Matcher(CookieValue(name, value))
}

// CookieMatching applies a composite predicate to the named cookie.
// Example: .CookieMatching("session", CookieFields().Value(HasPrefix("s-")).Predicate())
func (e *Expectation) CookieMatching(name string, p Predicate[Cookie]) *Expectation {
	return e.Matcher(HasCookie(name, p))
}

// Protocol requires the request scheme.
func (e *Expectation) Protocol(scheme string) *Expectation {
	return e.Matcher(SchemeIs(scheme))
}

// Body requires the raw body to equal body.
func (e *Expectation) Body(body string) *Expectation {
	return e.Matcher(BodyString(body))
}

// BodyContains requires the raw body to contain substring.
func (e *Expectation) BodyContains(substring string) *Expectation {
	return e.Matcher(BodyContains(substring))
}

// BodyMatching applies a predicate to the raw body.
func (e *Expectation) BodyMatching(p Predicate[[]byte]) *Expectation {
	return e.Matcher(Body(p))
}

// JSONBody requires a body semantically equal to the expected JSON.
func (e *Expectation) JSONBody(expected string) (*Expectation, error) {
	p, err := JSONEquals(expected)
	if err != nil {
		return e, err
	}
	return e.Matcher(Body(p)), nil
}

// PartialJSONBody requires a JSON object body containing every key of expected.
// Example: .PartialJSONBody(`{"name":"test"}`)
func (e *Expectation) PartialJSONBody(expected string) (*Expectation, error) {
	p, err := JSONContains(expected)
	if err != nil {
		return e, err
	}
	return e.Matcher(Body(p)), nil
}

// JSONPath requires the value at a gjson path to satisfy p.
func (e *Expectation) JSONPath(path string, p Predicate[string]) *Expectation {
	return e.Matcher(JSONPath(path, p))
}

// DecodedBody decodes the body with the decoder registered for contentType
// and applies p. It fails with ErrNoDecoder when no decoder is registered.
func (e *Expectation) DecodedBody(contentType string, p Predicate[any]) (*Expectation, error) {
	m, err := DecodedBody(e.decoders, contentType, p)
	if err != nil {
		return e, err
	}
	return e.Matcher(m), nil
}

// Called sets the call-count condition checked by Verify.
func (e *Expectation) Called(p Predicate[int]) *Expectation {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verifier = p
	return e
}

// Times expects exactly count calls.
func (e *Expectation) Times(count int) *Expectation { return e.Called(Times(count)) }

// Once is equivalent to Times(1).
func (e *Expectation) Once() *Expectation { return e.Times(1) }

// Never expects no calls.
func (e *Expectation) Never() *Expectation { return e.Called(Never()) }

// AtLeast expects count or more calls.
func (e *Expectation) AtLeast(count int) *Expectation { return e.Called(AtLeast(count)) }

// AtMost expects count or fewer calls.
func (e *Expectation) AtMost(count int) *Expectation { return e.Called(AtMost(count)) }

// Listener registers fn to run on every matched call.
func (e *Expectation) Listener(fn Listener) *Expectation {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
	return e
}

// AddResponse appends a new 200 response and returns it for configuration.
// Responses are served in registration order; the last one repeats.
func (e *Expectation) AddResponse() *Response {
	resp := newResponse(e.encoders)
	e.mu.Lock()
	e.responses = append(e.responses, resp)
	e.mu.Unlock()
	return resp
}

// Respond appends a response configured by fn.
// Example: .Respond(func(r *Response) { r.Code(201).Text("created") })
func (e *Expectation) Respond(fn func(r *Response)) *Expectation {
	fn(e.AddResponse())
	return e
}

// RespondWith appends a response with a plain-text body.
func (e *Expectation) RespondWith(code int, body string) *Expectation {
	return e.Respond(func(r *Response) {
		r.Code(code)
		if body != "" {
			r.Text(body)
		}
	})
}

// Matches reports whether every matcher accepts r. An expectation without
// matchers matches everything.
func (e *Expectation) Matches(r *Request) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, m := range e.matchers {
		if !m.Matches(r) {
			return false
		}
	}
	return true
}

// CallCount returns how many times this expectation has been matched.
func (e *Expectation) CallCount() int {
	return int(e.calls.Load())
}

// CurrentResponse returns the response the next call would receive, or nil
// when no responses are configured.
func (e *Expectation) CurrentResponse() *Response {
	return e.responseFor(e.CallCount())
}

// responseFor selects the response for the call that observed n previous
// calls, saturating at the last registered response.
func (e *Expectation) responseFor(n int) *Response {
	e.mu.RLock()
	defer e.mu.RUnlock()
	k := len(e.responses)
	if k == 0 {
		return nil
	}
	return e.responses[min(n, k-1)]
}

// RecordCall counts a matched call, runs the listeners and returns the number
// of calls recorded before this one.
func (e *Expectation) RecordCall(r *Request) int {
	n := int(e.calls.Add(1)) - 1
	e.mu.RLock()
	listeners := e.listeners
	e.mu.RUnlock()
	for i, fn := range listeners {
		e.runListener(i, fn, r)
	}
	return n
}

func (e *Expectation) runListener(index int, fn Listener, r *Request) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error().
				Str("expectation", e.String()).
				Int("listener", index).
				Interface("panic", rec).
				Msg("call listener panicked")
		}
	}()
	fn(r)
}

// Satisfied reports whether the current call count satisfies the verifier.
func (e *Expectation) Satisfied() bool {
	e.mu.RLock()
	verifier := e.verifier
	e.mu.RUnlock()
	return verifier.Test(e.CallCount())
}

// Verify waits up to timeout for the call-count condition to hold.
// A non-positive timeout selects DefaultVerifyTimeout.
func (e *Expectation) Verify(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	return e.waiter.AwaitTrue(e.Satisfied, timeout)
}

// String returns a representation of the expectation for debugging.
func (e *Expectation) String() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	target := strings.TrimSpace(e.method + " " + e.path)
	if target == "" {
		target = "expectation"
	}
	return fmt.Sprintf("%s (called: %d, expected: %s)", target, e.calls.Load(), e.verifier)
}
