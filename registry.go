package ersatz

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Registry holds expectations in registration order and resolves incoming
// requests against them. Registration takes the write lock; lookups share
// the read lock, so many requests can be matched concurrently.
type Registry struct {
	mu           sync.RWMutex
	expectations []*Expectation
	sockets      map[string]*WebSocketExpectation

	decoders *Decoders
	encoders *Encoders
	waiter   Waiter
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry with the default codecs.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		sockets:  make(map[string]*WebSocketExpectation),
		decoders: NewDecoders(),
		encoders: NewEncoders(),
		waiter:   DefaultWaiter,
		logger:   logger,
	}
}

// WithCodecs replaces the decoder and encoder sets handed to expectations
// registered afterwards.
func (r *Registry) WithCodecs(decoders *Decoders, encoders *Encoders) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if decoders != nil {
		r.decoders = decoders
	}
	if encoders != nil {
		r.encoders = encoders
	}
	return r
}

// WithPollInterval sets how often verification re-checks call counts.
func (r *Registry) WithPollInterval(d time.Duration) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiter = Waiter{Interval: d}
	return r
}

// Decoders returns the decoder set given to new expectations.
func (r *Registry) Decoders() *Decoders {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.decoders
}

// Encoders returns the encoder set given to new expectations.
func (r *Registry) Encoders() *Encoders {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.encoders
}

// Register appends an expectation for method and path. The method may be ANY
// and path may be the "*" sentinel. Additional matchers are attached in order.
func (r *Registry) Register(method, path string, matchers ...Matcher) *Expectation {
	return r.register(method, path, Path(path), matchers)
}

// RegisterMatching is Register with an arbitrary path predicate.
func (r *Registry) RegisterMatching(method string, path Predicate[string], matchers ...Matcher) *Expectation {
	return r.register(method, "path "+path.String(), PathMatching(path), matchers)
}

func (r *Registry) register(method, pathDesc string, path Matcher, matchers []Matcher) *Expectation {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp := NewExpectation(r.decoders, r.encoders)
	exp.method = method
	exp.path = pathDesc
	exp.waiter = r.waiter
	exp.logger = r.logger
	exp.matchers = append(exp.matchers, Method(method), path)
	exp.matchers = append(exp.matchers, matchers...)
	r.expectations = append(r.expectations, exp)
	return exp
}

// Add appends a caller-built expectation.
func (r *Registry) Add(e *Expectation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expectations = append(r.expectations, e)
}

// Remove deletes e from the registry. It reports whether e was registered.
func (r *Registry) Remove(e *Expectation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, exp := range r.expectations {
		if exp == e {
			r.expectations = append(r.expectations[:i], r.expectations[i+1:]...)
			return true
		}
	}
	return false
}

// FindMatch returns the earliest registered expectation matching req, or nil.
// There is no specificity ranking: the first match wins.
func (r *Registry) FindMatch(req *Request) *Expectation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, exp := range r.expectations {
		if exp.Matches(req) {
			return exp
		}
	}
	return nil
}

// All returns the expectations in registration order.
func (r *Registry) All() []*Expectation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Expectation, len(r.expectations))
	copy(out, r.expectations)
	return out
}

// WebSocket registers the WebSocket expectation for path, replacing any
// previous registration for the same path.
func (r *Registry) WebSocket(path string) *WebSocketExpectation {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws := newWebSocketExpectation(path, r.waiter)
	r.sockets[path] = ws
	return ws
}

// Socket returns the WebSocket expectation registered for path.
func (r *Registry) Socket(path string) (*WebSocketExpectation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.sockets[path]
	return ws, ok
}

// Sockets returns all WebSocket expectations ordered by path.
func (r *Registry) Sockets() []*WebSocketExpectation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*WebSocketExpectation, 0, len(r.sockets))
	for _, ws := range r.sockets {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// Clear removes every expectation and WebSocket expectation. Codecs are kept.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expectations = nil
	r.sockets = make(map[string]*WebSocketExpectation)
}

// VerifyAll verifies every expectation, then every WebSocket expectation,
// each with its own timeout window. All unmet expectations are collected
// and reported together in an *ExpectationError.
func (r *Registry) VerifyAll(timeout time.Duration) error {
	var unmet []string
	for _, exp := range r.All() {
		if !exp.Verify(timeout) {
			unmet = append(unmet, exp.String())
		}
	}
	for _, ws := range r.Sockets() {
		if !ws.Verify(timeout) {
			unmet = append(unmet, ws.String())
		}
	}
	if len(unmet) > 0 {
		return &ExpectationError{
			Message: "Unmet expectations found",
			Details: unmet,
		}
	}
	return nil
}

// ExpectationError lists the expectations whose call-count conditions were not
// satisfied within the verification timeout.
type ExpectationError struct {
	Message string
	Details []string
}

func (e *ExpectationError) Error() string {
	result := e.Message
	for _, detail := range e.Details {
		result += "\n  " + detail
	}
	return result
}
