package ersatz

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vishav7982/ersatz/internal/journal"
)

// MockServer is an HTTP/WebSocket server answering requests from registered
// expectations. Register expectations, point the code under test at URL(),
// then call Verify.
type MockServer struct {
	server   *httptest.Server
	registry *Registry
	config   Config
	journal  *journal.Store
	upgrader websocket.Upgrader

	mu                 sync.RWMutex
	chain              http.Handler
	logger             zerolog.Logger
	auth               Authenticator
	unmatchedResponder func(w http.ResponseWriter, r *http.Request, req UnmatchedRequest)
}

// NewMockServer starts a MockServer with the default configuration.
func NewMockServer() *MockServer {
	return NewMockServerWithConfig(DefaultConfig())
}

// NewMockServerWithConfig starts a MockServer with config. It panics when the
// configuration is invalid; use StartMockServer to get the error instead.
func NewMockServerWithConfig(config Config) *MockServer {
	ms, err := StartMockServer(config)
	if err != nil {
		panic(fmt.Sprintf("ersatz: %v", err))
	}
	return ms
}

// StartMockServer validates config and starts a MockServer.
func StartMockServer(config Config) (*MockServer, error) {
	if config.UnmatchedStatusCode == 0 {
		config.UnmatchedStatusCode = http.StatusNotFound
	}
	if config.UnmatchedStatusMessage == "" {
		config.UnmatchedStatusMessage = http.StatusText(config.UnmatchedStatusCode)
	}
	logger := NewLogger(config.Log)
	auth, err := config.Auth.authenticator()
	if err != nil {
		return nil, err
	}
	ms := &MockServer{
		registry: NewRegistry(logger),
		config:   config,
		logger:   logger,
		auth:     auth,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	ms.chain = http.HandlerFunc(ms.handler)
	if config.PollInterval > 0 {
		ms.registry.WithPollInterval(config.PollInterval)
	}
	if config.Journal.Enabled {
		if config.Journal.DSN != "" {
			ms.journal, err = journal.Open(config.Journal.DSN, logger)
		} else {
			ms.journal, err = journal.OpenMemory(logger)
		}
		if err != nil {
			return nil, err
		}
	}

	server := httptest.NewUnstartedServer(http.HandlerFunc(ms.serveHTTP))
	if config.Protocol == HTTPS {
		tlsConfig, err := buildTLSConfig(config.TLSConfig)
		if err != nil {
			ms.closeJournal()
			return nil, err
		}
		server.TLS = tlsConfig
		server.StartTLS()
	} else {
		server.Start()
	}
	ms.server = server
	return ms, nil
}

// WithLogger replaces the logger. Expectations registered earlier keep the
// logger they were created with.
func (m *MockServer) WithLogger(logger zerolog.Logger) *MockServer {
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
	m.registry.mu.Lock()
	m.registry.logger = logger
	m.registry.mu.Unlock()
	return m
}

func (m *MockServer) log() *zerolog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l := m.logger
	return &l
}

// WithUnmatchedResponder allows setting a custom handler for unmatched requests.
func (m *MockServer) WithUnmatchedResponder(
	handler func(w http.ResponseWriter, r *http.Request, req UnmatchedRequest),
) *MockServer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmatchedResponder = handler
	return m
}

// Authenticate installs an authentication pre-filter. Installing a second,
// different scheme fails with ErrAuthConflict.
func (m *MockServer) Authenticate(a Authenticator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auth != nil && a != nil && m.auth.Scheme() != a.Scheme() {
		return fmt.Errorf("%w: %s already configured, cannot add %s", ErrAuthConflict, m.auth.Scheme(), a.Scheme())
	}
	m.auth = a
	return nil
}

func (m *MockServer) authenticator() Authenticator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.auth
}

// Close shuts down the mock server and its journal.
func (m *MockServer) Close() {
	m.server.Close()
	m.closeJournal()
}

func (m *MockServer) closeJournal() {
	if m.journal == nil {
		return
	}
	if err := m.journal.Close(); err != nil {
		m.log().Error().Err(err).Msg("failed to close journal")
	}
}

// URL returns the base URL of the mock server.
func (m *MockServer) URL() string {
	return m.server.URL
}

// HTTPURL returns the base URL joined with path.
func (m *MockServer) HTTPURL(path string) string {
	return m.server.URL + path
}

// WebSocketURL returns the ws:// (or wss://) URL for path.
func (m *MockServer) WebSocketURL(path string) string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http") + path
}

// Registry exposes the underlying expectation registry.
func (m *MockServer) Registry() *Registry {
	return m.registry
}

// Expect registers an expectation for method and path and passes it to each
// configure function. Method may be ANY and path may be "*".
// Example:
//
//	ms.Expect(GET, "/users/1", func(e *Expectation) {
//		e.Header("Accept", "application/json").RespondWith(200, `{"id":1}`)
//	})
func (m *MockServer) Expect(method, path string, configure ...func(*Expectation)) *Expectation {
	exp := m.registry.Register(method, path)
	for _, fn := range configure {
		fn(exp)
	}
	return exp
}

// ExpectMatching is Expect with an arbitrary path predicate.
func (m *MockServer) ExpectMatching(method string, path Predicate[string], configure ...func(*Expectation)) *Expectation {
	exp := m.registry.RegisterMatching(method, path)
	for _, fn := range configure {
		fn(exp)
	}
	return exp
}

// Get registers a GET expectation.
func (m *MockServer) Get(path string, configure ...func(*Expectation)) *Expectation {
	return m.Expect(GET, path, configure...)
}

// Head registers a HEAD expectation.
func (m *MockServer) Head(path string, configure ...func(*Expectation)) *Expectation {
	return m.Expect(HEAD, path, configure...)
}

// Post registers a POST expectation.
func (m *MockServer) Post(path string, configure ...func(*Expectation)) *Expectation {
	return m.Expect(POST, path, configure...)
}

// Put registers a PUT expectation.
func (m *MockServer) Put(path string, configure ...func(*Expectation)) *Expectation {
	return m.Expect(PUT, path, configure...)
}

// Delete registers a DELETE expectation.
func (m *MockServer) Delete(path string, configure ...func(*Expectation)) *Expectation {
	return m.Expect(DELETE, path, configure...)
}

// Patch registers a PATCH expectation.
func (m *MockServer) Patch(path string, configure ...func(*Expectation)) *Expectation {
	return m.Expect(PATCH, path, configure...)
}

// Options registers an OPTIONS expectation.
func (m *MockServer) Options(path string, configure ...func(*Expectation)) *Expectation {
	return m.Expect(OPTIONS, path, configure...)
}

// Trace registers a TRACE expectation.
func (m *MockServer) Trace(path string, configure ...func(*Expectation)) *Expectation {
	return m.Expect(TRACE, path, configure...)
}

// Any registers an expectation matching every standard method.
func (m *MockServer) Any(path string, configure ...func(*Expectation)) *Expectation {
	return m.Expect(ANY, path, configure...)
}

// WebSocket registers the WebSocket expectation for path, replacing any
// earlier one for the same path.
func (m *MockServer) WebSocket(path string, configure ...func(*WebSocketExpectation)) *WebSocketExpectation {
	ws := m.registry.WebSocket(path)
	for _, fn := range configure {
		fn(ws)
	}
	return ws
}

// Expectations returns the registered expectations in order.
func (m *MockServer) Expectations() []*Expectation {
	return m.registry.All()
}

// ClearExpectations removes all registered expectations.
func (m *MockServer) ClearExpectations() {
	m.registry.Clear()
}

// RemoveExpectation removes a specific expectation. Returns true if found and removed.
func (m *MockServer) RemoveExpectation(e *Expectation) bool {
	return m.registry.Remove(e)
}

// Verify checks every expectation with the configured verification timeout.
func (m *MockServer) Verify() error {
	return m.VerifyWithin(m.config.VerifyTimeout)
}

// VerifyWithin checks every expectation, giving each up to timeout to be
// satisfied.
func (m *MockServer) VerifyWithin(timeout time.Duration) error {
	return m.registry.VerifyAll(timeout)
}

// RecordedRequest is a journaled request.
type RecordedRequest struct {
	ID          string
	Method      string
	URL         string
	Path        string
	Headers     map[string][]string
	Body        []byte
	Matched     bool
	Expectation string
	StatusCode  int
	ReceivedAt  time.Time
}

// Requests returns every journaled request in arrival order.
func (m *MockServer) Requests() ([]RecordedRequest, error) {
	return m.listRequests(journal.Filter{})
}

// RequestsTo returns the journaled requests for method and path.
func (m *MockServer) RequestsTo(method, path string) ([]RecordedRequest, error) {
	return m.listRequests(journal.Filter{Method: method, Path: path})
}

func (m *MockServer) listRequests(f journal.Filter) ([]RecordedRequest, error) {
	if m.journal == nil {
		return nil, nil
	}
	entries, err := m.journal.List(context.Background(), f)
	if err != nil {
		return nil, err
	}
	out := make([]RecordedRequest, len(entries))
	for i, e := range entries {
		out[i] = RecordedRequest{
			ID:          e.ID,
			Method:      e.Method,
			URL:         e.URL,
			Path:        e.Path,
			Headers:     e.Headers,
			Body:        e.Body,
			Matched:     e.Matched,
			Expectation: e.Expectation,
			StatusCode:  e.StatusCode,
			ReceivedAt:  e.ReceivedAt,
		}
	}
	return out, nil
}

// GetUnmatchedRequests returns all requests no expectation answered.
func (m *MockServer) GetUnmatchedRequests() []UnmatchedRequest {
	if m.journal == nil {
		return nil
	}
	entries, err := m.journal.List(context.Background(), journal.Filter{Unmatched: true})
	if err != nil {
		m.log().Error().Err(err).Msg("failed to list unmatched requests")
		return nil
	}
	out := make([]UnmatchedRequest, len(entries))
	for i, e := range entries {
		out[i] = UnmatchedRequest{
			ID:        e.ID,
			Method:    e.Method,
			URL:       e.URL,
			Headers:   e.Headers,
			Body:      string(e.Body),
			Timestamp: e.ReceivedAt,
		}
	}
	return out
}

// RequestCount returns the number of journaled requests.
func (m *MockServer) RequestCount() (int, error) {
	if m.journal == nil {
		return 0, nil
	}
	n, err := m.journal.Count(context.Background())
	return int(n), err
}

// ClearUnmatchedRequests clears the history of unmatched requests.
func (m *MockServer) ClearUnmatchedRequests() error {
	if m.journal == nil {
		return nil
	}
	return m.journal.Delete(context.Background(), journal.Filter{Unmatched: true})
}

// ClearRequests empties the request journal.
func (m *MockServer) ClearRequests() error {
	if m.journal == nil {
		return nil
	}
	return m.journal.Clear(context.Background())
}

// DefaultClient returns an *http.Client for the server. For HTTPS it trusts
// the server certificate, or skips verification entirely when
// TLSOptions.InsecureSkipVerify is set. It does not present client
// certificates.
func (m *MockServer) DefaultClient() *http.Client {
	transport := &http.Transport{}
	if m.config.Protocol == HTTPS {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if opts := m.config.TLSConfig; opts != nil && opts.InsecureSkipVerify {
			tlsConfig.InsecureSkipVerify = true //nolint:gosec // explicitly requested
		} else if cert := m.server.Certificate(); cert != nil {
			roots := x509.NewCertPool()
			roots.AddCert(cert)
			tlsConfig.RootCAs = roots
		}
		transport.TLSClientConfig = tlsConfig
	}
	return &http.Client{Transport: transport}
}

// MTLSClient returns an *http.Client presenting clientCerts and trusting rootCAs.
func (m *MockServer) MTLSClient(clientCerts []tls.Certificate, rootCAs *x509.CertPool) *http.Client {
	tlsConfig := &tls.Config{
		Certificates: clientCerts,
		RootCAs:      rootCAs,
		MinVersion:   tls.VersionTLS12,
	}
	if rootCAs == nil {
		tlsConfig.InsecureSkipVerify = true //nolint:gosec // self-signed test certificate
	}
	return &http.Client{Transport: &http.Transport{TLSClientConfig: tlsConfig}}
}

// Use adds middleware to the mock server (applied to all requests). The most
// recently added middleware runs first.
func (m *MockServer) Use(middleware func(http.Handler) http.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chain = middleware(m.chain)
}

func (m *MockServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	h := m.chain
	m.mu.RUnlock()
	h.ServeHTTP(w, r)
}
