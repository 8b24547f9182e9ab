package ersatz

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vishav7982/ersatz/internal/journal"
)

// handler processes incoming HTTP requests: authentication, WebSocket
// upgrades, expectation matching and response writing.
func (m *MockServer) handler(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		if m.config.MaxBodySize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, m.config.MaxBodySize)
		}
		var err error
		body, err = io.ReadAll(r.Body)
		_ = r.Body.Close()
		if err != nil {
			m.log().Error().Err(err).Str("method", r.Method).Str("uri", r.URL.RequestURI()).Msg("failed to read request body")
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
	}
	if m.config.VerboseLogging {
		m.log().Debug().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Interface("headers", r.Header).
			Bytes("body", body).
			Msg("incoming request")
	}

	if auth := m.authenticator(); auth != nil && !auth.Authenticate(r) {
		m.journalRequest("", r, body, nil, http.StatusUnauthorized)
		w.Header().Set("WWW-Authenticate", auth.Challenge())
		http.Error(w, "401: Unauthorized", http.StatusUnauthorized)
		return
	}

	if websocket.IsWebSocketUpgrade(r) {
		if ws, ok := m.registry.Socket(r.URL.Path); ok {
			serveWebSocket(&m.upgrader, ws, w, r, *m.log())
			return
		}
	}

	req := NewRequest(r, body)
	exp := m.registry.FindMatch(req)
	if exp == nil {
		m.handleUnmatched(w, r, req)
		return
	}

	resp := exp.responseFor(exp.RecordCall(req))
	if m.config.VerboseLogging {
		m.log().Debug().Str("expectation", exp.String()).Int("status", resp.status()).Msg("matched expectation")
	}
	// journal first so the entry exists by the time the client sees the reply
	m.journalRequest("", r, body, exp, resp.status())
	m.writeResponse(w, r, resp)
}

// handleUnmatched logs a diagnostic and answers with the unmatched response.
func (m *MockServer) handleUnmatched(w http.ResponseWriter, r *http.Request, req *Request) {
	unmatched := UnmatchedRequest{
		ID:        uuid.NewString(),
		Method:    r.Method,
		URL:       r.URL.RequestURI(),
		Headers:   map[string][]string(r.Header.Clone()),
		Body:      string(req.Body),
		Timestamp: time.Now(),
	}
	if m.config.LogUnmatched {
		m.log().Warn().Msg(RenderUnmatched(req, m.registry.All()))
	}

	m.mu.RLock()
	responder := m.unmatchedResponder
	m.mu.RUnlock()
	if responder != nil {
		jw := &journalingWriter{ResponseWriter: w, record: func(status int) {
			m.journalRequest(unmatched.ID, r, req.Body, nil, status)
		}}
		responder(jw, r, unmatched)
		jw.commit(http.StatusOK)
		return
	}
	m.journalRequest(unmatched.ID, r, req.Body, nil, m.config.UnmatchedStatusCode)
	http.Error(w, m.config.UnmatchedStatusMessage, m.config.UnmatchedStatusCode)
}

// journalingWriter journals the request with the status a custom responder
// chose, just before the first byte of the response is sent.
type journalingWriter struct {
	http.ResponseWriter
	record    func(status int)
	committed bool
}

func (w *journalingWriter) commit(status int) {
	if !w.committed {
		w.committed = true
		w.record(status)
	}
}

func (w *journalingWriter) WriteHeader(status int) {
	w.commit(status)
	w.ResponseWriter.WriteHeader(status)
}

func (w *journalingWriter) Write(b []byte) (int, error) {
	w.commit(http.StatusOK)
	return w.ResponseWriter.Write(b)
}

func (w *journalingWriter) Flush() {
	w.commit(http.StatusOK)
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *journalingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// writeResponse emits resp. A nil response means the expectation has none
// configured and yields 204 No Content.
func (m *MockServer) writeResponse(w http.ResponseWriter, r *http.Request, resp *Response) {
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if resp.Hang {
		<-r.Context().Done()
		return
	}
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}
	for name, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	if resp.ContentType != "" && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	for name, c := range resp.Cookies {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			MaxAge:   c.MaxAge,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	status := resp.status()

	if resp.Chunking == nil || resp.Chunking.Count <= 1 || len(resp.Body) == 0 {
		w.WriteHeader(status)
		if _, err := w.Write(resp.Body); err != nil {
			m.log().Error().Err(err).Msg("failed to write response")
		}
		return
	}

	flusher, _ := w.(http.Flusher)
	w.WriteHeader(status)
	for i, chunk := range splitChunks(resp.Body, resp.Chunking.Count) {
		if i > 0 {
			select {
			case <-time.After(chunkDelay(resp.Chunking)):
			case <-r.Context().Done():
				return
			}
		}
		if _, err := w.Write(chunk); err != nil {
			m.log().Error().Err(err).Int("chunk", i).Msg("failed to write response chunk")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// journalRequest stores the request in the journal when it is enabled. An
// empty id lets the journal assign one.
func (m *MockServer) journalRequest(id string, r *http.Request, body []byte, exp *Expectation, status int) {
	if m.journal == nil {
		return
	}
	entry := &journal.Entry{
		ID:         id,
		Method:     r.Method,
		URL:        r.URL.RequestURI(),
		Path:       r.URL.Path,
		Headers:    map[string][]string(r.Header.Clone()),
		Body:       body,
		Matched:    exp != nil,
		StatusCode: status,
	}
	if exp != nil {
		entry.Expectation = exp.String()
	}
	if err := m.journal.Record(context.Background(), entry); err != nil {
		m.log().Error().Err(err).Msg("failed to journal request")
	}
}
