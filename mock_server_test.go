package ersatz

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// safeClose safely closes response body and logs error if any.
func safeClose(t *testing.T, body io.ReadCloser) {
	t.Helper()
	if body != nil {
		if err := body.Close(); err != nil {
			t.Logf("failed to close response body: %v", err)
		}
	}
}

// newTestServer starts a quiet server with a short poll interval.
func newTestServer(t *testing.T, opts ...func(*Config)) *MockServer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Log = LogConfig{}
	cfg.PollInterval = 10 * time.Millisecond
	for _, opt := range opts {
		opt(&cfg)
	}
	ms, err := StartMockServer(cfg)
	require.NoError(t, err)
	t.Cleanup(ms.Close)
	return ms
}

// do sends a request and returns status and body.
func do(t *testing.T, client *http.Client, method, target string, body io.Reader, headers map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, target, body)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer safeClose(t, resp.Body)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestMockServer_ExactPath(t *testing.T) {
	ms := newTestServer(t)
	foo := ms.Get("/foo", func(e *Expectation) { e.RespondWith(200, "A") })

	resp, body := do(t, http.DefaultClient, GET, ms.HTTPURL("/foo"), nil, nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "A", body)

	resp, body = do(t, http.DefaultClient, GET, ms.HTTPURL("/bar"), nil, nil)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "404: Not Found", strings.TrimSpace(body))
	assert.Equal(t, 1, foo.CallCount())
}

func TestMockServer_HeaderValueSet(t *testing.T) {
	ms := newTestServer(t)
	ms.Get("/x", func(e *Expectation) {
		e.Matcher(HeaderContains("Accept-Encoding", "gzip")).RespondWith(200, "compressed")
	})

	resp, _ := do(t, http.DefaultClient, GET, ms.HTTPURL("/x"), nil, map[string]string{"Accept-Encoding": "gzip, deflate"})
	assert.Equal(t, 200, resp.StatusCode)

	resp, _ = do(t, http.DefaultClient, GET, ms.HTTPURL("/x"), nil, map[string]string{"Accept-Encoding": "identity"})
	assert.Equal(t, 404, resp.StatusCode)
}

func TestMockServer_AnyMethodSharesCounter(t *testing.T) {
	ms := newTestServer(t)
	ping := ms.Any("/ping", func(e *Expectation) { e.RespondWith(200, "pong") })

	for _, method := range []string{GET, POST, DELETE} {
		resp, _ := do(t, http.DefaultClient, method, ms.HTTPURL("/ping"), nil, nil)
		assert.Equal(t, 200, resp.StatusCode, method)
	}
	assert.Equal(t, 3, ping.CallCount())
	require.NoError(t, ms.VerifyWithin(50*time.Millisecond))
}

func TestMockServer_ResponseSequence(t *testing.T) {
	ms := newTestServer(t)
	ms.Put("/item", func(e *Expectation) {
		e.RespondWith(200, "").RespondWith(200, "Bravo")
	})

	var bodies []string
	for range 3 {
		resp, body := do(t, http.DefaultClient, PUT, ms.HTTPURL("/item"), nil, nil)
		assert.Equal(t, 200, resp.StatusCode)
		bodies = append(bodies, body)
	}
	assert.Equal(t, []string{"", "Bravo", "Bravo"}, bodies)
}

func TestMockServer_NoResponseIs204(t *testing.T) {
	ms := newTestServer(t)
	ms.Delete("/gone")

	resp, body := do(t, http.DefaultClient, DELETE, ms.HTTPURL("/gone"), nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, body)
}

func TestMockServer_ConcurrentRequests(t *testing.T) {
	ms := newTestServer(t)
	const callers = 60
	exp := ms.Get("/c", func(e *Expectation) { e.RespondWith(200, "ok").Times(callers) })

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(ms.HTTPURL("/c"))
			if err != nil {
				errs <- err
				return
			}
			_ = resp.Body.Close()
			if resp.StatusCode != 200 {
				errs <- fmt.Errorf("status %d", resp.StatusCode)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, callers, exp.CallCount())
	assert.NoError(t, ms.Verify())

	reqs, err := ms.RequestsTo(GET, "/c")
	require.NoError(t, err)
	assert.Len(t, reqs, callers)
}

func TestMockServer_VerifyReportsEveryUnmetExpectation(t *testing.T) {
	ms := newTestServer(t)
	ms.Get("/never-called").Once()
	ms.Post("/also-missing").AtLeast(1)
	ms.Get("/fine").Never()

	start := time.Now()
	err := ms.VerifyWithin(50 * time.Millisecond)
	require.Error(t, err)
	var expErr *ExpectationError
	require.True(t, errors.As(err, &expErr))
	assert.Len(t, expErr.Details, 2)
	assert.Contains(t, err.Error(), "GET /never-called")
	assert.Contains(t, err.Error(), "POST /also-missing")
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond, "each expectation gets its own window")
}

func TestMockServer_VerifyWaitsForLateCall(t *testing.T) {
	ms := newTestServer(t)
	ms.Get("/late", func(e *Expectation) { e.Once() })

	go func() {
		time.Sleep(30 * time.Millisecond)
		resp, err := http.Get(ms.HTTPURL("/late"))
		if err == nil {
			_ = resp.Body.Close()
		}
	}()
	assert.NoError(t, ms.VerifyWithin(time.Second))
}

func TestMockServer_UnmatchedJournal(t *testing.T) {
	ms := newTestServer(t)
	ms.Get("/known", func(e *Expectation) { e.RespondWith(200, "ok") })

	do(t, http.DefaultClient, GET, ms.HTTPURL("/known"), nil, nil)
	do(t, http.DefaultClient, POST, ms.HTTPURL("/unknown?x=1"), strings.NewReader("payload"), nil)

	unmatched := ms.GetUnmatchedRequests()
	require.Len(t, unmatched, 1)
	assert.Equal(t, POST, unmatched[0].Method)
	assert.Equal(t, "/unknown?x=1", unmatched[0].URL)
	assert.Equal(t, "payload", unmatched[0].Body)
	assert.NotEmpty(t, unmatched[0].ID)

	all, err := ms.Requests()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Matched)
	assert.Equal(t, 200, all[0].StatusCode)
	assert.Contains(t, all[0].Expectation, "GET /known")
	assert.False(t, all[1].Matched)
	assert.Equal(t, 404, all[1].StatusCode)

	require.NoError(t, ms.ClearRequests())
	all, err = ms.Requests()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMockServer_JournalDisabled(t *testing.T) {
	ms := newTestServer(t, func(c *Config) { c.Journal.Enabled = false })
	do(t, http.DefaultClient, GET, ms.HTTPURL("/nothing"), nil, nil)

	assert.Nil(t, ms.GetUnmatchedRequests())
	reqs, err := ms.Requests()
	assert.NoError(t, err)
	assert.Nil(t, reqs)
}

func TestMockServer_CustomUnmatched(t *testing.T) {
	ms := newTestServer(t, func(c *Config) {
		c.UnmatchedStatusCode = http.StatusTeapot
		c.UnmatchedStatusMessage = "no expectation"
	})
	resp, body := do(t, http.DefaultClient, GET, ms.HTTPURL("/a"), nil, nil)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "no expectation", strings.TrimSpace(body))

	seen := make(chan UnmatchedRequest, 1)
	ms.WithUnmatchedResponder(func(w http.ResponseWriter, r *http.Request, req UnmatchedRequest) {
		seen <- req
		w.WriteHeader(http.StatusBadGateway)
	})
	resp, _ = do(t, http.DefaultClient, GET, ms.HTTPURL("/b"), nil, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "/b", (<-seen).URL)
}

func TestMockServer_ZeroConfigDefaultsUnmatched(t *testing.T) {
	ms, err := StartMockServer(Config{})
	require.NoError(t, err)
	defer ms.Close()

	resp, _ := do(t, http.DefaultClient, GET, ms.HTTPURL("/x"), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMockServer_MaxBodySize(t *testing.T) {
	ms := newTestServer(t, func(c *Config) { c.MaxBodySize = 8 })
	exp := ms.Post("/upload", func(e *Expectation) { e.RespondWith(200, "ok") })

	resp, _ := do(t, http.DefaultClient, POST, ms.HTTPURL("/upload"), strings.NewReader(strings.Repeat("x", 100)), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, exp.CallCount())

	resp, _ = do(t, http.DefaultClient, POST, ms.HTTPURL("/upload"), strings.NewReader("small"), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMockServer_BodyMatchers(t *testing.T) {
	ms := newTestServer(t)
	ms.Post("/users", func(e *Expectation) {
		_, err := e.PartialJSONBody(`{"name":"alice"}`)
		require.NoError(t, err)
		e.JSONPath("age", EqualTo("30")).RespondWith(201, "created")
	})
	ms.Post("/form", func(e *Expectation) { e.Param("color", "blue").RespondWith(200, "form") })

	resp, body := do(t, http.DefaultClient, POST, ms.HTTPURL("/users"),
		strings.NewReader(`{"name":"alice","age":30,"admin":false}`), map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "created", body)

	form := url.Values{"color": {"blue"}}
	resp, body = do(t, http.DefaultClient, POST, ms.HTTPURL("/form"), strings.NewReader(form.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "form", body)
}

func TestMockServer_QueryAndCookies(t *testing.T) {
	ms := newTestServer(t)
	ms.Get("/search", func(e *Expectation) {
		e.Query("q", "golang").
			CookieMatching("session", CookieFields().Value(HasPrefix("s-")).Predicate()).
			Respond(func(r *Response) {
				r.Text("found").CookieValue("seen", "yes").Header("X-Result", "1", "2")
			})
	})

	req, err := http.NewRequest(GET, ms.HTTPURL("/search?q=golang"), nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "session", Value: "s-42"})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer safeClose(t, resp.Body)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []string{"1", "2"}, resp.Header.Values("X-Result"))
	require.Len(t, resp.Cookies(), 1)
	assert.Equal(t, "seen", resp.Cookies()[0].Name)
	assert.Equal(t, "yes", resp.Cookies()[0].Value)

	resp2, _ := do(t, http.DefaultClient, GET, ms.HTTPURL("/search?q=golang"), nil, nil)
	assert.Equal(t, 404, resp2.StatusCode, "missing cookie never matches")
}

func TestMockServer_EncodedResponse(t *testing.T) {
	ms := newTestServer(t)
	ms.Get("/user", func(e *Expectation) {
		e.Respond(func(r *Response) {
			require.NoError(t, r.Encode(map[string]any{"id": 1, "name": "alice"}, "application/json"))
		})
	})

	resp, body := do(t, http.DefaultClient, GET, ms.HTTPURL("/user"), nil, nil)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"id":1,"name":"alice"}`, body)
}

func TestMockServer_ChunkedResponse(t *testing.T) {
	ms := newTestServer(t)
	ms.Get("/stream", func(e *Expectation) {
		e.Respond(func(r *Response) { r.Text("abcdefghi").Chunked(3, 20*time.Millisecond) })
	})

	start := time.Now()
	resp, body := do(t, http.DefaultClient, GET, ms.HTTPURL("/stream"), nil, nil)
	assert.Equal(t, "abcdefghi", body)
	assert.Equal(t, []string{"chunked"}, resp.TransferEncoding)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestMockServer_DelayedResponse(t *testing.T) {
	ms := newTestServer(t)
	ms.Get("/slow", func(e *Expectation) {
		e.Respond(func(r *Response) { r.Text("done").Delayed(50 * time.Millisecond) })
	})

	start := time.Now()
	_, body := do(t, http.DefaultClient, GET, ms.HTTPURL("/slow"), nil, nil)
	assert.Equal(t, "done", body)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestMockServer_ListenerSeesRequest(t *testing.T) {
	ms := newTestServer(t)
	got := make(chan string, 1)
	ms.Post("/hook", func(e *Expectation) {
		e.Listener(func(r *Request) { got <- string(r.Body) })
	})

	do(t, http.DefaultClient, POST, ms.HTTPURL("/hook"), strings.NewReader("event"), nil)
	select {
	case body := <-got:
		assert.Equal(t, "event", body)
	case <-time.After(time.Second):
		t.Fatal("listener not invoked")
	}
}

func TestMockServer_BasicAuth(t *testing.T) {
	ms := newTestServer(t, func(c *Config) {
		c.Auth = AuthConfig{Type: "basic", Username: "alice", Password: "pw"}
	})
	exp := ms.Get("/secure", func(e *Expectation) { e.RespondWith(200, "welcome") })

	resp, _ := do(t, http.DefaultClient, GET, ms.HTTPURL("/secure"), nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, `Basic realm="ersatz"`, resp.Header.Get("WWW-Authenticate"))
	assert.Equal(t, 0, exp.CallCount())

	req, err := http.NewRequest(GET, ms.HTTPURL("/secure"), nil)
	require.NoError(t, err)
	req.SetBasicAuth("alice", "pw")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	safeClose(t, resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, exp.CallCount())

	err = ms.Authenticate(DigestAuth("alice", "pw"))
	assert.ErrorIs(t, err, ErrAuthConflict)
	assert.NoError(t, ms.Authenticate(BasicAuth("bob", "pw2")))
}

func TestMockServer_DigestAuth(t *testing.T) {
	ms := newTestServer(t)
	require.NoError(t, ms.Authenticate(DigestAuth("alice", "pw")))
	ms.Get("/digest", func(e *Expectation) { e.RespondWith(200, "ok") })

	resp, _ := do(t, http.DefaultClient, GET, ms.HTTPURL("/digest"), nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	challenge := resp.Header.Get("WWW-Authenticate")

	auth := digestHeader(t, challenge, GET, "/digest", "alice", "pw")
	resp, body := do(t, http.DefaultClient, GET, ms.HTTPURL("/digest"), nil, map[string]string{"Authorization": auth})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
}

func TestMockServer_InvalidAuthConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log = LogConfig{}
	cfg.Auth.Type = "kerberos"
	_, err := StartMockServer(cfg)
	assert.Error(t, err)
}

func TestMockServer_HTTPS(t *testing.T) {
	ms := newTestServer(t, func(c *Config) { c.Protocol = HTTPS })
	ms.Get("/tls", func(e *Expectation) { e.Protocol("https").RespondWith(200, "secure") })

	assert.True(t, strings.HasPrefix(ms.URL(), "https://"))
	resp, body := do(t, ms.DefaultClient(), GET, ms.HTTPURL("/tls"), nil, nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "secure", body)
}

func TestMockServer_MutualTLS(t *testing.T) {
	clientCert, err := selfSignedCertificate()
	require.NoError(t, err)

	ms := newTestServer(t, func(c *Config) {
		c.Protocol = HTTPS
		c.TLSConfig = &TLSOptions{RequireClientCert: true, SkipClientVerify: true}
	})
	ms.Get("/mtls", func(e *Expectation) { e.RespondWith(200, "hello") })

	_, err = ms.DefaultClient().Get(ms.HTTPURL("/mtls"))
	assert.Error(t, err, "client without certificate is rejected")

	resp, body := do(t, ms.MTLSClient([]tls.Certificate{clientCert}, nil), GET, ms.HTTPURL("/mtls"), nil, nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "hello", body)
}

func TestMockServer_Middleware(t *testing.T) {
	ms := newTestServer(t)
	ms.Get("/mw", func(e *Expectation) { e.Header("X-Injected", "yes").RespondWith(200, "ok") })
	ms.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Set("X-Injected", "yes")
			next.ServeHTTP(w, r)
		})
	})

	resp, _ := do(t, http.DefaultClient, GET, ms.HTTPURL("/mw"), nil, nil)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestMockServer_ClearExpectations(t *testing.T) {
	ms := newTestServer(t)
	ms.Get("/a", func(e *Expectation) { e.RespondWith(200, "a") })
	require.Len(t, ms.Expectations(), 1)

	ms.ClearExpectations()
	assert.Empty(t, ms.Expectations())
	resp, _ := do(t, http.DefaultClient, GET, ms.HTTPURL("/a"), nil, nil)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestMockServer_ExpectMatching(t *testing.T) {
	ms := newTestServer(t)
	users := ms.ExpectMatching(GET, MustMatchRegex(`^/users/\d+$`), func(e *Expectation) { e.RespondWith(200, "user") })

	for _, p := range []string{"/users/1", "/users/22", "/users/abc"} {
		do(t, http.DefaultClient, GET, ms.HTTPURL(p), nil, nil)
	}
	assert.Equal(t, 2, users.CallCount())
}

func TestMockServer_RemoveExpectation(t *testing.T) {
	ms := newTestServer(t)
	first := ms.Get("/r", func(e *Expectation) { e.RespondWith(200, "first") })
	ms.Get("/r", func(e *Expectation) { e.RespondWith(200, "second") })

	assert.True(t, ms.RemoveExpectation(first))
	assert.False(t, ms.RemoveExpectation(first))

	_, body := do(t, http.DefaultClient, GET, ms.HTTPURL("/r"), nil, nil)
	assert.Equal(t, "second", body)
}

func TestMockServer_ClearUnmatchedRequests(t *testing.T) {
	ms := newTestServer(t)
	ms.Get("/ok", func(e *Expectation) { e.RespondWith(200, "ok") })
	do(t, http.DefaultClient, GET, ms.HTTPURL("/ok"), nil, nil)
	do(t, http.DefaultClient, GET, ms.HTTPURL("/nope"), nil, nil)
	require.Len(t, ms.GetUnmatchedRequests(), 1)

	require.NoError(t, ms.ClearUnmatchedRequests())
	assert.Empty(t, ms.GetUnmatchedRequests())
	all, err := ms.Requests()
	require.NoError(t, err)
	assert.Len(t, all, 1, "matched history survives")
}

func TestMockServer_TimeoutSimulation(t *testing.T) {
	ms := newTestServer(t)
	ms.Get("/hang", func(e *Expectation) { e.Respond(func(r *Response) { r.Timeout() }) })

	client := &http.Client{Timeout: 50 * time.Millisecond}
	_, err := client.Get(ms.HTTPURL("/hang"))
	assert.Error(t, err)
}

func TestMockServer_ResponseFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":7}`), 0o600))

	ms := newTestServer(t)
	ms.Get("/file", func(e *Expectation) {
		e.Respond(func(r *Response) { require.NoError(t, r.File(path, "application/json")) })
	})

	resp, body := do(t, http.DefaultClient, GET, ms.HTTPURL("/file"), nil, nil)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"id":7}`, body)

	assert.Error(t, newResponse(NewEncoders()).File(filepath.Join(t.TempDir(), "missing"), "text/plain"))
}

func TestMockServer_CustomResponderSharesJournalEntry(t *testing.T) {
	ms := newTestServer(t)
	ids := make(chan string, 1)
	ms.WithUnmatchedResponder(func(w http.ResponseWriter, r *http.Request, req UnmatchedRequest) {
		ids <- req.ID
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	resp, body := do(t, http.DefaultClient, GET, ms.HTTPURL("/proxy"), nil, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "upstream down", body)

	id := <-ids
	require.NotEmpty(t, id)
	all, err := ms.Requests()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, id, all[0].ID)
	assert.Equal(t, http.StatusBadGateway, all[0].StatusCode)
	assert.Equal(t, id, ms.GetUnmatchedRequests()[0].ID)
}

func TestMockServer_CustomResponderImplicitOK(t *testing.T) {
	ms := newTestServer(t)
	ms.WithUnmatchedResponder(func(w http.ResponseWriter, r *http.Request, req UnmatchedRequest) {})

	resp, _ := do(t, http.DefaultClient, GET, ms.HTTPURL("/quiet"), nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	all, err := ms.Requests()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, http.StatusOK, all[0].StatusCode)
}

func TestMockServer_DefaultClientVerifiesServerCertificate(t *testing.T) {
	ms := newTestServer(t, func(c *Config) { c.Protocol = HTTPS })
	ms.Get("/v", func(e *Expectation) { e.RespondWith(200, "ok") })

	tlsConfig := ms.DefaultClient().Transport.(*http.Transport).TLSClientConfig
	require.NotNil(t, tlsConfig)
	assert.False(t, tlsConfig.InsecureSkipVerify)
	assert.NotNil(t, tlsConfig.RootCAs)
	resp, _ := do(t, ms.DefaultClient(), GET, ms.HTTPURL("/v"), nil, nil)
	assert.Equal(t, 200, resp.StatusCode)

	_, err := http.DefaultClient.Get(ms.HTTPURL("/v"))
	assert.Error(t, err, "untrusted self-signed certificate")

	insecure := newTestServer(t, func(c *Config) {
		c.Protocol = HTTPS
		c.TLSConfig = &TLSOptions{InsecureSkipVerify: true}
	})
	tlsConfig = insecure.DefaultClient().Transport.(*http.Transport).TLSClientConfig
	assert.True(t, tlsConfig.InsecureSkipVerify)
}

func TestMockServer_RequestCount(t *testing.T) {
	ms := newTestServer(t)
	ms.Get("/n", func(e *Expectation) { e.RespondWith(200, "") })
	for range 3 {
		do(t, http.DefaultClient, GET, ms.HTTPURL("/n"), nil, nil)
	}
	do(t, http.DefaultClient, GET, ms.HTTPURL("/other"), nil, nil)

	n, err := ms.RequestCount()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	off := newTestServer(t, func(c *Config) { c.Journal.Enabled = false })
	n, err = off.RequestCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}
