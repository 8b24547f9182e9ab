package ersatz

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrAuthConflict is returned when a second, different authentication scheme
// is configured on a server that already has one.
var ErrAuthConflict = errors.New("conflicting authentication configuration")

// DefaultRealm is the realm advertised in authentication challenges.
const DefaultRealm = "ersatz"

// Authenticator rejects requests before they reach expectation matching.
type Authenticator interface {
	// Authenticate reports whether r carries valid credentials.
	Authenticate(r *http.Request) bool
	// Challenge returns the WWW-Authenticate header value for rejected requests.
	Challenge() string
	// Scheme names the authentication scheme, e.g. "Basic".
	Scheme() string
}

type basicAuth struct {
	username string
	password string
}

// BasicAuth requires HTTP Basic credentials.
func BasicAuth(username, password string) Authenticator {
	return &basicAuth{username: username, password: password}
}

func (a *basicAuth) Authenticate(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(a.password)) == 1
	return userOK && passOK
}

func (a *basicAuth) Challenge() string { return fmt.Sprintf(`Basic realm="%s"`, DefaultRealm) }
func (a *basicAuth) Scheme() string    { return "Basic" }

// digestAuth implements RFC 2617 Digest authentication with MD5 and qop=auth.
type digestAuth struct {
	username string
	password string
	opaque   string

	mu     sync.Mutex
	nonces map[string]struct{}
	issued []string
}

// maxDigestNonces bounds the outstanding nonces; the oldest are forgotten first.
const maxDigestNonces = 1024

// DigestAuth requires HTTP Digest credentials.
func DigestAuth(username, password string) Authenticator {
	return &digestAuth{
		username: username,
		password: password,
		opaque:   md5hex(uuid.NewString()),
		nonces:   make(map[string]struct{}),
	}
}

func (a *digestAuth) Scheme() string { return "Digest" }

func (a *digestAuth) Challenge() string {
	nonce := md5hex(uuid.NewString())
	a.mu.Lock()
	a.nonces[nonce] = struct{}{}
	a.issued = append(a.issued, nonce)
	if len(a.issued) > maxDigestNonces {
		delete(a.nonces, a.issued[0])
		a.issued = a.issued[1:]
	}
	a.mu.Unlock()
	return fmt.Sprintf(`Digest realm="%s", qop="auth", nonce="%s", opaque="%s", algorithm=MD5`,
		DefaultRealm, nonce, a.opaque)
}

func (a *digestAuth) Authenticate(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Digest ") {
		return false
	}
	params := parseDigestParams(strings.TrimPrefix(header, "Digest "))
	if params["username"] != a.username || params["realm"] != DefaultRealm {
		return false
	}
	nonce := params["nonce"]
	a.mu.Lock()
	_, known := a.nonces[nonce]
	a.mu.Unlock()
	if !known {
		return false
	}
	ha1 := md5hex(a.username + ":" + DefaultRealm + ":" + a.password)
	ha2 := md5hex(r.Method + ":" + params["uri"])
	var expected string
	if qop := params["qop"]; qop != "" {
		expected = md5hex(strings.Join([]string{ha1, nonce, params["nc"], params["cnonce"], qop, ha2}, ":"))
	} else {
		expected = md5hex(ha1 + ":" + nonce + ":" + ha2)
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(params["response"])) == 1
}

// parseDigestParams splits `k="v", k2=v2` pairs, honouring quoted commas.
func parseDigestParams(s string) map[string]string {
	params := make(map[string]string)
	var parts []string
	inQuotes := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	for _, part := range parts {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		params[strings.ToLower(strings.TrimSpace(key))] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return params
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
