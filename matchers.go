package ersatz

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"
)

// --- Method ---

// Method matches the request method exactly. The ANY sentinel matches every
// standard HTTP verb.
func Method(method string) Matcher {
	if method == ANY {
		return Methods(StandardMethods...)
	}
	return Matching(fmt.Sprintf("method is %s", method), func(r *Request) bool {
		return r.Method == method
	})
}

// Methods matches any method in the set.
func Methods(methods ...string) Matcher {
	set := AnyOf(methods...)
	return Matching(fmt.Sprintf("method is %s", set), func(r *Request) bool {
		return set.Test(r.Method)
	})
}

// --- Path ---

// AnyPathSentinel is the literal path that matches every request path.
const AnyPathSentinel = "*"

// Path matches the request path exactly, or any path for the "*" sentinel.
func Path(path string) Matcher {
	if path == AnyPathSentinel {
		return AnyPath()
	}
	return PathMatching(EqualTo(path))
}

// AnyPath matches every request path.
func AnyPath() Matcher {
	return Matching("path is anything", func(*Request) bool { return true })
}

// PathMatching matches the request path against a string predicate, e.g.
// HasPrefix or MatchesRegex.
func PathMatching(p Predicate[string]) Matcher {
	return Matching("path "+p.String(), func(r *Request) bool { return p.Test(r.Path) })
}

// --- Protocol ---

// SchemeIs matches the request protocol ("http" or "https") ignoring case.
func SchemeIs(scheme string) Matcher {
	return Matching(fmt.Sprintf("protocol is %s", strings.ToLower(scheme)), func(r *Request) bool {
		return strings.EqualFold(r.Scheme, scheme)
	})
}

// --- Headers ---

// Header matches the full value set of the named header.
func Header(name string, p Predicate[[]string]) Matcher {
	return Matching(fmt.Sprintf("header %s %s", name, p), func(r *Request) bool {
		return p.Test(r.Header.Values(name))
	})
}

// HeaderEquals matches when one of the header's values equals value.
func HeaderEquals(name, value string) Matcher {
	return Header(name, HasItem(EqualTo(value)))
}

// HeaderContains matches when value appears as a comma-separated token in
// any of the header's values, so "gzip" matches "Accept-Encoding: gzip, deflate".
func HeaderContains(name, value string) Matcher {
	token := PredicateFunc(fmt.Sprintf("has token %q", value), func(vs []string) bool {
		for _, v := range vs {
			for _, t := range strings.Split(v, ",") {
				if strings.TrimSpace(t) == value {
					return true
				}
			}
		}
		return false
	})
	return Header(name, token)
}

// HeaderPresent matches when the header is sent, even with an empty value.
func HeaderPresent(name string) Matcher { return Header(name, Present()) }

// HeaderAbsent matches when the header is not sent.
func HeaderAbsent(name string) Matcher { return Header(name, Absent()) }

// --- Query and body parameters ---

// Query matches the full value set of the named query parameter.
func Query(name string, p Predicate[[]string]) Matcher {
	return Matching(fmt.Sprintf("query %s %s", name, p), func(r *Request) bool {
		return p.Test(r.Query[name])
	})
}

// QueryEquals matches when one of the parameter's values equals value.
func QueryEquals(name, value string) Matcher {
	return Query(name, HasItem(EqualTo(value)))
}

// QueryPresent matches when the parameter is sent, even as "?name=" or "?name".
func QueryPresent(name string) Matcher { return Query(name, Present()) }

// Param matches the full value set of a body-derived (form or multipart)
// parameter.
func Param(name string, p Predicate[[]string]) Matcher {
	return Matching(fmt.Sprintf("param %s %s", name, p), func(r *Request) bool {
		return p.Test(r.Params[name])
	})
}

// ParamEquals matches when one of the parameter's values equals value.
func ParamEquals(name, value string) Matcher {
	return Param(name, HasItem(EqualTo(value)))
}

// --- Cookies ---

// HasCookie matches the named cookie against a composite cookie predicate.
// A missing cookie never matches.
func HasCookie(name string, p Predicate[Cookie]) Matcher {
	return Matching(fmt.Sprintf("cookie %s %s", name, p), func(r *Request) bool {
		c, ok := r.Cookies[name]
		if !ok {
			return false
		}
		return p.Test(c)
	})
}

// CookieValue matches the named cookie's value exactly.
func CookieValue(name, value string) Matcher {
	return HasCookie(name, CookieFields().Value(EqualTo(value)).Predicate())
}

// CookieMatcher accumulates per-field cookie predicates.
type CookieMatcher struct {
	preds []Predicate[Cookie]
}

// CookieFields starts a composite cookie predicate.
func CookieFields() *CookieMatcher { return &CookieMatcher{} }

func (c *CookieMatcher) field(name string, test func(Cookie) bool, desc string) *CookieMatcher {
	c.preds = append(c.preds, PredicateFunc(name+" "+desc, test))
	return c
}

// Value constrains the cookie value.
func (c *CookieMatcher) Value(p Predicate[string]) *CookieMatcher {
	return c.field("value", func(k Cookie) bool { return p.Test(k.Value) }, p.String())
}

// Domain constrains the cookie domain.
func (c *CookieMatcher) Domain(p Predicate[string]) *CookieMatcher {
	return c.field("domain", func(k Cookie) bool { return p.Test(k.Domain) }, p.String())
}

// Path constrains the cookie path.
func (c *CookieMatcher) Path(p Predicate[string]) *CookieMatcher {
	return c.field("path", func(k Cookie) bool { return p.Test(k.Path) }, p.String())
}

// Comment constrains the cookie comment.
func (c *CookieMatcher) Comment(p Predicate[string]) *CookieMatcher {
	return c.field("comment", func(k Cookie) bool { return p.Test(k.Comment) }, p.String())
}

// Version requires an exact cookie version.
func (c *CookieMatcher) Version(v int) *CookieMatcher {
	return c.field("version", func(k Cookie) bool { return k.Version == v }, fmt.Sprint(v))
}

// MaxAge requires an exact max-age.
func (c *CookieMatcher) MaxAge(v int) *CookieMatcher {
	return c.field("maxAge", func(k Cookie) bool { return k.MaxAge == v }, fmt.Sprint(v))
}

// Secure requires the secure flag to equal v.
func (c *CookieMatcher) Secure(v bool) *CookieMatcher {
	return c.field("secure", func(k Cookie) bool { return k.Secure == v }, fmt.Sprint(v))
}

// HTTPOnly requires the httpOnly flag to equal v.
func (c *CookieMatcher) HTTPOnly(v bool) *CookieMatcher {
	return c.field("httpOnly", func(k Cookie) bool { return k.HTTPOnly == v }, fmt.Sprint(v))
}

// Predicate returns the conjunction of all configured field predicates.
func (c *CookieMatcher) Predicate() Predicate[Cookie] {
	if len(c.preds) == 0 {
		return Anything[Cookie]()
	}
	return AllOf(c.preds...)
}

// --- Body ---

// Body matches the raw request body.
func Body(p Predicate[[]byte]) Matcher {
	return Matching("body "+p.String(), func(r *Request) bool { return p.Test(r.Body) })
}

// BodyString matches a body equal to s.
func BodyString(s string) Matcher {
	return Body(PredicateFunc(fmt.Sprintf("equal to %q", s), func(b []byte) bool {
		return bytes.Equal(b, []byte(s))
	}))
}

// BodyContains matches a body containing sub.
func BodyContains(sub string) Matcher {
	return Body(PredicateFunc(fmt.Sprintf("containing %q", sub), func(b []byte) bool {
		return bytes.Contains(b, []byte(sub))
	}))
}

// DecodedBody matches requests of the given content type whose body, once
// decoded by the decoder registered for that type, satisfies p. The decoder
// is resolved here, so a missing decoder is reported at registration time.
func DecodedBody(decoders *Decoders, contentType string, p Predicate[any]) (Matcher, error) {
	decode, err := decoders.Resolve(contentType)
	if err != nil {
		return nil, err
	}
	want := normalizeMediaType(contentType)
	desc := fmt.Sprintf("body decoded as %s %s", want, p)
	return Matching(desc, func(r *Request) bool {
		if normalizeMediaType(r.ContentType) != want {
			return false
		}
		v, err := decode(r.Body, r)
		if err != nil {
			return false
		}
		return p.Test(v)
	}), nil
}

// JSONPath matches when the gjson path exists in a JSON body and its string
// form satisfies p. Example: JSONPath("user.name", EqualTo("alice")).
func JSONPath(path string, p Predicate[string]) Matcher {
	return Matching(fmt.Sprintf("json %s %s", path, p), func(r *Request) bool {
		if !gjson.ValidBytes(r.Body) {
			return false
		}
		res := gjson.GetBytes(r.Body, path)
		if !res.Exists() {
			return false
		}
		return p.Test(res.String())
	})
}

// JSONEquals returns a body predicate accepting JSON semantically equal to
// expected. It returns an error if expected is not valid JSON.
func JSONEquals(expected string) (Predicate[[]byte], error) {
	if !gjson.Valid(expected) {
		return Predicate[[]byte]{}, fmt.Errorf("invalid expected JSON: %q", expected)
	}
	want := gjson.Parse(expected).Value()
	return PredicateFunc("json equal to "+expected, func(b []byte) bool {
		if !gjson.ValidBytes(b) {
			return false
		}
		return reflect.DeepEqual(gjson.ParseBytes(b).Value(), want)
	}), nil
}

// JSONContains returns a body predicate accepting JSON objects that contain
// every key/value of expected, recursively.
func JSONContains(expected string) (Predicate[[]byte], error) {
	want, ok := gjson.Parse(expected).Value().(map[string]any)
	if !gjson.Valid(expected) || !ok {
		return Predicate[[]byte]{}, fmt.Errorf("invalid expected JSON object: %q", expected)
	}
	return PredicateFunc("json containing "+expected, func(b []byte) bool {
		if !gjson.ValidBytes(b) {
			return false
		}
		got, ok := gjson.ParseBytes(b).Value().(map[string]any)
		if !ok {
			return false
		}
		return containsAll(got, want)
	}), nil
}

// containsAll checks if actual contains all key-value pairs from expected.
func containsAll(actual, expected map[string]any) bool {
	for key, expectedValue := range expected {
		actualValue, exists := actual[key]
		if !exists {
			return false
		}
		if expectedMap, ok := expectedValue.(map[string]any); ok {
			actualMap, ok := actualValue.(map[string]any)
			if !ok || !containsAll(actualMap, expectedMap) {
				return false
			}
		} else if !reflect.DeepEqual(actualValue, expectedValue) {
			return false
		}
	}
	return true
}
