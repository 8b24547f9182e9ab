package ersatz

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
)

// Matcher is a described boolean test over an incoming request.
// Implementations must be pure: they never mutate the request.
type Matcher interface {
	Matches(r *Request) bool
	String() string
}

// Predicate is a described boolean test over a single value.
type Predicate[T any] struct {
	test func(T) bool
	desc string
}

// PredicateFunc wraps an arbitrary function as a Predicate.
func PredicateFunc[T any](desc string, fn func(T) bool) Predicate[T] {
	return Predicate[T]{test: fn, desc: desc}
}

// Test applies the predicate. A zero Predicate accepts everything.
func (p Predicate[T]) Test(v T) bool {
	if p.test == nil {
		return true
	}
	return p.test(v)
}

func (p Predicate[T]) String() string {
	if p.desc == "" {
		return "anything"
	}
	return p.desc
}

// Anything accepts every value.
func Anything[T any]() Predicate[T] {
	return PredicateFunc("anything", func(T) bool { return true })
}

// EqualTo accepts values equal to expected.
func EqualTo[T comparable](expected T) Predicate[T] {
	return PredicateFunc(fmt.Sprintf("equal to %q", fmt.Sprint(expected)), func(v T) bool {
		return v == expected
	})
}

// EqualFold accepts strings equal to expected ignoring case.
func EqualFold(expected string) Predicate[string] {
	return PredicateFunc(fmt.Sprintf("equal to %q ignoring case", expected), func(v string) bool {
		return strings.EqualFold(v, expected)
	})
}

// ContainsString accepts strings containing sub.
func ContainsString(sub string) Predicate[string] {
	return PredicateFunc(fmt.Sprintf("containing %q", sub), func(v string) bool {
		return strings.Contains(v, sub)
	})
}

// HasPrefix accepts strings starting with prefix.
func HasPrefix(prefix string) Predicate[string] {
	return PredicateFunc(fmt.Sprintf("starting with %q", prefix), func(v string) bool {
		return strings.HasPrefix(v, prefix)
	})
}

// HasSuffix accepts strings ending with suffix.
func HasSuffix(suffix string) Predicate[string] {
	return PredicateFunc(fmt.Sprintf("ending with %q", suffix), func(v string) bool {
		return strings.HasSuffix(v, suffix)
	})
}

// MatchesRegex accepts strings matched by the pattern. It returns an error
// when the pattern does not compile.
func MatchesRegex(pattern string) (Predicate[string], error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Predicate[string]{}, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return PredicateFunc(fmt.Sprintf("matching /%s/", pattern), re.MatchString), nil
}

// MustMatchRegex is like MatchesRegex but panics on an invalid pattern.
func MustMatchRegex(pattern string) Predicate[string] {
	p, err := MatchesRegex(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// AnyOf accepts values equal to one of the candidates.
func AnyOf[T comparable](candidates ...T) Predicate[T] {
	return PredicateFunc(fmt.Sprintf("one of %v", candidates), func(v T) bool {
		return slices.Contains(candidates, v)
	})
}

// AllOf accepts values accepted by every predicate.
func AllOf[T any](ps ...Predicate[T]) Predicate[T] {
	return PredicateFunc(joinDescriptions(ps, " and "), func(v T) bool {
		for _, p := range ps {
			if !p.Test(v) {
				return false
			}
		}
		return true
	})
}

// EitherOf accepts values accepted by at least one predicate.
func EitherOf[T any](ps ...Predicate[T]) Predicate[T] {
	return PredicateFunc(joinDescriptions(ps, " or "), func(v T) bool {
		for _, p := range ps {
			if p.Test(v) {
				return true
			}
		}
		return false
	})
}

// NotP negates a predicate.
func NotP[T any](p Predicate[T]) Predicate[T] {
	return PredicateFunc("not "+p.String(), func(v T) bool { return !p.Test(v) })
}

func joinDescriptions[T any](ps []Predicate[T], sep string) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// --- Value-set predicates ---
//
// Headers, query parameters and body parameters may repeat, so their
// matchers see every value associated with a name.

// HasItem accepts value sets where at least one value satisfies p.
func HasItem(p Predicate[string]) Predicate[[]string] {
	return PredicateFunc("has item "+p.String(), func(vs []string) bool {
		for _, v := range vs {
			if p.Test(v) {
				return true
			}
		}
		return false
	})
}

// EveryItem accepts non-empty value sets where every value satisfies p.
func EveryItem(p Predicate[string]) Predicate[[]string] {
	return PredicateFunc("every item "+p.String(), func(vs []string) bool {
		if len(vs) == 0 {
			return false
		}
		for _, v := range vs {
			if !p.Test(v) {
				return false
			}
		}
		return true
	})
}

// ContainsInAnyOrder accepts value sets holding exactly the given values,
// in any order.
func ContainsInAnyOrder(expected ...string) Predicate[[]string] {
	want := slices.Clone(expected)
	sort.Strings(want)
	return PredicateFunc(fmt.Sprintf("exactly %q in any order", expected), func(vs []string) bool {
		got := slices.Clone(vs)
		sort.Strings(got)
		return slices.Equal(got, want)
	})
}

// Present accepts any value set with at least one value, including a single
// empty string.
func Present() Predicate[[]string] {
	return PredicateFunc("present", func(vs []string) bool { return len(vs) > 0 })
}

// Absent accepts value sets with no values.
func Absent() Predicate[[]string] {
	return PredicateFunc("absent", func(vs []string) bool { return len(vs) == 0 })
}

// --- Call-count predicates ---

// Times accepts exactly n calls.
func Times(n int) Predicate[int] {
	return PredicateFunc(fmt.Sprintf("exactly %d time(s)", n), func(c int) bool { return c == n })
}

// AtLeast accepts n or more calls.
func AtLeast(n int) Predicate[int] {
	return PredicateFunc(fmt.Sprintf("at least %d time(s)", n), func(c int) bool { return c >= n })
}

// AtMost accepts n or fewer calls.
func AtMost(n int) Predicate[int] {
	return PredicateFunc(fmt.Sprintf("at most %d time(s)", n), func(c int) bool { return c <= n })
}

// Between accepts a call count in [lo, hi].
func Between(lo, hi int) Predicate[int] {
	return PredicateFunc(fmt.Sprintf("between %d and %d time(s)", lo, hi), func(c int) bool {
		return c >= lo && c <= hi
	})
}

// Never accepts zero calls.
func Never() Predicate[int] {
	return PredicateFunc("never", func(c int) bool { return c == 0 })
}

// AnyCount accepts every call count. It is the default verifier.
func AnyCount() Predicate[int] {
	return PredicateFunc("any number of times", func(int) bool { return true })
}

// --- Matcher combinators ---

type matcherFunc struct {
	fn   func(*Request) bool
	desc string
}

func (m matcherFunc) Matches(r *Request) bool { return m.fn(r) }
func (m matcherFunc) String() string          { return m.desc }

// Matching wraps an arbitrary whole-request predicate.
func Matching(desc string, fn func(*Request) bool) Matcher {
	return matcherFunc{fn: fn, desc: desc}
}

type andMatcher []Matcher

// And matches when every matcher matches. And() matches everything.
func And(ms ...Matcher) Matcher { return andMatcher(ms) }

func (a andMatcher) Matches(r *Request) bool {
	for _, m := range a {
		if !m.Matches(r) {
			return false
		}
	}
	return true
}

func (a andMatcher) String() string { return joinMatchers(a, " AND ") }

type orMatcher []Matcher

// Or matches when at least one matcher matches. Or() matches nothing.
func Or(ms ...Matcher) Matcher { return orMatcher(ms) }

func (o orMatcher) Matches(r *Request) bool {
	for _, m := range o {
		if m.Matches(r) {
			return true
		}
	}
	return false
}

func (o orMatcher) String() string { return joinMatchers(o, " OR ") }

type notMatcher struct{ m Matcher }

// Not inverts a matcher.
func Not(m Matcher) Matcher { return notMatcher{m: m} }

func (n notMatcher) Matches(r *Request) bool { return !n.m.Matches(r) }
func (n notMatcher) String() string          { return "NOT " + n.m.String() }

func joinMatchers(ms []Matcher, sep string) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = m.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
