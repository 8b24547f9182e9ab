package ersatz

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const maxReportBody = 1024

// RenderUnmatched describes a request that matched no expectation and, for
// every registered expectation, which of its matchers accepted or rejected
// the request.
func RenderUnmatched(r *Request, expectations []*Expectation) string {
	var b strings.Builder
	b.WriteString("# Unmatched Request\n\n")
	if r == nil {
		b.WriteString("<empty>\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%s %s %s\n", placeholder(r.Scheme, "<empty>"), placeholder(r.Method, "<empty>"), placeholder(r.Path, "<empty>"))
	b.WriteString("Headers:\n")
	writeValues(&b, r.Header, "<no-headers>")
	b.WriteString("Query:\n")
	writeValues(&b, r.Query, "<no-query>")
	b.WriteString("Cookies:\n")
	if len(r.Cookies) == 0 {
		b.WriteString("  <no-cookies>\n")
	} else {
		names := make([]string, 0, len(r.Cookies))
		for name := range r.Cookies {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  - %s: %s\n", name, placeholder(r.Cookies[name].Value, "<empty>"))
		}
	}
	fmt.Fprintf(&b, "Content-Type: %s\n", placeholder(r.ContentType, "<empty>"))
	fmt.Fprintf(&b, "Body: %s\n", renderBody(r.Body))

	b.WriteString("\n# Expectations\n")
	if len(expectations) == 0 {
		b.WriteString("\n<no-expectations>\n")
		return b.String()
	}
	for i, exp := range expectations {
		fmt.Fprintf(&b, "\nExpectation (%d): %s\n", i, exp)
		for _, m := range exp.Matchers() {
			mark := "X"
			if m.Matches(r) {
				mark = "OK"
			}
			fmt.Fprintf(&b, "  (%s) %s\n", mark, m)
		}
	}
	return b.String()
}

func writeValues(b *strings.Builder, values map[string][]string, empty string) {
	if len(values) == 0 {
		fmt.Fprintf(b, "  %s\n", empty)
		return
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "  - %s: %s\n", name, strings.Join(values[name], ", "))
	}
}

func renderBody(body []byte) string {
	if len(body) == 0 {
		return "<empty>"
	}
	if !utf8.Valid(body) {
		return fmt.Sprintf("<%d bytes of binary content>", len(body))
	}
	if len(body) > maxReportBody {
		return string(body[:maxReportBody]) + "..."
	}
	return string(body)
}

func placeholder(s, empty string) string {
	if s == "" {
		return empty
	}
	return s
}
