// Package ersatz is an embeddable mock HTTP and WebSocket server for tests.
//
// Expectations pair request matchers with canned responses. The first
// registered expectation that matches a request answers it, its call counter
// is incremented and its responses are served in order, the last one
// repeating. Verify waits a bounded time for every expectation's call-count
// condition to hold and reports all that did not.
//
//	ms := ersatz.NewMockServer()
//	defer ms.Close()
//
//	ms.Get("/users/1", func(e *ersatz.Expectation) {
//		e.Header("Accept", "application/json").RespondWith(200, `{"id":1}`).Once()
//	})
//	// ... exercise the client against ms.URL() ...
//	if err := ms.Verify(); err != nil {
//		t.Fatal(err)
//	}
package ersatz
