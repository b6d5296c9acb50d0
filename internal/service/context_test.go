package service

import (
	"context"
	"sync"
	"testing"
)

// testContext backports testing.T.Context (Go 1.24) for the Go 1.21 toolchain:
// one context per test, canceled when the test finishes.
var (
	testContextsMu sync.Mutex
	testContexts   = map[*testing.T]context.Context{}
)

func testContext(t *testing.T) context.Context {
	testContextsMu.Lock()
	defer testContextsMu.Unlock()
	if ctx, ok := testContexts[t]; ok {
		return ctx
	}
	ctx, cancel := context.WithCancel(context.Background())
	testContexts[t] = ctx
	t.Cleanup(func() {
		cancel()
		testContextsMu.Lock()
		delete(testContexts, t)
		testContextsMu.Unlock()
	})
	return ctx
}
