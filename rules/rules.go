//go:build ruleguard

// Package gorules holds ruleguard checks run by golangci-lint.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo flags the Add/Done goroutine pattern that sync.WaitGroup.Go
// replaces. Alert patterns and speech playback all rely on Go.
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`go func() { defer $wg.Done(); $*body }()`).
		Where(m["wg"].Type.Is("sync.WaitGroup") || m["wg"].Type.Is("*sync.WaitGroup")).
		Report("use $wg.Go(func() { ... })").
		Suggest("$wg.Go(func() { $body })")

	m.Match(`$wg.Add(1)`).
		Where(m["wg"].Type.Is("sync.WaitGroup") || m["wg"].Type.Is("*sync.WaitGroup")).
		Report("$wg.Go adds to the counter itself")
}

// TestContext keeps tests on t.Context so capture and alert goroutines
// stop when the test ends.
func TestContext(m dsl.Matcher) {
	m.Match(`context.Background()`, `context.TODO()`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("use t.Context() in tests")
}

// DeferredSince catches durations evaluated when the defer runs.
func DeferredSince(m dsl.Matcher) {
	m.Match(`defer $fn($*_, time.Since($start), $*_)`).
		Report("time.Since($start) is evaluated at the defer statement; wrap it in a closure")
}
