package safego

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vivadrive/organization-api/internal/telemetry"
)

func waitGroupDone(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not complete within timeout")
	}
}

func TestGo_RunsFunction(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	Go("test-run", func() {
		defer wg.Done()
	})

	waitGroupDone(t, &wg)
}

func TestGo_RecoversPanic(t *testing.T) {
	counter := telemetry.GoroutinePanicsTotal.WithLabelValues("test-panic")
	before := testutil.ToFloat64(counter)

	var wg sync.WaitGroup
	wg.Add(1)

	// Must not crash the test process.
	Go("test-panic", func() {
		defer wg.Done()
		panic("intentional panic in test")
	})

	waitGroupDone(t, &wg)

	// The deferred recover runs after wg.Done, so poll briefly for the increment.
	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(counter) == before {
		if time.Now().After(deadline) {
			t.Fatal("goroutine_panics_total was not incremented")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
