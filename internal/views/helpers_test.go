package views

import (
	"testing"
	"time"

	"github.com/example/ride-sync/internal/lifecycle"
)

type lifecycleState = lifecycle.DriverState

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
