package cli

import (
	"testing"
	"time"
)

func TestSetupSignalHandler(t *testing.T) {
	ctx, stop := SetupSignalHandler()

	select {
	case <-ctx.Done():
		t.Fatal("Context should not be cancelled initially")
	case <-time.After(10 * time.Millisecond):
	}

	stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("Expected context cancelled after stop")
	}
}
