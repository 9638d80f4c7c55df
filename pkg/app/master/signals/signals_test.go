package signals

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInitHandlersCancel(t *testing.T) {
	ctx, cancel := InitHandlers(context.Background())
	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context is not canceled")
	}
}

func TestInitHandlersSignal(t *testing.T) {
	parent, stop := context.WithCancel(context.Background())
	defer stop()

	ctx, cancel := InitHandlers(parent)
	defer cancel()

	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("context is not canceled by the signal")
	}
}
