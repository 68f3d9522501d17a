package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewEventLoop(t *testing.T) {
	d, _ := createTestDaemon(t, testConfig(t))

	eventLoop := NewEventLoop(d)
	assert.Equal(t, d, eventLoop.daemon)
	assert.Equal(t, statsInterval, eventLoop.interval)
}

func TestEventLoopRun(t *testing.T) {
	d, _ := createTestDaemon(t, testConfig(t))
	eventLoop := NewEventLoop(d)
	eventLoop.interval = 5 * time.Millisecond

	d.GetQueue().Enqueue("-100", "pending")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eventLoop.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event loop did not stop")
	}
}
