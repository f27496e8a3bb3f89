package bootstrap

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSupervisorRunsWorkersUntilCancelled(t *testing.T) {
	sup := NewSupervisor(nil)

	var started, stopped atomic.Int32
	for i := 0; i < 3; i++ {
		sup.Add("worker", func(ctx context.Context) {
			started.Add(1)
			<-ctx.Done()
			stopped.Add(1)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return started.Load() == 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not drain workers")
	}
	assert.Equal(t, int32(3), stopped.Load())
}

func TestSupervisorIgnoresNilWorkers(t *testing.T) {
	sup := NewSupervisor(nil)
	sup.Add("nil", nil)

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("empty supervisor should return immediately")
	}
}
