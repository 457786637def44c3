package sync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSyncer struct {
	name    string
	pushes  atomic.Int32
	fetches atomic.Int32
}

func (f *fakeSyncer) Name() string { return f.name }

func (f *fakeSyncer) ProcessQueue(ctx context.Context) bool {
	f.pushes.Add(1)
	return true
}

func (f *fakeSyncer) FetchAndMerge(ctx context.Context) bool {
	f.fetches.Add(1)
	return true
}

func TestRunOnce(t *testing.T) {
	a := &fakeSyncer{name: "a"}
	b := &fakeSyncer{name: "b"}

	r := NewRunner(0, a)
	r.Register(b)
	r.RunOnce(context.Background())

	assert.Equal(t, int32(1), a.pushes.Load())
	assert.Equal(t, int32(1), a.fetches.Load())
	assert.Equal(t, int32(1), b.pushes.Load())
	assert.Equal(t, int32(1), b.fetches.Load())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := &fakeSyncer{name: "s"}
	r := NewRunner(time.Hour, s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// The first pass runs before the ticker fires.
	deadline := time.After(2 * time.Second)
	for s.fetches.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("Expected an immediate first sync pass")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected Run to return after cancellation")
	}
}
