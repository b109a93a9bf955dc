package utils

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_RunsJobs(t *testing.T) {
	p := NewWorkerPool(4, 16, nil)
	p.Start()

	var n atomic.Int64
	for range 100 {
		p.Submit(func() { n.Add(1) })
	}
	p.Stop()

	assert.EqualValues(t, 100, n.Load())
}

func TestWorkerPool_SurvivesPanic(t *testing.T) {
	p := NewWorkerPool(1, 4, nil)
	p.Start()
	defer p.Stop()

	done := make(chan struct{})
	p.Submit(func() { panic("boom") })
	p.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestWorkerPool_TrySubmitFull(t *testing.T) {
	p := NewWorkerPool(1, 1, nil)
	// not started: the single queue slot fills up
	assert.True(t, p.TrySubmit(func() {}))
	assert.False(t, p.TrySubmit(func() {}))
	p.Start()
	p.Stop()
}

func TestWorkerPool_StopIsIdempotent(t *testing.T) {
	p := NewWorkerPool(2, 2, nil)
	p.Start()
	p.Stop()
	assert.NotPanics(t, p.Stop)
}
