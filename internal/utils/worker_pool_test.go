package utils

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_RunsSubmittedTasks(t *testing.T) {
	pool := NewWorkerPool(4, 16)

	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		})
	}
	wg.Wait()
	pool.Shutdown()

	assert.Equal(t, int64(50), ran.Load())
}

func TestWorkerPool_TrySubmitRejectsWhenFull(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	defer pool.Shutdown()

	block := make(chan struct{})
	release := func() { close(block) }
	defer release()

	// Occupy the single worker; successive TrySubmits fill the single queue
	// slot and then start bouncing.
	pool.Submit(func() { <-block })
	assert.Eventually(t, func() bool {
		return !pool.TrySubmit(func() {})
	}, time.Second, 5*time.Millisecond)
}
