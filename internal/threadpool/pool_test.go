package threadpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolRunsEveryJob(t *testing.T) {
	p := New(4)
	defer p.Stop()

	const n = 100
	var done int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		p.Spawn(func() {
			atomic.AddInt64(&done, 1)
			wg.Done()
		})
	}

	waitOrTimeout(t, &wg, time.Second)
	require.EqualValues(t, n, atomic.LoadInt64(&done))
}

// TestPoolSurvivesPanickingJob checks that a job that terminates
// abnormally does not take its worker down with it.
func TestPoolSurvivesPanickingJob(t *testing.T) {
	p := New(2)
	defer p.Stop()

	p.Spawn(func() {
		panic("boom")
	})

	var wg sync.WaitGroup
	wg.Add(1)
	var ran int32
	p.Spawn(func() {
		atomic.StoreInt32(&ran, 1)
		wg.Done()
	})

	waitOrTimeout(t, &wg, time.Second)
	require.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestPoolStopJoinsAllWorkers(t *testing.T) {
	p := New(3)
	var started int32
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		p.Spawn(func() {
			atomic.AddInt32(&started, 1)
			wg.Done()
		})
	}
	waitOrTimeout(t, &wg, time.Second)
	p.Stop()
	require.EqualValues(t, 3, atomic.LoadInt32(&started))
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for jobs to finish")
	}
}
