package tasksystem_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/pkg/tasksystem"
)

func TestQueueTaskRunsAllTasks(t *testing.T) {
	t.Parallel()

	p := tasksystem.New(4)

	var count atomic.Int64

	for i := 0; i < 100; i++ {
		p.QueueTask(func() { count.Add(1) })
	}

	p.Finish()

	require.EqualValues(t, 100, count.Load())

	p.Shutdown()
}

func TestFinishWaitsForNestedTasks(t *testing.T) {
	t.Parallel()

	p := tasksystem.New(2)

	var count atomic.Int64

	var enqueue func(depth int)
	enqueue = func(depth int) {
		count.Add(1)

		if depth > 0 {
			p.QueueTask(func() { enqueue(depth - 1) })
		}
	}

	p.QueueTask(func() { enqueue(5) })
	p.Finish()

	require.EqualValues(t, 6, count.Load())

	p.Shutdown()
}

func TestSingleWorkerPoolStillRuns(t *testing.T) {
	t.Parallel()

	p := tasksystem.New(1)

	done := make(chan struct{})
	p.QueueTask(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}

	p.Shutdown()
}

func TestShutdownReturnsAfterWorkersExit(t *testing.T) {
	t.Parallel()

	p := tasksystem.New(3)

	p.QueueTask(func() {})
	p.Finish()
	p.Shutdown()
}
