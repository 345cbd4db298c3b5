package crawler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/scrawl/internal/models"
)

func TestQueuePriorityOrdering(t *testing.T) {
	q := NewPriorityQueue()

	q.Push(models.NewWorkItem("https://ex.com/deep", 3))
	q.Push(models.NewWorkItem("https://ex.com/root", 0))
	q.Push(models.NewWorkItem("https://ex.com/mid", 1))

	var urls []string
	for !q.Empty() {
		item, ok := q.TryPopNonblocking()
		require.True(t, ok)
		urls = append(urls, item.URL)
	}
	assert.Equal(t, []string{"https://ex.com/root", "https://ex.com/mid", "https://ex.com/deep"}, urls)
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	q := NewPriorityQueue()

	q.Push(models.NewWorkItem("https://ex.com/a", 1))
	q.Push(models.NewWorkItem("https://ex.com/b", 1))
	q.Push(models.NewWorkItem("https://ex.com/c", 1))

	for _, want := range []string{"https://ex.com/a", "https://ex.com/b", "https://ex.com/c"} {
		item, ok := q.TryPopNonblocking()
		require.True(t, ok)
		assert.Equal(t, want, item.URL)
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewPriorityQueue()

	done := make(chan models.WorkItem, 1)
	go func() {
		item, ok := q.Pop()
		if ok {
			done <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(models.NewWorkItem("https://ex.com/", 0))

	select {
	case item := <-done:
		assert.Equal(t, "https://ex.com/", item.URL)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestQueueCloseReleasesWaiters(t *testing.T) {
	q := NewPriorityQueue()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Pop()
			assert.False(t, ok)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()

	assert.True(t, q.IsClosed())
	assert.False(t, q.Push(models.NewWorkItem("https://ex.com/", 0)))
	assert.Equal(t, 0, q.PushBatch([]models.WorkItem{models.NewWorkItem("https://ex.com/", 0)}))
}

func TestQueueClosedButNotDrained(t *testing.T) {
	q := NewPriorityQueue()
	q.Push(models.NewWorkItem("https://ex.com/", 0))
	q.Close()

	item, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "https://ex.com/", item.URL)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueueTryPopTimeout(t *testing.T) {
	q := NewPriorityQueue()

	start := time.Now()
	_, ok := q.TryPop(50 * time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 45*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestQueueTryPopWakesOnPush(t *testing.T) {
	q := NewPriorityQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(models.NewWorkItem("https://ex.com/", 0))
	}()

	item, ok := q.TryPop(time.Second)
	require.True(t, ok)
	assert.Equal(t, "https://ex.com/", item.URL)
}

func TestQueuePushBatch(t *testing.T) {
	q := NewPriorityQueue()
	n := q.PushBatch([]models.WorkItem{
		models.NewWorkItem("https://ex.com/a", 1),
		models.NewWorkItem("https://ex.com/b", 0),
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, q.Size())

	item, ok := q.TryPopNonblocking()
	require.True(t, ok)
	assert.Equal(t, "https://ex.com/b", item.URL)
}

func TestQueueStats(t *testing.T) {
	q := NewPriorityQueue()
	q.Push(models.NewWorkItem("https://ex.com/a", 0))
	q.Push(models.NewWorkItem("https://ex.com/b", 4))
	q.Push(models.NewWorkItem("https://ex.com/c", 2))
	q.TryPopNonblocking()

	stats := q.Stats()
	assert.Equal(t, 3, stats.TotalPushed)
	assert.Equal(t, 1, stats.TotalPopped)
	assert.Equal(t, 2, stats.CurrentSize)
	assert.Equal(t, 0, stats.MinDepth)
	assert.Equal(t, 4, stats.MaxDepth)
}

func TestQueueClear(t *testing.T) {
	q := NewPriorityQueue()
	q.Push(models.NewWorkItem("https://ex.com/a", 0))
	q.Push(models.NewWorkItem("https://ex.com/b", 1))
	q.Clear()
	assert.True(t, q.Empty())
}
