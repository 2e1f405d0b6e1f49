package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_PushPop(t *testing.T) {
	q := New[int]()
	assert.True(t, q.Empty())

	_, ok := q.Pop()
	assert.False(t, ok)

	q.Push(1, 2)
	q.Push(3)
	assert.Equal(t, 3, q.Len())

	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_SnapshotIsACopy(t *testing.T) {
	q := New[string]()
	q.Push("a", "b")

	snap := q.Snapshot()
	snap[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, q.Snapshot())
}

func TestQueue_DrainAndClear(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3)

	assert.Equal(t, []int{1, 2, 3}, q.Drain())
	assert.True(t, q.Empty())

	q.Push(4)
	q.Clear()
	assert.Equal(t, 0, q.Len())
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			q.Push(n)
		}(i)
	}
	wg.Wait()
	assert.Len(t, q.Drain(), 50)
}
