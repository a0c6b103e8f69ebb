package internal

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjectorIsFifo(t *testing.T) {
	var q Injector[int]
	assert.True(t, q.IsEmpty())

	for i := 1; i <= 3; i++ {
		q.Push(i)
	}
	assert.Equal(t, 3, q.Len())

	for want := 1; want <= 3; want++ {
		got, ok := q.Steal()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := q.Steal()
	assert.False(t, ok)
}

func TestRunWorkersDrainsEveryStage(t *testing.T) {
	var first, second Injector[int]
	for i := 0; i < 100; i++ {
		first.Push(i)
	}

	var mu sync.Mutex
	var results []int
	forward := func(ctx context.Context) bool {
		v, ok := first.Steal()
		if ok {
			second.Push(v * 2)
		}
		return ok
	}
	collect := func(ctx context.Context) bool {
		v, ok := second.Steal()
		if ok {
			mu.Lock()
			results = append(results, v)
			mu.Unlock()
		}
		return ok
	}

	require.NoError(t, RunWorkers(context.Background(), 8, collect, forward))
	assert.Len(t, results, 100)
	assert.True(t, first.IsEmpty())
	assert.True(t, second.IsEmpty())
}

func TestRunWorkersPrefersDeeperStages(t *testing.T) {
	var downstream, upstream Injector[int]
	upstream.Push(1)
	upstream.Push(2)
	downstream.Push(0)

	var order []string
	deep := func(ctx context.Context) bool {
		_, ok := downstream.Steal()
		if ok {
			order = append(order, "deep")
		}
		return ok
	}
	shallow := func(ctx context.Context) bool {
		_, ok := upstream.Steal()
		if ok {
			order = append(order, "shallow")
			downstream.Push(0)
		}
		return ok
	}

	require.NoError(t, RunWorkers(context.Background(), 1, deep, shallow))
	assert.Equal(t, []string{"deep", "shallow", "deep", "shallow", "deep"}, order)
}

func TestRunWorkersStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	endless := func(ctx context.Context) bool {
		if calls.Add(1) == 10 {
			cancel()
		}
		return true
	}

	err := RunWorkers(ctx, 2, endless)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChunkStatesRetryBound(t *testing.T) {
	states := newChunkStates(map[string]int{"c1": 1})

	attempts := 1
	for states.fail("c1") {
		attempts++
	}
	assert.Equal(t, int(DefaultChunkRetries)+1, attempts)
	assert.Equal(t, ChunkFailed, states.get("c1").Phase)
	assert.False(t, states.fail("c1"))
}

func TestChunkStatesReadyOnce(t *testing.T) {
	required := map[string][]string{
		"a": {"c1", "c2"},
		"b": {"c1"},
	}
	states := newChunkStates(map[string]int{"c1": 2, "c2": 1})
	lookup := func(file string) []string { return required[file] }

	assert.Equal(t, []string{"b"}, states.succeed("c1", []string{"a", "b"}, lookup))
	assert.Equal(t, []string{"a"}, states.succeed("c2", []string{"a"}, lookup))
	assert.Equal(t, ChunkDownloaded, states.get("c1").Phase)
}

func TestChunkStatesRelease(t *testing.T) {
	states := newChunkStates(map[string]int{"c1": 2})
	assert.False(t, states.release("c1"))
	assert.True(t, states.release("c1"))
}
