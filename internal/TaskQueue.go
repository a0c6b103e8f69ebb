package internal

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Injector is a FIFO shared by every worker of a pipeline run.
type Injector[T any] struct {
	mu    sync.Mutex
	items []T
}

func (q *Injector[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Steal pops the oldest item.
func (q *Injector[T]) Steal() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

func (q *Injector[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Injector[T]) IsEmpty() bool {
	return q.Len() == 0
}

// WorkStage tries to take one task from its queue and run it. It reports
// whether a task was taken.
type WorkStage func(ctx context.Context) bool

// RunWorkers starts threads workers. Each worker polls the stages in the given
// order, restarting from the first after every task, and exits once no stage
// yields work. Stages should be passed deepest pipeline stage first.
func RunWorkers(ctx context.Context, threads int, stages ...WorkStage) error {
	if threads < 1 {
		threads = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		g.Go(func() error {
			for {
				if err := ctx.Err(); err != nil {
					return err
				}

				worked := false
				for _, stage := range stages {
					if stage(ctx) {
						worked = true
						break
					}
				}
				if !worked {
					return nil
				}
			}
		})
	}
	return g.Wait()
}

type ChunkPhase int

const (
	ChunkDownloading ChunkPhase = iota
	ChunkDownloaded
	ChunkFailed
)

// DefaultChunkRetries is how many times a chunk is requeued after its first attempt.
const DefaultChunkRetries uint8 = 4

// ChunkState is the lifecycle of one chunk inside a run. RetriesLeft only
// matters while downloading.
type ChunkState struct {
	Phase       ChunkPhase
	RetriesLeft uint8
}

// chunkStates is the bookkeeping shared by the workers. The lock is only held
// for map updates, never across I/O.
type chunkStates struct {
	mu     sync.Mutex
	states map[string]ChunkState
	// users counts files that still need a chunk on disk.
	users map[string]int
}

func newChunkStates(users map[string]int) *chunkStates {
	s := &chunkStates{
		states: make(map[string]ChunkState, len(users)),
		users:  users,
	}
	for name := range users {
		s.states[name] = ChunkState{Phase: ChunkDownloading, RetriesLeft: DefaultChunkRetries}
	}
	return s
}

func (s *chunkStates) get(name string) ChunkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[name]
}

// succeed marks name as downloaded and returns the files among usedIn whose
// required chunks are now all downloaded. Each file is returned by exactly
// one call, the one that completed it.
func (s *chunkStates) succeed(name string, usedIn []string, required func(file string) []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[name] = ChunkState{Phase: ChunkDownloaded}

	var ready []string
	for _, file := range usedIn {
		complete := true
		for _, chunk := range required(file) {
			if s.states[chunk].Phase != ChunkDownloaded {
				complete = false
				break
			}
		}
		if complete {
			ready = append(ready, file)
		}
	}
	return ready
}

// fail consumes one retry and reports whether the chunk should be requeued.
// Once out of retries the chunk is marked failed.
func (s *chunkStates) fail(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.states[name]
	if state.Phase != ChunkDownloading {
		return false
	}
	if state.RetriesLeft == 0 {
		s.states[name] = ChunkState{Phase: ChunkFailed}
		return false
	}
	s.states[name] = ChunkState{Phase: ChunkDownloading, RetriesLeft: state.RetriesLeft - 1}
	return true
}

// release drops one user of name and reports whether it was the last one.
func (s *chunkStates) release(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[name]--
	return s.users[name] <= 0
}
