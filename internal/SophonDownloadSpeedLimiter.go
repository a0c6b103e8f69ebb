package internal

import (
	"context"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// limiterBurst caps a single read so WaitN never asks for more than the bucket holds.
const limiterBurst = 256 * 1024

// SpeedChangedHandler is a callback function for speed change events
type SpeedChangedHandler func(sender interface{}, newRequestedSpeed int64)

// SophonDownloadSpeedLimiter throttles chunk bodies to a shared byte rate and
// tracks how many chunk bodies are in flight.
type SophonDownloadSpeedLimiter struct {
	DownloadSpeedChangedEvent SpeedChangedHandler

	limiter                *rate.Limiter
	currentChunkProcessing atomic.Int32
	mu                     sync.RWMutex
}

// NewSpeedLimiter creates a limiter; bytesPerSecond <= 0 means unlimited.
func NewSpeedLimiter(bytesPerSecond int64) *SophonDownloadSpeedLimiter {
	s := &SophonDownloadSpeedLimiter{limiter: rate.NewLimiter(rate.Inf, limiterBurst)}
	s.SetSpeed(bytesPerSecond)
	return s
}

// SetSpeed changes the limit for every reader created by this limiter.
func (s *SophonDownloadSpeedLimiter) SetSpeed(bytesPerSecond int64) {
	if bytesPerSecond <= 0 {
		s.limiter.SetLimit(rate.Inf)
	} else {
		s.limiter.SetLimit(rate.Limit(bytesPerSecond))
	}

	s.mu.RLock()
	handler := s.DownloadSpeedChangedEvent
	s.mu.RUnlock()
	if handler != nil {
		handler(s, bytesPerSecond)
	}
}

func (s *SophonDownloadSpeedLimiter) OnSpeedChanged(handler SpeedChangedHandler) {
	s.mu.Lock()
	s.DownloadSpeedChangedEvent = handler
	s.mu.Unlock()
}

func (s *SophonDownloadSpeedLimiter) IncrementChunkProcessedCount() {
	s.currentChunkProcessing.Add(1)
}

func (s *SophonDownloadSpeedLimiter) DecrementChunkProcessedCount() {
	s.currentChunkProcessing.Add(-1)
}

// CurrentChunkProcessing is the number of chunk bodies being read right now.
func (s *SophonDownloadSpeedLimiter) CurrentChunkProcessing() int {
	return int(s.currentChunkProcessing.Load())
}

// AttemptTimeout returns the per-attempt timeout in seconds for reading size
// bytes while sharing the current limit with the chunks already in flight.
// Without a limit it is DefaultTimeoutSec.
func (s *SophonDownloadSpeedLimiter) AttemptTimeout(size uint64) int {
	if s == nil {
		return DefaultTimeoutSec
	}
	limit := s.limiter.Limit()
	if limit == rate.Inf || limit <= 0 {
		return DefaultTimeoutSec
	}
	share := float64(limit) / float64(s.CurrentChunkProcessing()+1)
	return DefaultTimeoutSec + int(math.Ceil(2*float64(size)/share))
}

// Reader wraps r so reads are paced by the limiter. A nil limiter returns r.
func (s *SophonDownloadSpeedLimiter) Reader(ctx context.Context, r io.Reader) io.Reader {
	if s == nil {
		return r
	}
	return &limitedReader{ctx: ctx, r: r, limiter: s.limiter}
}

type limitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if len(p) > limiterBurst {
		p = p[:limiterBurst]
	}
	n, err := l.r.Read(p)
	if n > 0 {
		if werr := l.limiter.WaitN(l.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
