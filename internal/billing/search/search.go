// Package search provides a debounced, latest-wins lookup used for the
// drawer's catalog and party pickers.
package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStale is returned to a caller whose query was superseded by a newer
// one, either while debouncing or while the lookup was in flight.
var ErrStale = errors.New("stale_search")

// Sequencer issues monotonically increasing tags. A result tagged n is
// applied only while n is still the latest issued tag.
type Sequencer struct {
	seq atomic.Uint64
}

// Next issues a new tag.
func (s *Sequencer) Next() uint64 { return s.seq.Add(1) }

// IsLatest reports whether n is the most recently issued tag.
func (s *Sequencer) IsLatest(n uint64) bool { return s.seq.Load() == n }

// LookupFunc performs the actual search.
type LookupFunc[T any] func(ctx context.Context, text string) ([]T, error)

// Searcher debounces queries and discards every response except the one
// for the latest query. Starting a query cancels the context of the
// previous one.
type Searcher[T any] struct {
	lookup   LookupFunc[T]
	debounce time.Duration
	seq      Sequencer

	mu     sync.Mutex
	cancel context.CancelFunc
}

func New[T any](debounce time.Duration, lookup LookupFunc[T]) *Searcher[T] {
	if debounce < 0 {
		debounce = 0
	}
	return &Searcher[T]{lookup: lookup, debounce: debounce}
}

// Query waits out the debounce window and runs the lookup. It returns
// ErrStale if a newer query was started in the meantime.
func (s *Searcher[T]) Query(ctx context.Context, text string) ([]T, error) {
	qctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	tag := s.seq.Next()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()
	defer s.release(tag, cancel)

	if s.debounce > 0 {
		timer := time.NewTimer(s.debounce)
		select {
		case <-timer.C:
		case <-qctx.Done():
			timer.Stop()
			return nil, s.doneErr(ctx, tag)
		}
	}
	if !s.seq.IsLatest(tag) {
		return nil, ErrStale
	}

	results, err := s.lookup(qctx, text)
	if !s.seq.IsLatest(tag) {
		return nil, ErrStale
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Cancel supersedes any pending query without starting a new one.
func (s *Searcher[T]) Cancel() {
	s.mu.Lock()
	s.seq.Next()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}

func (s *Searcher[T]) release(tag uint64, cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	if s.seq.IsLatest(tag) {
		s.cancel = nil
	}
	s.mu.Unlock()
}

// doneErr distinguishes a superseded query from one whose parent context
// ended.
func (s *Searcher[T]) doneErr(parent context.Context, tag uint64) error {
	if err := parent.Err(); err != nil {
		return err
	}
	if !s.seq.IsLatest(tag) {
		return ErrStale
	}
	return context.Canceled
}
