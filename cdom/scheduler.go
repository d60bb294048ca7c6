package cdom

import (
	"context"
)

func (s *System) enqueue(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Post schedules fn on the cooperative thread. Safe from any goroutine.
func (s *System) Post(fn func()) {
	s.enqueue(fn)
}

// Drain runs queued continuations until the queue is empty and reports how
// many ran.
func (s *System) Drain() int {
	ran := 0
	for {
		s.mu.Lock()
		tasks := s.queue
		s.queue = nil
		s.mu.Unlock()
		if len(tasks) == 0 {
			return ran
		}
		for _, task := range tasks {
			task()
			ran++
		}
	}
}

func (s *System) pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) > 0
}

// Run drives the cooperative thread until ctx is done.
func (s *System) Run(ctx context.Context) error {
	for {
		s.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}
	}
}

// Settle drains until no helper loads are in flight and nothing is queued.
func (s *System) Settle(ctx context.Context) error {
	for {
		s.Drain()
		if s.inflight.Load() == 0 && !s.pending() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}
	}
}

// Do runs fn on the cooperative thread and waits for it. Run must be active
// on another goroutine.
func (s *System) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	s.enqueue(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NotifyExternalChange reports a structural change made outside the core.
// Calls made before the scheduler runs coalesce into a single pass. Safe from
// any goroutine.
func (s *System) NotifyExternalChange() {
	if !s.changeQueued.CompareAndSwap(false, true) {
		return
	}
	s.enqueue(s.changePass)
}

// changePass re-evaluates every live structural subscriber once, in
// registration order, updating only those whose value moved.
func (s *System) changePass() {
	s.changeQueued.Store(false)
	n := 0
	for _, sub := range s.structuralSubs.snapshot() {
		if !s.structuralSubs.contains(sub) {
			continue
		}
		if !sub.live() {
			s.structuralSubs.remove(sub)
			continue
		}
		sub.refresh(true)
		n++
	}
	s.observer.Batched(n)
}

func (s *System) registerStructural() {
	if sub := s.activeSubscriber(); sub != nil {
		s.structuralSubs.add(sub)
	}
}
