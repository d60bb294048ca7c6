package cdom

import (
	"slices"

	"github.com/cespare/xxhash/v2"
	mapset "github.com/deckarep/golang-set/v2"
)

// subscriberSet keeps insertion order for notification while the mapset
// gives constant time dedup and removal checks.
type subscriberSet struct {
	order   []*Subscriber
	members mapset.Set[*Subscriber]
}

func newSubscriberSet() *subscriberSet {
	return &subscriberSet{members: mapset.NewThreadUnsafeSet[*Subscriber]()}
}

func (ss *subscriberSet) add(sub *Subscriber) bool {
	if !ss.members.Add(sub) {
		return false
	}
	ss.order = append(ss.order, sub)
	return true
}

func (ss *subscriberSet) remove(sub *Subscriber) {
	if !ss.members.Contains(sub) {
		return
	}
	ss.members.Remove(sub)
	ss.order = slices.DeleteFunc(ss.order, func(o *Subscriber) bool { return o == sub })
}

func (ss *subscriberSet) contains(sub *Subscriber) bool {
	return ss.members.Contains(sub)
}

func (ss *subscriberSet) len() int { return len(ss.order) }

func (ss *subscriberSet) snapshot() []*Subscriber {
	return slices.Clone(ss.order)
}

func nameKey(name string) uint64 {
	return xxhash.Sum64String(name)
}

// activeSubscriber is the top of the tracking stack, nil when untracked.
func (s *System) activeSubscriber() *Subscriber {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

// track runs fn with sub as the active subscriber, restoring the previous one
// afterwards even if fn panics.
func (s *System) track(sub *Subscriber, fn func() any) any {
	s.stack = append(s.stack, sub)
	defer func() {
		s.stack = s.stack[:len(s.stack)-1]
	}()
	return fn()
}

// Untracked runs fn without registering dependencies on the enclosing
// evaluation.
func (s *System) Untracked(fn func() any) any {
	return s.track(nil, fn)
}

func (s *System) register(name string) {
	sub := s.activeSubscriber()
	if sub == nil || name == "" {
		return
	}
	key := nameKey(name)
	set, ok := s.deps[key]
	if !ok {
		set = newSubscriberSet()
		s.deps[key] = set
	}
	set.add(sub)
}

// Subscribers reports how many subscribers are registered for name.
func (s *System) Subscribers(name string) int {
	set, ok := s.deps[nameKey(name)]
	if !ok {
		return 0
	}
	return set.len()
}

// notify refreshes every live subscriber of name synchronously, in
// registration order. Dead subscribers are dropped here and nowhere else.
func (s *System) notify(name string) {
	if name == "" {
		return
	}
	set, ok := s.deps[nameKey(name)]
	if !ok {
		return
	}
	refreshed := 0
	for _, sub := range set.snapshot() {
		if !set.contains(sub) {
			continue
		}
		if !sub.live() {
			set.remove(sub)
			continue
		}
		sub.refresh(false)
		refreshed++
	}
	s.observer.Notified(name, refreshed)
}

// Notify re-runs the subscribers of name as if the named cell had been
// written.
func (s *System) Notify(name string) {
	s.notify(name)
}
