package source

import (
	"sync/atomic"

	"github.com/gogpu/chart/series"
)

// Feed is a one-slot mailbox for one data reference. Producers never block:
// when the render loop has not picked up the previous snapshot yet, it is
// dropped in favour of the new one.
type Feed struct {
	ref     string
	ch      chan series.Series
	dropped atomic.Uint64
}

// NewFeed returns a feed publishing to ref.
func NewFeed(ref string) *Feed {
	return &Feed{ref: ref, ch: make(chan series.Series, 1)}
}

// Ref returns the reference snapshots are stored under.
func (f *Feed) Ref() string { return f.ref }

// Publish hands s to the consumer, replacing any snapshot still pending.
func (f *Feed) Publish(s series.Series) {
	for {
		select {
		case f.ch <- s:
			return
		default:
		}
		select {
		case <-f.ch:
			f.dropped.Add(1)
		default:
		}
	}
}

// Updates exposes the mailbox for consumers that select on it.
func (f *Feed) Updates() <-chan series.Series { return f.ch }

// Drain moves a pending snapshot into st without blocking. It reports
// whether there was one.
func (f *Feed) Drain(st *Store) bool {
	select {
	case s := <-f.ch:
		st.Put(f.ref, s)
		return true
	default:
		return false
	}
}

// Dropped returns how many snapshots were replaced before being consumed.
func (f *Feed) Dropped() uint64 { return f.dropped.Load() }
