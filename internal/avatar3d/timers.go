package avatar3d

import (
	"container/heap"
	"time"
)

type timer struct {
	at    time.Time
	epoch uint64
	seq   uint64
	fn    func(at time.Time)
}

// timerHeap orders timers by due time, breaking ties by scheduling order.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) { *h = append(*h, x.(*timer)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Timers holds deferred callbacks tagged with the epoch that scheduled them.
// Fired on the character loop only.
type Timers struct {
	h   timerHeap
	seq uint64
}

func (t *Timers) Schedule(at time.Time, epoch uint64, fn func(at time.Time)) {
	t.seq++
	heap.Push(&t.h, &timer{at: at, epoch: epoch, seq: t.seq, fn: fn})
}

// CancelEpoch removes every pending timer of epoch and returns how many.
func (t *Timers) CancelEpoch(epoch uint64) int {
	kept := t.h[:0]
	removed := 0
	for _, tm := range t.h {
		if tm.epoch == epoch {
			removed++
			continue
		}
		kept = append(kept, tm)
	}
	for i := len(kept); i < len(t.h); i++ {
		t.h[i] = nil
	}
	t.h = kept
	heap.Init(&t.h)
	return removed
}

// Fire runs every timer due at or before now in due order. Timers whose epoch
// is no longer live are dropped and counted as stale.
func (t *Timers) Fire(now time.Time, live func(epoch uint64) bool) (fired, stale int) {
	for t.h.Len() > 0 && !t.h[0].at.After(now) {
		tm := heap.Pop(&t.h).(*timer)
		if live != nil && !live(tm.epoch) {
			stale++
			continue
		}
		tm.fn(tm.at)
		fired++
	}
	return fired, stale
}

func (t *Timers) Len() int { return t.h.Len() }

// Next returns the due time of the earliest pending timer.
func (t *Timers) Next() (time.Time, bool) {
	if t.h.Len() == 0 {
		return time.Time{}, false
	}
	return t.h[0].at, true
}
