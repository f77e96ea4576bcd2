// MIT License
//
// Copyright (c) 2023-2026 Threadloom Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package actor

import (
	"container/heap"
	"time"

	"go.uber.org/atomic"
)

// RepeatForever makes a timer fire until it is removed.
const RepeatForever int32 = -1

// timerEntry is one scheduled expiration source.
type timerEntry struct {
	id       uint32
	owner    ServiceID
	interval time.Duration
	// remaining fires; RepeatForever means unbounded.
	remaining int32
	nextFire  time.Time
	// seq breaks ties so timers with equal deadlines fire FIFO.
	seq uint64
	// session, when non-zero, marks a runtime timer that resumes a
	// suspended coroutine instead of invoking OnTimer.
	session int32
	removed bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].nextFire.Equal(h[j].nextFire) {
		return h[i].seq < h[j].seq
	}
	return h[i].nextFire.Before(h[j].nextFire)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}

// timerWheel holds one worker's timers. All methods except NextID run on
// the owning worker goroutine.
type timerWheel struct {
	heap timerHeap
	byID map[uint32]*timerEntry
	// ids are allocated atomically so coroutine goroutines can obtain one
	// before posting the insert to the worker.
	ids     atomic.Uint32
	fireSeq uint64
}

func newTimerWheel() *timerWheel {
	return &timerWheel{byID: make(map[uint32]*timerEntry)}
}

// NextID allocates a timer id. Safe from any goroutine.
func (tw *timerWheel) NextID() uint32 {
	for {
		if id := tw.ids.Inc(); id != 0 {
			return id
		}
	}
}

// Add schedules an entry with the given id.
func (tw *timerWheel) Add(id uint32, owner ServiceID, interval time.Duration, times int32, session int32, now time.Time) {
	entry := &timerEntry{
		id:        id,
		owner:     owner,
		interval:  interval,
		remaining: times,
		nextFire:  now.Add(interval),
		seq:       tw.fireSeq,
		session:   session,
	}
	tw.fireSeq++
	tw.byID[id] = entry
	heap.Push(&tw.heap, entry)
}

// Remove cancels the timer with the given id. Cancelling a timer during its
// own fire is allowed.
func (tw *timerWheel) Remove(id uint32) bool {
	entry, ok := tw.byID[id]
	if !ok {
		return false
	}
	entry.removed = true
	delete(tw.byID, id)
	return true
}

// RemoveOwned drops every timer owned by the given service.
func (tw *timerWheel) RemoveOwned(owner ServiceID) {
	for id, entry := range tw.byID {
		if entry.owner == owner {
			entry.removed = true
			delete(tw.byID, id)
		}
	}
}

// Due pops the next entry whose deadline has passed. The second return is
// true on the entry's last scheduled fire. Removed entries are skipped
// lazily.
func (tw *timerWheel) Due(now time.Time) (*timerEntry, bool) {
	for len(tw.heap) > 0 {
		entry := tw.heap[0]
		if entry.removed {
			heap.Pop(&tw.heap)
			continue
		}
		if entry.nextFire.After(now) {
			return nil, false
		}
		heap.Pop(&tw.heap)

		last := false
		if entry.remaining != RepeatForever {
			entry.remaining--
			last = entry.remaining <= 0
		}
		if last {
			delete(tw.byID, entry.id)
		} else {
			entry.nextFire = entry.nextFire.Add(entry.interval)
			entry.seq = tw.fireSeq
			tw.fireSeq++
			heap.Push(&tw.heap, entry)
		}
		return entry, last
	}
	return nil, false
}

// NextDeadline returns the earliest live deadline and false when the wheel
// is empty.
func (tw *timerWheel) NextDeadline() (time.Time, bool) {
	for len(tw.heap) > 0 {
		if tw.heap[0].removed {
			heap.Pop(&tw.heap)
			continue
		}
		return tw.heap[0].nextFire, true
	}
	return time.Time{}, false
}

// Len returns the number of live timers.
func (tw *timerWheel) Len() int { return len(tw.byID) }
