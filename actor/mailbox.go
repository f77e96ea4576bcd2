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
	"sync/atomic"

	"github.com/threadloom/loom/message"
)

type mnode[T any] struct {
	next *mnode[T]
	data T
}

// mpsc is an unbounded multi-producer single-consumer queue shaped for the
// worker loop's batch draining: producers CAS onto an atomic push stack,
// and the consumer detaches the whole stack in one swap, reversing it into
// a private FIFO batch it then pops from. A batch always predates anything
// still on the stack, so per-producer order is preserved. The swap does not
// bound a drain pass: Pop detaches the stack again whenever the batch runs
// dry, and the worker caps each pass at drainBatch.
type mpsc[T any] struct {
	head atomic.Pointer[mnode[T]]
	// batch is the consumer-local chain, oldest first. Consumer only.
	batch *mnode[T]
	size  atomic.Int64
}

// Push adds v. Never blocks; safe from any goroutine.
func (q *mpsc[T]) Push(v T) {
	n := &mnode[T]{data: v}
	for {
		old := q.head.Load()
		n.next = old
		if q.head.CompareAndSwap(old, n) {
			q.size.Add(1)
			return
		}
	}
}

// Pop removes the oldest element, refilling the consumer batch from the
// push stack when it runs dry. Single consumer only.
func (q *mpsc[T]) Pop() (T, bool) {
	var zero T
	if q.batch == nil {
		top := q.head.Swap(nil)
		for top != nil {
			next := top.next
			top.next = q.batch
			q.batch = top
			top = next
		}
	}
	if q.batch == nil {
		return zero, false
	}
	n := q.batch
	q.batch = n.next
	v := n.data
	n.data = zero
	n.next = nil
	q.size.Add(-1)
	return v, true
}

// IsEmpty reports whether the queue holds nothing.
func (q *mpsc[T]) IsEmpty() bool { return q.size.Load() == 0 }

// Len returns the current element count.
func (q *mpsc[T]) Len() int64 { return q.size.Load() }

// mailbox is a worker's message inbox plus the wake signal its consumer
// parks on. Producers are other workers, socket goroutines and the main
// goroutine; the single consumer is the owning worker loop.
type mailbox struct {
	queue mpsc[*message.Message]
	wake  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

// Push enqueues m and nudges the consumer. Never blocks.
func (mb *mailbox) Push(m *message.Message) {
	mb.queue.Push(m)
	select {
	case mb.wake <- struct{}{}:
	default:
	}
}

// Pop dequeues one message. Single consumer only.
func (mb *mailbox) Pop() (*message.Message, bool) {
	return mb.queue.Pop()
}

func (mb *mailbox) IsEmpty() bool { return mb.queue.IsEmpty() }

func (mb *mailbox) Len() int64 { return mb.queue.Len() }
