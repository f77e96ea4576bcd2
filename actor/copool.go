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
	"sync"

	"go.uber.org/atomic"
)

// coPoolCap bounds how many idle coroutines a worker keeps parked.
const coPoolCap = 64

// coPool keeps a set of reusable goroutines so that starting an async
// workflow does not pay a goroutine spawn on the hot path. Every channel
// sitting in free has a live goroutine blocked on it; Drain closes them all
// when the worker stops.
type coPool struct {
	free     chan chan func()
	closed   atomic.Bool
	inflight sync.WaitGroup
}

func newCoPool() *coPool {
	return &coPool{free: make(chan chan func(), coPoolCap)}
}

// Go runs fn on a pooled coroutine, spawning a fresh one when the pool is
// dry.
func (p *coPool) Go(fn func()) {
	p.inflight.Add(1)
	job := func() {
		defer p.inflight.Done()
		fn()
	}
	if p.closed.Load() {
		go job()
		return
	}
	select {
	case jobs := <-p.free:
		jobs <- job
	default:
		jobs := make(chan func())
		go p.loop(jobs)
		jobs <- job
	}
}

func (p *coPool) loop(jobs chan func()) {
	for {
		fn, ok := <-jobs
		if !ok {
			return
		}
		fn()
		if p.closed.Load() {
			return
		}
		select {
		case p.free <- jobs:
		default:
			return // pool full, let this goroutine die
		}
	}
}

// Drain waits for running jobs and releases every parked coroutine. The
// pool still accepts Go afterwards, falling back to plain goroutines.
func (p *coPool) Drain() {
	p.closed.Store(true)
	p.inflight.Wait()
	for {
		select {
		case jobs := <-p.free:
			close(jobs)
		default:
			return
		}
	}
}
