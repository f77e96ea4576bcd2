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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadloom/loom/message"
)

func TestMpscFIFOSingleProducer(t *testing.T) {
	var q mpsc[int]
	for i := range 100 {
		q.Push(i)
	}
	for i := range 100 {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestMpscBatchRefill(t *testing.T) {
	var q mpsc[int]
	q.Push(1)
	q.Push(2)
	v, _ := q.Pop() // detaches the stack into a batch
	assert.Equal(t, 1, v)

	// newer pushes land on the stack and drain after the current batch
	q.Push(3)
	v, _ = q.Pop()
	assert.Equal(t, 2, v)
	v, _ = q.Pop()
	assert.Equal(t, 3, v)
	assert.True(t, q.IsEmpty())
	assert.Zero(t, q.Len())
}

func TestMpscPerProducerOrder(t *testing.T) {
	const producers = 8
	const perProducer = 1000

	var q mpsc[[2]int]
	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := range perProducer {
				q.Push([2]int{p, i})
			}
		}(p)
	}

	seen := make([]int, producers)
	got := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for got < producers*perProducer {
			v, ok := q.Pop()
			if !ok {
				continue
			}
			p, i := v[0], v[1]
			// each producer's items appear in push order
			assert.Equal(t, seen[p], i)
			seen[p]++
			got++
		}
	}()

	wg.Wait()
	<-done
	assert.Equal(t, producers*perProducer, got)
}

func TestMailboxWake(t *testing.T) {
	mb := newMailbox()
	assert.True(t, mb.IsEmpty())

	mb.Push(&message.Message{Receiver: 1})
	select {
	case <-mb.wake:
	default:
		t.Fatal("push must signal the consumer")
	}

	m, ok := mb.Pop()
	require.True(t, ok)
	assert.EqualValues(t, 1, m.Receiver)
	assert.True(t, mb.IsEmpty())
	assert.Zero(t, mb.Len())
}
