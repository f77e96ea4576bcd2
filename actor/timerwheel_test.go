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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerFIFOAmongEqualDeadlines(t *testing.T) {
	tw := newTimerWheel()
	owner := MakeServiceID(1, 1)
	base := time.Now()

	first := tw.NextID()
	second := tw.NextID()
	third := tw.NextID()
	tw.Add(first, owner, 10*time.Millisecond, 1, 0, base)
	tw.Add(second, owner, 10*time.Millisecond, 1, 0, base)
	tw.Add(third, owner, 10*time.Millisecond, 1, 0, base)

	now := base.Add(20 * time.Millisecond)
	var fired []uint32
	for {
		entry, last := tw.Due(now)
		if entry == nil {
			break
		}
		assert.True(t, last)
		fired = append(fired, entry.id)
	}
	assert.Equal(t, []uint32{first, second, third}, fired)
}

func TestTimerRepeatsAndLast(t *testing.T) {
	tw := newTimerWheel()
	owner := MakeServiceID(1, 1)
	base := time.Now()

	id := tw.NextID()
	tw.Add(id, owner, 10*time.Millisecond, 3, 0, base)

	lasts := []bool{}
	now := base.Add(100 * time.Millisecond)
	for {
		entry, last := tw.Due(now)
		if entry == nil {
			break
		}
		lasts = append(lasts, last)
	}
	assert.Equal(t, []bool{false, false, true}, lasts)
	assert.Zero(t, tw.Len())
}

func TestTimerForever(t *testing.T) {
	tw := newTimerWheel()
	owner := MakeServiceID(1, 1)
	base := time.Now()
	id := tw.NextID()
	tw.Add(id, owner, 10*time.Millisecond, RepeatForever, 0, base)

	fires := 0
	now := base.Add(55 * time.Millisecond)
	for {
		entry, last := tw.Due(now)
		if entry == nil {
			break
		}
		assert.False(t, last)
		fires++
	}
	assert.Equal(t, 5, fires)
	assert.Equal(t, 1, tw.Len())
}

func TestTimerRemove(t *testing.T) {
	tw := newTimerWheel()
	owner := MakeServiceID(1, 1)
	base := time.Now()
	id := tw.NextID()
	tw.Add(id, owner, 10*time.Millisecond, RepeatForever, 0, base)

	require.True(t, tw.Remove(id))
	assert.False(t, tw.Remove(id))

	entry, _ := tw.Due(base.Add(time.Hour))
	assert.Nil(t, entry)
	_, ok := tw.NextDeadline()
	assert.False(t, ok)
}

func TestTimerCancelDuringFire(t *testing.T) {
	tw := newTimerWheel()
	owner := MakeServiceID(1, 1)
	base := time.Now()
	id := tw.NextID()
	tw.Add(id, owner, 10*time.Millisecond, RepeatForever, 0, base)

	entry, last := tw.Due(base.Add(15 * time.Millisecond))
	require.NotNil(t, entry)
	assert.False(t, last)
	// cancelling the timer from its own fire callback
	require.True(t, tw.Remove(entry.id))

	next, _ := tw.Due(base.Add(time.Hour))
	assert.Nil(t, next)
}

func TestRemoveOwned(t *testing.T) {
	tw := newTimerWheel()
	a := MakeServiceID(1, 1)
	b := MakeServiceID(1, 2)
	base := time.Now()
	tw.Add(tw.NextID(), a, time.Millisecond, RepeatForever, 0, base)
	tw.Add(tw.NextID(), a, time.Millisecond, RepeatForever, 0, base)
	keep := tw.NextID()
	tw.Add(keep, b, time.Millisecond, RepeatForever, 0, base)

	tw.RemoveOwned(a)
	assert.Equal(t, 1, tw.Len())

	entry, _ := tw.Due(base.Add(10 * time.Millisecond))
	require.NotNil(t, entry)
	assert.Equal(t, keep, entry.id)
}
