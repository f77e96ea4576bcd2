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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadloom/loom/buffer"
	"github.com/threadloom/loom/errors"
	"github.com/threadloom/loom/message"
)

func TestSessionIDsUniqueAndPositive(t *testing.T) {
	s := newSessions()
	seen := make(map[int32]bool)
	for range 1000 {
		id, _, err := s.NewSession(0)
		require.NoError(t, err)
		assert.Positive(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestSessionWraparoundSkipsLive(t *testing.T) {
	s := newSessions()
	s.next = maxSession - 1
	id1, _, err := s.NewSession(0)
	require.NoError(t, err)
	assert.EqualValues(t, maxSession, id1)
	// wraps to 1, never 0
	id2, _, err := s.NewSession(0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, id2)
	// a live id is skipped on the next lap
	s.next = 0
	id3, _, err := s.NewSession(0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, id3)
}

func TestResolveReply(t *testing.T) {
	s := newSessions()
	peer := MakeServiceID(1, 7)
	id, entry, err := s.NewSession(peer)
	require.NoError(t, err)

	m := &message.Message{Sender: uint32(peer), Session: id, Type: message.PTypeData, Buffer: buffer.FromString("pong")}
	require.True(t, s.Resolve(m))

	res := <-entry.ch
	require.NoError(t, res.err)
	assert.Equal(t, "pong", res.msg.Text())
	res.msg.Release()
}

func TestResolveWrongPeerIsNotReply(t *testing.T) {
	s := newSessions()
	peer := MakeServiceID(1, 7)
	id, _, err := s.NewSession(peer)
	require.NoError(t, err)

	other := MakeServiceID(1, 8)
	m := &message.Message{Sender: uint32(other), Session: id, Type: message.PTypeData}
	assert.False(t, s.Resolve(m))
}

func TestResolveErrorReply(t *testing.T) {
	s := newSessions()
	peer := MakeServiceID(1, 7)
	id, entry, err := s.NewSession(peer)
	require.NoError(t, err)

	m := &message.Message{Sender: uint32(peer), Session: -id, Type: message.PTypeError, Buffer: buffer.FromString("boom")}
	require.True(t, s.Resolve(m))
	res := <-entry.ch
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "boom")
}

func TestCancelIdempotent(t *testing.T) {
	s := newSessions()
	id, entry, err := s.NewSession(0)
	require.NoError(t, err)

	s.Cancel(id)
	s.Cancel(id) // second cancel is a no-op

	m := &message.Message{Session: id, Type: message.PTypeData, Buffer: buffer.FromString("late")}
	require.True(t, s.Resolve(m)) // dropped, not resumed

	select {
	case <-entry.ch:
		t.Fatal("cancelled session must not resume")
	default:
	}
	// the tombstone is gone; cancelling again still is a no-op
	s.Cancel(id)
	assert.Zero(t, s.Live())
}

func TestTimerFireTimeoutLeavesTombstone(t *testing.T) {
	s := newSessions()
	peer := MakeServiceID(1, 9)
	id, entry, err := s.NewSession(peer)
	require.NoError(t, err)

	s.TimerFire(id)
	res := <-entry.ch
	assert.ErrorIs(t, res.err, errors.ErrTimeout)

	// the late reply is silently dropped
	m := &message.Message{Sender: uint32(peer), Session: id, Type: message.PTypeData, Buffer: buffer.FromString("late")}
	assert.True(t, s.Resolve(m))
	select {
	case <-entry.ch:
		t.Fatal("timed out session must not resume twice")
	default:
	}
}

func TestTimerFireSleep(t *testing.T) {
	s := newSessions()
	id, entry, err := s.NewSession(0)
	require.NoError(t, err)
	s.TimerFire(id)
	res := <-entry.ch
	assert.NoError(t, res.err)
	assert.Nil(t, res.msg)
}

func TestFailPeer(t *testing.T) {
	s := newSessions()
	dead := MakeServiceID(2, 3)
	alive := MakeServiceID(2, 4)
	id1, e1, _ := s.NewSession(dead)
	_, e2, _ := s.NewSession(alive)
	_ = id1

	s.FailPeer(dead, errors.ErrTargetExited)
	res := <-e1.ch
	assert.ErrorIs(t, res.err, errors.ErrTargetExited)
	select {
	case <-e2.ch:
		t.Fatal("session on another peer must survive")
	default:
	}
	assert.Equal(t, 1, s.Live())
}

func TestFailAll(t *testing.T) {
	s := newSessions()
	_, e1, _ := s.NewSession(MakeServiceID(1, 1))
	_, e2, _ := s.NewSession(0)
	s.FailAll(errors.ErrTargetExited)
	assert.Error(t, (<-e1.ch).err)
	assert.Error(t, (<-e2.ch).err)
	assert.Zero(t, s.Live())
}
