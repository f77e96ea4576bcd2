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

	"github.com/threadloom/loom/errors"
	"github.com/threadloom/loom/message"
)

const maxSession = 0x7FFFFFFF

// callResult is what a suspended coroutine resumes with: the reply message
// or an error, never both.
type callResult struct {
	msg *message.Message
	err error
}

// sessionEntry is the waker for one suspended call. The channel has
// capacity one so the resuming worker never blocks.
type sessionEntry struct {
	ch chan callResult
	// peer is the service the reply is expected from. Zero for sleeps and
	// socket reads, whose replies are generated by the runtime itself.
	peer ServiceID
	// cancelled entries stay in the table as tombstones so a late reply is
	// recognized and dropped instead of being reported as a protocol error.
	cancelled bool
}

// sessions correlates request sessions with suspended coroutines for one
// service. Producers (the owning worker) and consumers (pooled coroutine
// goroutines) touch it from different goroutines, hence the lock.
type sessions struct {
	mu      sync.Mutex
	next    int32
	entries map[int32]*sessionEntry
}

func newSessions() *sessions {
	return &sessions{entries: make(map[int32]*sessionEntry)}
}

// NewSession allocates a fresh positive session id and registers its waker.
// Ids are monotonic with wraparound at 0x7FFFFFFF, never zero and never
// colliding with a live entry.
func (s *sessions) NewSession(peer ServiceID) (int32, *sessionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= maxSession {
		return 0, nil, errors.ErrSessionExhausted
	}
	for {
		s.next++
		if s.next <= 0 || s.next > maxSession {
			s.next = 1
		}
		if _, live := s.entries[s.next]; !live {
			break
		}
	}
	entry := &sessionEntry{ch: make(chan callResult, 1), peer: peer}
	s.entries[s.next] = entry
	return s.next, entry, nil
}

// Resolve looks up the waker a reply should resume. It reports handled=true
// when the message was consumed as a reply (including dropped late replies
// for cancelled sessions). A message whose session matches a live entry but
// whose sender is not the recorded peer is not a reply; it dispatches as a
// request.
func (s *sessions) Resolve(m *message.Message) (handled bool) {
	session := m.Session
	if m.Type == message.PTypeError && session < 0 {
		session = -session
	}
	if session <= 0 {
		return false
	}

	s.mu.Lock()
	entry, ok := s.entries[session]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if entry.cancelled {
		delete(s.entries, session)
		s.mu.Unlock()
		m.Release()
		return true
	}
	if entry.peer != 0 && entry.peer != ServiceID(m.Sender) {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, session)
	s.mu.Unlock()

	if m.Type == message.PTypeError {
		entry.ch <- callResult{err: errors.New(m.Text())}
		m.Release()
		return true
	}
	entry.ch <- callResult{msg: m}
	return true
}

// Complete resumes a runtime-owned session (sleep, socket read ack) with
// the given result. No-op when the session is gone or cancelled.
func (s *sessions) Complete(session int32, res callResult) {
	s.mu.Lock()
	entry, ok := s.entries[session]
	if !ok || entry.cancelled {
		delete(s.entries, session)
		s.mu.Unlock()
		if res.msg != nil {
			res.msg.Release()
		}
		return
	}
	delete(s.entries, session)
	s.mu.Unlock()
	entry.ch <- res
}

// Fail resumes the session with err. Same liveness rules as Complete.
func (s *sessions) Fail(session int32, err error) {
	s.Complete(session, callResult{err: err})
}

// Cancel marks the session inert; a late reply is dropped without resuming.
// Idempotent: cancelling twice, or cancelling a completed session, is a
// no-op.
func (s *sessions) Cancel(session int32) {
	s.mu.Lock()
	if entry, ok := s.entries[session]; ok {
		entry.cancelled = true
	}
	s.mu.Unlock()
}

// FailPeer fails every live session waiting on the given peer. Called when
// the peer service exits before replying.
func (s *sessions) FailPeer(peer ServiceID, err error) {
	s.mu.Lock()
	var resumed []*sessionEntry
	for id, entry := range s.entries {
		if entry.peer == peer && !entry.cancelled {
			resumed = append(resumed, entry)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()
	for _, entry := range resumed {
		entry.ch <- callResult{err: err}
	}
}

// FailAll fails every live session. Called on service destruction so no
// coroutine stays parked forever.
func (s *sessions) FailAll(err error) {
	s.mu.Lock()
	var resumed []*sessionEntry
	for id, entry := range s.entries {
		if !entry.cancelled {
			resumed = append(resumed, entry)
		}
		delete(s.entries, id)
	}
	s.mu.Unlock()
	for _, entry := range resumed {
		entry.ch <- callResult{err: err}
	}
}

// Live returns the number of registered, non-cancelled sessions.
func (s *sessions) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, entry := range s.entries {
		if !entry.cancelled {
			n++
		}
	}
	return n
}

// TimerFire resumes a runtime timer session: sleeps complete normally,
// calls racing a timeout fail with ErrTimeout. A timed-out call leaves a
// cancelled tombstone behind so the reply, should it still arrive, is
// dropped instead of dispatched.
func (s *sessions) TimerFire(session int32) {
	s.mu.Lock()
	entry, ok := s.entries[session]
	if !ok || entry.cancelled {
		s.mu.Unlock()
		return
	}
	if entry.peer != 0 {
		entry.cancelled = true
		s.mu.Unlock()
		entry.ch <- callResult{err: errors.ErrTimeout}
		return
	}
	delete(s.entries, session)
	s.mu.Unlock()
	entry.ch <- callResult{}
}
