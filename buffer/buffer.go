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

// Package buffer provides the reference-counted byte buffer that message
// payloads ride on. A buffer reserves head room so framing layers can
// prepend length prefixes without reallocating, keeps independent read and
// write cursors, and carries a small set of flag bits consumed by the
// socket layer.
package buffer

import (
	"sync"

	"go.uber.org/atomic"
)

// Flag bits carried by a buffer. The socket layer interprets them when the
// buffer is queued for write.
const (
	// FlagCloseAfterSend closes the connection once this buffer has been
	// fully written.
	FlagCloseAfterSend uint8 = 1 << iota
	// FlagWSText marks a websocket text frame.
	FlagWSText
	// FlagWSPing marks a websocket ping frame.
	FlagWSPing
	// FlagWSPong marks a websocket pong frame.
	FlagWSPong
	// FlagFraming asks the connection to prepend its mode-appropriate
	// length header before writing.
	FlagFraming
	// FlagChunked marks a payload that may be split into continuation
	// chunks on the wire.
	FlagChunked
	// FlagBroadcast marks a payload shared between many receivers. A
	// broadcast buffer must be treated as immutable.
	FlagBroadcast
)

// DefaultHeadRoom is the reserved prefix of a fresh buffer. Two bytes cover
// the length-prefix framing; the rest is spare. Websocket frames are written
// by the websocket library and do not use the head room.
const DefaultHeadRoom = 16

var storePool = sync.Pool{
	New: func() any { return make([]byte, 0, 256) },
}

// Buffer is a reference-counted byte buffer.
//
// Layout: data[0:head] is reserved head room, data[read:write] is the
// readable window. Invariant: 0 <= read <= write <= cap(data).
//
// A Buffer starts with a reference count of one. Retain/Release manage
// sharing; the backing storage returns to a pool when the count reaches
// zero. A buffer carrying FlagBroadcast is shared by every worker and must
// not be mutated after it is handed to Send.
type Buffer struct {
	data  []byte
	read  int
	write int
	head  int
	flags uint8
	refs  atomic.Int32
}

// New creates a buffer with DefaultHeadRoom reserved.
func New() *Buffer {
	return NewWithHead(DefaultHeadRoom)
}

// NewWithHead creates a buffer reserving the given head room.
func NewWithHead(head int) *Buffer {
	store := storePool.Get().([]byte)
	if cap(store) < head {
		store = make([]byte, 0, head+256)
	}
	b := &Buffer{
		data:  store[:head],
		read:  head,
		write: head,
		head:  head,
	}
	b.refs.Store(1)
	return b
}

// From creates a buffer whose readable window holds p.
func From(p []byte) *Buffer {
	b := New()
	b.Write(p)
	return b
}

// FromString creates a buffer whose readable window holds s.
func FromString(s string) *Buffer {
	b := New()
	b.WriteString(s)
	return b
}

// Retain increments the reference count and returns the buffer.
func (b *Buffer) Retain() *Buffer {
	b.refs.Inc()
	return b
}

// Release decrements the reference count. At zero the backing storage is
// pooled and the buffer must not be touched again.
func (b *Buffer) Release() {
	if b.refs.Dec() == 0 {
		storePool.Put(b.data[:0])
		b.data = nil
	}
}

// Refs returns the current reference count.
func (b *Buffer) Refs() int32 { return b.refs.Load() }

// SetFlag sets the given flag bit.
func (b *Buffer) SetFlag(flag uint8) { b.flags |= flag }

// HasFlag reports whether the given flag bit is set.
func (b *Buffer) HasFlag(flag uint8) bool { return b.flags&flag != 0 }

// ClearFlag clears the given flag bit.
func (b *Buffer) ClearFlag(flag uint8) { b.flags &^= flag }

// Write appends p to the writable end.
func (b *Buffer) Write(p []byte) {
	b.data = append(b.data[:b.write], p...)
	b.write = len(b.data)
}

// WriteString appends s to the writable end.
func (b *Buffer) WriteString(s string) {
	b.data = append(b.data[:b.write], s...)
	b.write = len(b.data)
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(c byte) {
	b.data = append(b.data[:b.write], c)
	b.write = len(b.data)
}

// WriteFront copies p into the head room immediately before the read
// cursor. It reports false when the head room cannot hold p.
func (b *Buffer) WriteFront(p []byte) bool {
	if len(p) > b.read {
		return false
	}
	b.read -= len(p)
	copy(b.data[b.read:], p)
	return true
}

// Read consumes and returns up to n bytes from the readable window.
func (b *Buffer) Read(n int) []byte {
	if remaining := b.write - b.read; n > remaining {
		n = remaining
	}
	out := b.data[b.read : b.read+n]
	b.read += n
	return out
}

// Skip advances the read cursor by n, clamped to the readable window.
func (b *Buffer) Skip(n int) {
	if remaining := b.write - b.read; n > remaining {
		n = remaining
	}
	b.read += n
}

// Bytes returns the readable window without consuming it.
func (b *Buffer) Bytes() []byte { return b.data[b.read:b.write] }

// String returns the readable window as a string.
func (b *Buffer) String() string { return string(b.Bytes()) }

// Len returns the readable length.
func (b *Buffer) Len() int { return b.write - b.read }

// Reset rewinds both cursors to the head boundary, keeping storage and
// flags.
func (b *Buffer) Reset() {
	b.read = b.head
	b.write = b.head
	b.data = b.data[:b.head]
}
