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

// Package message defines the envelope routed between services.
package message

import "github.com/threadloom/loom/buffer"

// Message is the envelope carried through worker mailboxes.
//
// Session semantics: a positive session on a request means "reply expected
// echoing this value"; zero means fire-and-forget. An error reply negates
// the original session and carries Type == PTypeError.
type Message struct {
	Sender   uint32
	Receiver uint32
	Session  int32
	Type     uint8
	Subtype  uint8
	Header   string
	Buffer   *buffer.Buffer
}

// New creates an empty message.
func New() *Message { return &Message{} }

// WithPayload creates a message carrying the given buffer.
func WithPayload(ptype uint8, buf *buffer.Buffer) *Message {
	return &Message{Type: ptype, Buffer: buf}
}

// Payload returns the readable bytes of the buffer, or nil when the message
// carries none.
func (m *Message) Payload() []byte {
	if m.Buffer == nil {
		return nil
	}
	return m.Buffer.Bytes()
}

// Text returns the payload as a string.
func (m *Message) Text() string {
	if m.Buffer == nil {
		return ""
	}
	return m.Buffer.String()
}

// ExpectsReply reports whether the message is a request awaiting a reply.
func (m *Message) ExpectsReply() bool { return m.Session > 0 }

// Release drops the message's reference on its buffer. Broadcast buffers
// are shared; every receiver releases its own reference.
func (m *Message) Release() {
	if m.Buffer != nil {
		m.Buffer.Release()
		m.Buffer = nil
	}
}
