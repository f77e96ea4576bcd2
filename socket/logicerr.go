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

package socket

// LogicError is the taxonomy code carried on SubtypeError events for
// failures the runtime decided on, as opposed to errors the OS reported.
type LogicError int32

const (
	// LogicOK means the close was not caused by a runtime decision.
	LogicOK LogicError = iota
	// LogicTimeout closed an idle connection from the coarse sweep.
	LogicTimeout
	// LogicSendQueueOverflow closed a connection whose send queue hit the
	// hard limit.
	LogicSendQueueOverflow
	// LogicFrameTooLarge rejected a frame above the unchunked limit.
	LogicFrameTooLarge
	// LogicDoubleRead rejected a second read while one was pending.
	LogicDoubleRead
	// LogicHandshake failed a websocket handshake.
	LogicHandshake
)

func (e LogicError) String() string {
	switch e {
	case LogicOK:
		return "ok"
	case LogicTimeout:
		return "timeout"
	case LogicSendQueueOverflow:
		return "send_queue_overflow"
	case LogicFrameTooLarge:
		return "frame_too_large"
	case LogicDoubleRead:
		return "double_read"
	case LogicHandshake:
		return "handshake_failed"
	default:
		return "unknown"
	}
}
