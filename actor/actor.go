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

// Package actor implements the runtime core: services distributed over a
// fixed pool of worker goroutines, a process-global router, session-based
// request/response on top of asynchronous messages, and per-worker timers.
package actor

import (
	"github.com/threadloom/loom/message"
)

// Service is one actor. Implementations own their state; the runtime
// guarantees Init, Receive and the optional hooks below never run
// concurrently for the same service.
type Service interface {
	// Init runs once before the first dispatch. Returning an error fails
	// creation; for a unique service required at bootstrap this aborts the
	// server.
	Init(ctx *Context, cfg *ServiceConfig) error
	// Receive handles one message. The message and its buffer are only
	// valid for the duration of the call; copy what must outlive it.
	Receive(ctx *Context, m *message.Message)
}

// Starter is implemented by services that want a hook after the initial
// batch of statically configured services has finished construction, so
// their unique names are already resolvable. For dynamically created
// services Start runs before the first dispatch.
type Starter interface {
	Start(ctx *Context)
}

// Exiter is implemented by services that need asynchronous teardown. Exit
// fires when a stop is requested; the service stays alive until it calls
// ctx.Quit(), so in-flight work can be flushed. Services without Exit are
// destroyed immediately on stop.
type Exiter interface {
	Exit(ctx *Context)
}

// Destroyer is implemented by services that want a last callback after the
// service has been unlinked from its worker.
type Destroyer interface {
	Destroy(ctx *Context)
}

// TimerHandler is implemented by services using worker timers. OnTimer
// fires once per expiration; last is true on the final scheduled fire.
type TimerHandler interface {
	OnTimer(ctx *Context, id uint32, last bool)
}
