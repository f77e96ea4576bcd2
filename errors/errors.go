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

// Package errors defines the sentinel errors surfaced by the runtime.
//
// Errors fall into five kinds: protocol (malformed or unroutable traffic),
// resource (a configured limit was hit), I/O (the OS said no), usage (the
// caller broke an API contract) and fatal (the server cannot continue).
package errors

import "errors"

var (
	// ErrUnknownPType is returned when a message carries a protocol type
	// that has no registered handler on the receiving service.
	ErrUnknownPType = errors.New("unknown protocol type")

	// ErrMissingDispatch names a protocol record without a dispatch
	// function. The runtime does not return it: a non-reply message for
	// such a record goes to the service's Receive.
	ErrMissingDispatch = errors.New("protocol has no dispatch handler")

	// ErrSessionNotFound names a reply session that is neither live nor
	// cancelled. The runtime does not return it: such a message is
	// dispatched as an ordinary request.
	ErrSessionNotFound = errors.New("session not found")

	// ErrMemLimit is returned when an allocation would push a service over
	// its configured memory limit.
	ErrMemLimit = errors.New("service memory limit exceeded")

	// ErrFdExhausted is returned when the per-worker fd space is exhausted.
	ErrFdExhausted = errors.New("fd table exhausted")

	// ErrSendQueueOverflow is returned when a connection send queue hits its
	// hard limit. The connection is closed.
	ErrSendQueueOverflow = errors.New("send queue overflow")

	// ErrTimeout is returned when a call or a connection read times out, or
	// when an idle connection is reaped by the timeout sweep.
	ErrTimeout = errors.New("timeout")

	// ErrTargetExited indicates the peer service of a pending call exited
	// before replying.
	ErrTargetExited = errors.New("target exited")

	// ErrDuplicateName is returned when registering a unique service name
	// that is already taken.
	ErrDuplicateName = errors.New("unique service name already registered")

	// ErrServiceNotFound is returned when a service id does not resolve.
	ErrServiceNotFound = errors.New("service not found")

	// ErrWorkerNotFound is returned when a service or fd references a worker
	// id outside the running pool.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrReadPending is returned when a read is issued on a connection that
	// already has one outstanding.
	ErrReadPending = errors.New("read already pending on connection")

	// ErrConnNotFound is returned when an fd does not resolve to a live
	// connection or listener.
	ErrConnNotFound = errors.New("connection not found")

	// ErrConnClosed is returned when sending on a connection that is
	// closing or closed.
	ErrConnClosed = errors.New("connection closed")

	// ErrFrameTooLarge is returned when writing a frame above 64 KiB on a
	// length-prefixed connection without chunked write mode.
	ErrFrameTooLarge = errors.New("frame too large for unchunked mode")

	// ErrServerStopped names operations against a server that is stopping
	// or stopped. No function of the runtime returns it.
	ErrServerStopped = errors.New("server stopped")

	// ErrInitFailed wraps a service Init error. If the failing service was
	// unique the server aborts bootstrap.
	ErrInitFailed = errors.New("service init failed")

	// ErrSessionExhausted is returned when a service has 2^31-1 live
	// sessions. In practice this signals a session leak.
	ErrSessionExhausted = errors.New("session ids exhausted")
)

// New returns an error that formats as the given text.
func New(text string) error { return errors.New(text) }

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return errors.As(err, target) }
