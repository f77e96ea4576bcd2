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
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/threadloom/loom/buffer"
	"github.com/threadloom/loom/errors"
	"github.com/threadloom/loom/message"
	"github.com/threadloom/loom/metric"
)

// memReportStart is the first memory watermark; it doubles on each
// crossing.
const memReportStart = 8 * 1024 * 1024

// serviceHost wraps one user Service with its runtime state. Hosts are
// held by their worker in an id-indexed table; nothing holds a back
// pointer to a host across workers.
type serviceHost struct {
	id     ServiceID
	name   string
	unique bool
	impl   Service
	cfg    *ServiceConfig
	worker *worker
	ctx    *Context

	sessions  *sessions
	protocols *protocols

	memUsed   atomic.Int64
	memLimit  int64
	memReport atomic.Int64
	cpuCost   atomic.Int64 // ns spent in dispatch

	started  bool
	ok       bool
	quitting bool
	// strictSerial queues incoming requests while any coroutine of this
	// service is suspended, instead of dispatching them on new coroutines.
	strictSerial bool
	pending      []*message.Message
}

func newServiceHost(id ServiceID, impl Service, cfg *ServiceConfig, w *worker) *serviceHost {
	h := &serviceHost{
		id:        id,
		name:      cfg.Name,
		unique:    cfg.Unique,
		impl:      impl,
		cfg:       cfg,
		worker:    w,
		sessions:  newSessions(),
		protocols: newProtocols(),
		memLimit:  cfg.MemLimit,
	}
	h.memReport.Store(memReportStart)
	h.ctx = &Context{host: h}
	return h
}

// init runs the user Init under the worker's panic boundary.
func (h *serviceHost) init() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrInitFailed, r)
		}
	}()
	if err := h.impl.Init(h.ctx, h.cfg); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInitFailed, err)
	}
	h.ok = true
	return nil
}

// start runs the optional Start hook exactly once.
func (h *serviceHost) start() {
	if h.started {
		return
	}
	h.started = true
	if starter, ok := h.impl.(Starter); ok {
		h.guard(0, 0, func() { starter.Start(h.ctx) })
	}
}

// dispatch delivers one message: replies resume suspended coroutines,
// everything else runs the service's protocol dispatch serially on the
// worker goroutine.
func (h *serviceHost) dispatch(m *message.Message) {
	if !h.ok {
		m.Release()
		return
	}

	// reply path: a live session consumes the message without re-entering
	// the service
	if h.sessions.Resolve(m) {
		h.flushPending()
		return
	}

	if h.strictSerial && h.sessions.Live() > 0 {
		h.pending = append(h.pending, m)
		return
	}

	h.deliver(m)
}

func (h *serviceHost) deliver(m *message.Message) {
	proto, err := h.protocols.lookup(m.Type)
	if err != nil {
		h.worker.logger.Errorf("service %s[%d]: drop message type %d: %v", h.name, h.id, m.Type, err)
		h.replyError(m, "dispatch", err)
		m.Release()
		return
	}

	h.guard(m.Sender, m.Session, func() {
		if proto.Dispatch != nil {
			proto.Dispatch(h.ctx, m)
		} else {
			h.impl.Receive(h.ctx, m)
		}
	})
	m.Release()
}

// flushPending re-enqueues messages parked by strict-serial mode once no
// coroutine is suspended. Order is preserved.
func (h *serviceHost) flushPending() {
	if len(h.pending) == 0 || h.sessions.Live() > 0 {
		return
	}
	parked := h.pending
	h.pending = nil
	for _, m := range parked {
		h.deliver(m)
	}
}

// guard runs fn with cpu accounting and the dispatch panic boundary: a
// panic on a request with a positive session turns into an error reply
// echoing the negated session; on fire-and-forget traffic it is logged.
func (h *serviceHost) guard(sender uint32, session int32, fn func()) {
	begin := time.Now()
	defer func() {
		elapsed := time.Since(begin).Nanoseconds()
		h.cpuCost.Add(elapsed)
		metric.DispatchCPU.WithLabelValues(h.worker.label()).Add(float64(elapsed))
		if r := recover(); r != nil {
			if session > 0 && sender != 0 {
				h.worker.router.respondError(h.id, ServiceID(sender), session, "dispatch", fmt.Sprint(r))
				return
			}
			h.worker.logger.Errorf("service %s[%d] dispatch: %v", h.name, h.id, r)
		}
	}()
	fn()
}

// replyError sends an error reply for a failed request; fire-and-forget
// failures are logged only.
func (h *serviceHost) replyError(m *message.Message, header string, err error) {
	if m.Session > 0 && m.Sender != 0 {
		h.worker.router.respondError(h.id, ServiceID(m.Sender), m.Session, header, err.Error())
	}
}

// fireTimer invokes the service timer callback for one expiration.
func (h *serviceHost) fireTimer(id uint32, last bool) {
	if !h.ok {
		return
	}
	if handler, ok := h.impl.(TimerHandler); ok {
		h.guard(0, 0, func() { handler.OnTimer(h.ctx, id, last) })
	}
}

// requestExit runs the Exit hook. A service without one quits immediately;
// one with it stays alive until it calls ctx.Quit.
func (h *serviceHost) requestExit() {
	if h.quitting {
		return
	}
	if exiter, ok := h.impl.(Exiter); ok {
		h.guard(0, 0, func() { exiter.Exit(h.ctx) })
		return
	}
	h.ctx.Quit()
}

// destroy is the last callback, after the host is unlinked from its worker.
func (h *serviceHost) destroy() {
	h.sessions.FailAll(errors.ErrTargetExited)
	if destroyer, ok := h.impl.(Destroyer); ok {
		h.guard(0, 0, func() { destroyer.Destroy(h.ctx) })
	}
	h.ok = false
}

// trackAlloc adjusts the service's tracked memory. An allocation that would
// cross the configured limit fails; crossing a rising watermark (doubling
// each time) logs a warning.
func (h *serviceHost) trackAlloc(delta int64) error {
	used := h.memUsed.Add(delta)
	if h.memLimit > 0 && delta > 0 && used > h.memLimit {
		h.memUsed.Sub(delta)
		return fmt.Errorf("%w: used %d + %d > limit %d", errors.ErrMemLimit, used-delta, delta, h.memLimit)
	}
	if report := h.memReport.Load(); delta > 0 && used > report {
		if h.memReport.CompareAndSwap(report, report*2) {
			h.worker.logger.Warnf("service %s[%d] memory use %d crossed %d", h.name, h.id, used, report)
		}
	}
	return nil
}

// notifyPeerExit fails every pending call waiting on the exited peer.
func (h *serviceHost) notifyPeerExit(peer ServiceID) {
	h.sessions.FailPeer(peer, errors.ErrTargetExited)
	h.flushPending()
}

// packFor packs call arguments using the service's protocol registry.
func (h *serviceHost) packFor(ptype uint8, vals []any) (*buffer.Buffer, error) {
	proto, err := h.protocols.lookup(ptype)
	if err != nil {
		return nil, err
	}
	if proto.Pack == nil {
		return nil, fmt.Errorf("protocol %q has no pack", proto.Name)
	}
	return proto.Pack(vals...)
}

// unpackFor unpacks a reply using the service's protocol registry; without
// a registered Unpack the raw payload is returned as a single value.
func (h *serviceHost) unpackFor(m *message.Message) ([]any, error) {
	proto, err := h.protocols.lookup(m.Type)
	if err != nil || proto.Unpack == nil {
		return []any{m.Payload()}, nil
	}
	return proto.Unpack(m.Payload())
}
