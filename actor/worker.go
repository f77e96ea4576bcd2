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
	"strconv"
	"strings"
	"time"

	"go.uber.org/atomic"

	"github.com/threadloom/loom/errors"
	"github.com/threadloom/loom/log"
	"github.com/threadloom/loom/message"
	"github.com/threadloom/loom/metric"
	"github.com/threadloom/loom/socket"
)

const (
	// maxWorkers bounds the pool; worker ids must fit the high 8 bits of a
	// ServiceID, with id 0 reserved.
	maxWorkers = 255
	// drainBatch caps how many mailbox messages one poll handles, so timer
	// fires and commands are not starved by a busy mailbox.
	drainBatch = 1024
)

// worker is one scheduling unit: a goroutine draining a mailbox, a command
// queue and a timer wheel, hosting a set of services. Everything a worker
// owns (service table, timers, sockets) is touched only from its loop.
type worker struct {
	id     uint8
	router *Router
	logger log.Logger

	mailbox  *mailbox
	commands mpsc[func()]

	services map[uint32]*serviceHost
	seq      atomic.Uint32

	timers  *timerWheel
	pool    *coPool
	sockets *socket.Manager

	stopping atomic.Bool
	done     chan struct{}
}

func newWorker(id uint8, r *Router, logger log.Logger) *worker {
	w := &worker{
		id:       id,
		router:   r,
		logger:   logger,
		mailbox:  newMailbox(),
		services: make(map[uint32]*serviceHost),
		timers:   newTimerWheel(),
		pool:     newCoPool(),
		done:     make(chan struct{}),
	}
	w.sockets = socket.NewManager(id, w.deliverSocket, logger)
	return w
}

// reserveID allocates the next service id on this worker. Safe from any
// goroutine.
func (w *worker) reserveID() (ServiceID, error) {
	seq := w.seq.Inc()
	if seq > MaxServicesPerWorker {
		return 0, errors.ErrFdExhausted
	}
	return MakeServiceID(w.id, seq), nil
}

// post enqueues a command task for the worker loop.
func (w *worker) post(fn func()) {
	w.commands.Push(fn)
	select {
	case w.mailbox.wake <- struct{}{}:
	default:
	}
}

// push enqueues a message for delivery by the worker loop.
func (w *worker) push(m *message.Message) {
	w.mailbox.Push(m)
}

// deliverSocket routes a socket event into the mailbox of the owner's
// worker. Sockets always live on the worker that opened them, so this is
// normally self-delivery.
func (w *worker) deliverSocket(owner uint32, m *message.Message) {
	m.Receiver = owner
	w.router.route(m)
}

// run is the worker loop.
func (w *worker) run() {
	defer close(w.done)

	idle := time.NewTimer(time.Hour)
	defer idle.Stop()

	depth := metric.MailboxDepth.WithLabelValues(w.label())
	for {
		w.drainCommands()
		w.drainMailbox()
		w.fireTimers()
		depth.Set(float64(w.mailbox.Len()))

		if w.stopping.Load() && len(w.services) == 0 {
			w.shutdown()
			return
		}

		// park until the next wake or timer deadline
		wait := time.Hour
		if deadline, ok := w.timers.NextDeadline(); ok {
			wait = time.Until(deadline)
			if wait < 0 {
				wait = 0
			}
		}
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(wait)

		select {
		case <-w.mailbox.wake:
		case <-idle.C:
		}
	}
}

func (w *worker) drainCommands() {
	for {
		fn, ok := w.commands.Pop()
		if !ok {
			return
		}
		fn()
	}
}

// drainMailbox dispatches up to drainBatch pending messages.
func (w *worker) drainMailbox() {
	for i := 0; i < drainBatch; i++ {
		m, ok := w.mailbox.Pop()
		if !ok {
			return
		}
		w.dispatch(m)
	}
	// more remain; keep the loop hot
	select {
	case w.mailbox.wake <- struct{}{}:
	default:
	}
}

func (w *worker) dispatch(m *message.Message) {
	host, ok := w.services[uint32(m.Receiver)&seqMask]
	if !ok || uint32(host.id) != m.Receiver {
		if m.ExpectsReply() && m.Sender != 0 {
			w.router.respondError(ServiceID(m.Receiver), ServiceID(m.Sender), m.Session, "dispatch", errors.ErrServiceNotFound.Error())
		} else {
			w.logger.Debugf("worker %d: drop message for dead service %d", w.id, m.Receiver)
		}
		m.Release()
		return
	}
	metric.DispatchTotal.Inc()
	host.dispatch(m)
}

func (w *worker) fireTimers() {
	now := time.Now()
	for {
		entry, last := w.timers.Due(now)
		if entry == nil {
			return
		}
		if entry.session != 0 {
			// runtime timer: resume the suspended coroutine
			if host, ok := w.services[entry.owner.Seq()]; ok {
				host.sessions.TimerFire(entry.session)
			}
			continue
		}
		if host, ok := w.services[entry.owner.Seq()]; ok {
			host.fireTimer(entry.id, last)
		} else {
			w.timers.Remove(entry.id)
		}
	}
}

// addTimer registers a timer entry; callable from any goroutine. The id is
// allocated immediately, the insert happens on the worker loop.
func (w *worker) addTimer(owner ServiceID, interval time.Duration, times int32, session int32) uint32 {
	id := w.timers.NextID()
	now := time.Now()
	w.post(func() {
		w.timers.Add(id, owner, interval, times, session, now)
	})
	return id
}

// removeTimer cancels a timer; callable from any goroutine.
func (w *worker) removeTimer(id uint32) {
	w.post(func() {
		w.timers.Remove(id)
	})
}

// createService constructs and links a service on this worker. Must run on
// the worker loop; done receives the outcome.
func (w *worker) createService(id ServiceID, factory Factory, cfg *ServiceConfig, done chan<- error) {
	host := newServiceHost(id, factory(), cfg, w)

	if cfg.Unique {
		if !w.router.SetUniqueService(cfg.Name, id) {
			done <- errors.ErrDuplicateName
			return
		}
	}

	if err := host.init(); err != nil {
		if cfg.Unique {
			w.router.unregisterUnique(cfg.Name, id)
		}
		done <- err
		return
	}

	w.services[id.Seq()] = host
	metric.Services.WithLabelValues(w.label()).Inc()
	done <- nil
}

// startService runs the Start hook; used after the bootstrap batch and for
// dynamically created services.
func (w *worker) startService(id ServiceID) {
	if host, ok := w.services[id.Seq()]; ok {
		host.start()
	}
}

// removeService unlinks a service and runs its Destroy. The optional reply
// confirms unregistration to the remover.
func (w *worker) removeService(id ServiceID, replyTo ServiceID, session int32) {
	w.post(func() {
		host, ok := w.services[id.Seq()]
		if !ok {
			if session > 0 && replyTo != 0 {
				w.router.respondError(id, replyTo, session, "remove", errors.ErrServiceNotFound.Error())
			}
			return
		}
		delete(w.services, id.Seq())
		metric.Services.WithLabelValues(w.label()).Dec()
		if host.unique {
			w.router.unregisterUnique(host.name, id)
		}
		w.timers.RemoveOwned(id)
		w.sockets.CloseOwned(uint32(id))

		// the confirmation covers unregistration, not destruction
		if session > 0 && replyTo != 0 {
			w.router.respondText(id, replyTo, session, "remove", "OK")
		}

		host.destroy()
		w.router.notifyExit(id, host.unique)
	})
}

// requestStop marks the worker stopping and asks every service to exit.
func (w *worker) requestStop() {
	w.stopping.Store(true)
	w.post(func() {
		for _, host := range w.services {
			host.requestExit()
		}
	})
}

// peerExited fans a peer's exit into every local service's session table.
func (w *worker) peerExited(peer ServiceID) {
	w.post(func() {
		for _, host := range w.services {
			host.notifyPeerExit(peer)
		}
	})
}

func (w *worker) shutdown() {
	metric.MailboxDepth.WithLabelValues(w.label()).Set(0)
	w.sockets.Shutdown()
	w.pool.Drain()
	// release anything still queued
	for {
		m, ok := w.mailbox.Pop()
		if !ok {
			break
		}
		m.Release()
	}
}

func (w *worker) label() string {
	return "worker-" + strconv.Itoa(int(w.id))
}

// execCmd implements the text admin channel. Runs on the worker loop.
func (w *worker) execCmd(cmd string, args []string) (string, error) {
	switch cmd {
	case "ping":
		return "pong", nil
	case "state":
		return fmt.Sprintf("worker %d services:%d mqsize:%d timers:%d",
			w.id, len(w.services), w.mailbox.Len(), w.timers.Len()), nil
	case "services":
		var b strings.Builder
		for _, host := range w.services {
			fmt.Fprintf(&b, "%d %s mqsize:%d cpu:%dns mem:%d\n",
				host.id, host.name, len(host.pending), host.cpuCost.Load(), host.memUsed.Load())
		}
		return b.String(), nil
	case "kill":
		if len(args) != 1 {
			return "", errors.New("kill: expected service id")
		}
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return "", fmt.Errorf("kill: bad service id %q", args[0])
		}
		w.removeService(ServiceID(id), 0, 0)
		return "OK", nil
	default:
		return "", fmt.Errorf("unknown command %q", cmd)
	}
}
