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
	"sync"

	"github.com/zeebo/xxh3"
	"go.uber.org/atomic"

	"github.com/threadloom/loom/buffer"
	"github.com/threadloom/loom/errors"
	"github.com/threadloom/loom/internal/syncmap"
	"github.com/threadloom/loom/log"
	"github.com/threadloom/loom/message"
)

const nameShards = 16

// nameShard holds a slice of the unique-name directory. Sharding by name
// hash keeps writer-preferring lock contention local; reads take the read
// lock only.
type nameShard struct {
	mu    sync.RWMutex
	names map[string]ServiceID
}

// Router is the process-global directory: it maps services to workers,
// owns the unique-name registry and fans messages out. The name registry
// is the only shared mutable directory; per-worker tables stay
// single-owner.
type Router struct {
	workers []*worker
	shards  [nameShards]nameShard
	env     *syncmap.SyncMap[string, string]
	logger  log.Logger
	next    atomic.Uint32
	// onUniqueExit is invoked when a unique service leaves a running
	// server; the server stops the node.
	onUniqueExit func(ServiceID)
}

func newRouter(logger log.Logger) *Router {
	r := &Router{
		env:    syncmap.New[string, string](),
		logger: logger,
	}
	for i := range r.shards {
		r.shards[i].names = make(map[string]ServiceID)
	}
	return r
}

func (r *Router) shard(name string) *nameShard {
	return &r.shards[xxh3.HashString(name)%nameShards]
}

func (r *Router) worker(id uint8) (*worker, bool) {
	// worker ids start at 1; index 0 is unused so a zero ServiceID never
	// resolves
	if id == 0 || int(id) > len(r.workers) {
		return nil, false
	}
	return r.workers[id-1], true
}

// Send constructs a message and enqueues it on the destination worker's
// mailbox without copying the payload. When to is zero and header names a
// unique service, the name is resolved first; resolution happens exactly
// once, at enqueue time. It reports false when the destination does not
// resolve.
func (r *Router) Send(from, to ServiceID, header string, session int32, ptype uint8, buf *buffer.Buffer) bool {
	if to == 0 && header != "" {
		if to = r.GetUniqueService(header); to == 0 {
			r.logger.Warnf("send: unique service %q not found", header)
			if buf != nil {
				buf.Release()
			}
			return false
		}
		header = ""
	}
	m := &message.Message{
		Sender:   uint32(from),
		Receiver: uint32(to),
		Session:  session,
		Type:     ptype,
		Header:   header,
		Buffer:   buf,
	}
	return r.route(m)
}

// route enqueues a prepared message on the receiver's worker.
func (r *Router) route(m *message.Message) bool {
	w, ok := r.worker(ServiceID(m.Receiver).WorkerID())
	if !ok {
		r.logger.Warnf("route: no worker for service %d", m.Receiver)
		m.Release()
		return false
	}
	w.push(m)
	return true
}

// respondText sends a text reply echoing the session.
func (r *Router) respondText(from, to ServiceID, session int32, header, text string) {
	r.Send(from, to, header, session, message.PTypeText, buffer.FromString(text))
}

// respondError sends an error reply: Type PTypeError, session negated to
// mark dispatch-side failure.
func (r *Router) respondError(from, to ServiceID, session int32, header, text string) {
	r.Send(from, to, header, -session, message.PTypeError, buffer.FromString(text))
}

// Broadcast fans one shared immutable buffer to every service on every
// worker. Ordering relative to concurrent unicasts is unspecified.
func (r *Router) Broadcast(from ServiceID, header string, ptype uint8, buf *buffer.Buffer) {
	if buf != nil {
		buf.SetFlag(buffer.FlagBroadcast)
	}
	for _, w := range r.workers {
		w := w
		if buf != nil {
			buf.Retain()
		}
		w.post(func() {
			for _, host := range w.services {
				m := &message.Message{
					Sender:   uint32(from),
					Receiver: uint32(host.id),
					Type:     ptype,
					Header:   header,
				}
				if buf != nil {
					m.Buffer = buf.Retain()
				}
				host.dispatch(m)
			}
			if buf != nil {
				buf.Release()
			}
		})
	}
	if buf != nil {
		buf.Release()
	}
}

// GetUniqueService resolves a unique name, zero when absent.
func (r *Router) GetUniqueService(name string) ServiceID {
	shard := r.shard(name)
	shard.mu.RLock()
	id := shard.names[name]
	shard.mu.RUnlock()
	return id
}

// SetUniqueService registers name → id. It fails atomically when the name
// exists; this is the only multi-writer directory operation.
func (r *Router) SetUniqueService(name string, id ServiceID) bool {
	shard := r.shard(name)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, taken := shard.names[name]; taken {
		return false
	}
	shard.names[name] = id
	return true
}

func (r *Router) unregisterUnique(name string, id ServiceID) {
	shard := r.shard(name)
	shard.mu.Lock()
	if shard.names[name] == id {
		delete(shard.names, name)
	}
	shard.mu.Unlock()
}

// Factory constructs a fresh Service instance.
type Factory func() Service

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterFactory binds a service type name — the config's "file" key — to
// a constructor. Typically called from init functions of service packages.
func RegisterFactory(name string, f Factory) {
	factoryMu.Lock()
	factories[name] = f
	factoryMu.Unlock()
}

func lookupFactory(name string) (Factory, bool) {
	factoryMu.RLock()
	f, ok := factories[name]
	factoryMu.RUnlock()
	return f, ok
}

// Spawn creates a service. The router picks a worker round-robin unless
// workerHint is positive. It blocks until the service's Init finished, so
// it must not be called from a worker loop directly — inside a service use
// a coroutine (ctx.Async) or pass a different worker hint.
func (r *Router) Spawn(cfg *ServiceConfig, workerHint int) (ServiceID, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	factory, ok := lookupFactory(cfg.File)
	if !ok {
		return 0, fmt.Errorf("service %q: no factory registered for %q", cfg.Name, cfg.File)
	}

	var w *worker
	if workerHint > 0 {
		picked, ok := r.worker(uint8(workerHint))
		if !ok {
			return 0, errors.ErrWorkerNotFound
		}
		w = picked
	} else {
		w = r.workers[r.next.Inc()%uint32(len(r.workers))]
	}

	id, err := w.reserveID()
	if err != nil {
		return 0, err
	}

	done := make(chan error, 1)
	w.post(func() { w.createService(id, factory, cfg, done) })
	if err := <-done; err != nil {
		return 0, err
	}
	// dynamically created services start before their first dispatch;
	// bootstrap services are started in a batch by the server instead
	return id, nil
}

// NewService is Spawn plus the immediate Start hook, for services created
// after bootstrap.
func (r *Router) NewService(cfg *ServiceConfig, workerHint int) (ServiceID, error) {
	id, err := r.Spawn(cfg, workerHint)
	if err != nil {
		return 0, err
	}
	if w, ok := r.worker(id.WorkerID()); ok {
		w.post(func() { w.startService(id) })
	}
	return id, nil
}

// RemoveService stops a service. A positive session gets a confirmation
// reply to replyTo once the target is unregistered (not after Destroy).
func (r *Router) RemoveService(id ServiceID, replyTo ServiceID, session int32) {
	w, ok := r.worker(id.WorkerID())
	if !ok {
		return
	}
	w.removeService(id, replyTo, session)
}

// notifyExit fans a service's exit to every worker so pending calls on the
// dead peer fail fast, and escalates when a unique service left.
func (r *Router) notifyExit(id ServiceID, unique bool) {
	for _, w := range r.workers {
		w.peerExited(id)
	}
	if unique && r.onUniqueExit != nil {
		r.onUniqueExit(id)
	}
}

// SetEnv stores a process-global environment value.
func (r *Router) SetEnv(name, value string) {
	r.env.Set(name, value)
}

// GetEnv reads a process-global environment value.
func (r *Router) GetEnv(name string) (string, bool) {
	return r.env.Get(name)
}

// RunCmd parses a text admin command and executes it on the target worker,
// replying on the caller's session over the debug protocol.
//
// Grammar: "cmd arg…". kill routes to the worker owning the victim;
// everything else runs on the caller's worker.
func (r *Router) RunCmd(from ServiceID, cmdline string, session int32) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		r.respondError(0, from, session, "runcmd", "empty command")
		return
	}
	cmd, args := fields[0], fields[1:]

	target, ok := r.worker(from.WorkerID())
	if cmd == "kill" && len(args) == 1 {
		if id, err := strconv.ParseUint(args[0], 10, 32); err == nil {
			target, ok = r.worker(ServiceID(id).WorkerID())
		}
	}
	if !ok {
		r.respondError(0, from, session, "runcmd", errors.ErrWorkerNotFound.Error())
		return
	}

	target.post(func() {
		out, err := target.execCmd(cmd, args)
		if err != nil {
			r.respondError(0, from, session, "runcmd", err.Error())
			return
		}
		if session != 0 {
			r.Send(0, from, "runcmd", session, message.PTypeDebug, buffer.FromString(out))
		}
	})
}
