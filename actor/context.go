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
	"time"

	"github.com/threadloom/loom/buffer"
	"github.com/threadloom/loom/errors"
	"github.com/threadloom/loom/log"
	"github.com/threadloom/loom/message"
	"github.com/threadloom/loom/socket"
)

// Context is a service's handle on the runtime. One Context exists per
// service and is passed to every callback. Methods are safe to call from
// the worker goroutine and from this service's coroutines.
type Context struct {
	host *serviceHost
}

// Self returns the service id.
func (c *Context) Self() ServiceID { return c.host.id }

// Name returns the service name.
func (c *Context) Name() string { return c.host.name }

// Logger returns the worker's logger.
func (c *Context) Logger() log.Logger {
	return c.host.worker.logger
}

// Send delivers a fire-and-forget or request message to another service.
// It reports false when the destination does not resolve.
func (c *Context) Send(to ServiceID, ptype uint8, header string, session int32, buf *buffer.Buffer) bool {
	return c.host.worker.router.Send(c.host.id, to, header, session, ptype, buf)
}

// SendText sends a PTypeText payload.
func (c *Context) SendText(to ServiceID, text string) bool {
	return c.Send(to, message.PTypeText, "", 0, buffer.FromString(text))
}

// SendData packs vals with the data protocol and sends them.
func (c *Context) SendData(to ServiceID, vals ...any) error {
	buf, err := c.host.packFor(message.PTypeData, vals)
	if err != nil {
		return err
	}
	if !c.Send(to, message.PTypeData, "", 0, buf) {
		return errors.ErrServiceNotFound
	}
	return nil
}

// Response replies to a request. A zero session is a no-op, so handlers can
// reply unconditionally whether or not the caller asked for one.
func (c *Context) Response(to ServiceID, ptype uint8, session int32, buf *buffer.Buffer) {
	if session == 0 {
		if buf != nil {
			buf.Release()
		}
		return
	}
	c.host.worker.router.Send(c.host.id, to, "", session, ptype, buf)
}

// RespondData packs vals and replies on the data protocol.
func (c *Context) RespondData(to ServiceID, session int32, vals ...any) error {
	if session == 0 {
		return nil
	}
	buf, err := c.host.packFor(message.PTypeData, vals)
	if err != nil {
		return err
	}
	c.Response(to, message.PTypeData, session, buf)
	return nil
}

// Register installs or replaces a protocol record for this service. Must
// be called from Init or a dispatch callback, never concurrently with
// dispatch.
func (c *Context) Register(p *Protocol) {
	c.host.protocols.register(p)
}

// Async starts fn on a pooled coroutine. Inside fn the Co handle provides
// the suspending operations: Call, Sleep and socket reads. Dispatch of
// further messages to this service continues while coroutines are
// suspended, unless strict-serial mode is set.
func (c *Context) Async(fn func(co *Co)) {
	co := &Co{host: c.host}
	c.host.worker.pool.Go(func() { fn(co) })
}

// Repeated schedules a timer firing every interval, times times
// (RepeatForever for unbounded). The returned id can cancel it.
func (c *Context) Repeated(interval time.Duration, times int32) uint32 {
	return c.host.worker.addTimer(c.host.id, interval, times, 0)
}

// RemoveTimer cancels a timer. Cancelling from inside its own fire is
// allowed.
func (c *Context) RemoveTimer(id uint32) {
	c.host.worker.removeTimer(id)
}

// NewService asks the router to create a service. workerHint pins the
// worker when positive; zero lets the router pick round-robin. The call
// blocks until the new service's Init has finished, so call it from a
// coroutine (ctx.Async) rather than directly from the worker loop.
func (c *Context) NewService(cfg *ServiceConfig, workerHint int) (ServiceID, error) {
	return c.host.worker.router.NewService(cfg, workerHint)
}

// RemoveService stops another service. When session is positive, a
// confirmation is sent back to this service once the target unregisters.
func (c *Context) RemoveService(id ServiceID, session int32) {
	c.host.worker.router.RemoveService(id, c.host.id, session)
}

// Quit stops this service: Exit-phase work is done, the worker unlinks the
// host and runs Destroy.
func (c *Context) Quit() {
	c.host.quitting = true
	c.host.worker.removeService(c.host.id, 0, 0)
}

// CancelSession makes a pending session inert: a late reply is dropped
// without resuming. Idempotent.
func (c *Context) CancelSession(session int32) {
	c.host.sessions.Cancel(session)
}

// SetEnv stores a process-global environment value.
func (c *Context) SetEnv(name, value string) {
	c.host.worker.router.SetEnv(name, value)
}

// GetEnv reads a process-global environment value.
func (c *Context) GetEnv(name string) (string, bool) {
	return c.host.worker.router.GetEnv(name)
}

// QueryService resolves a unique service name.
func (c *Context) QueryService(name string) ServiceID {
	return c.host.worker.router.GetUniqueService(name)
}

// TrackAlloc adjusts this service's tracked memory use; allocations over
// the configured limit fail.
func (c *Context) TrackAlloc(delta int64) error {
	return c.host.trackAlloc(delta)
}

// MemUsed returns the tracked memory use.
func (c *Context) MemUsed() int64 { return c.host.memUsed.Load() }

// CPUCost returns the cumulative nanoseconds spent in this service's
// dispatch callbacks.
func (c *Context) CPUCost() int64 { return c.host.cpuCost.Load() }

// Listen opens a listener on this service's worker. Accepted connections
// deliver SubtypeAccept messages to this service, with the fd as sender.
func (c *Context) Listen(addr string, ptype uint8) (uint32, error) {
	return c.host.worker.sockets.Listen(addr, ptype, uint32(c.host.id))
}

// Connect dials addr and binds the connection to this service. The fd is
// returned synchronously; a SubtypeConnect message follows.
func (c *Context) Connect(addr string, ptype uint8, timeout time.Duration) (uint32, error) {
	return c.host.worker.sockets.Connect(addr, ptype, uint32(c.host.id), timeout)
}

// SendTo queues buf on the connection's send queue.
func (c *Context) SendTo(fd uint32, buf *buffer.Buffer) error {
	return c.host.worker.sockets.Send(fd, buf)
}

// WriteThenClose queues buf and closes the connection once it has drained.
func (c *Context) WriteThenClose(fd uint32, buf *buffer.Buffer) error {
	buf.SetFlag(buffer.FlagCloseAfterSend)
	return c.host.worker.sockets.Send(fd, buf)
}

// CloseFD closes a connection or listener owned by this service's worker.
func (c *Context) CloseFD(fd uint32) error {
	return c.host.worker.sockets.Close(fd)
}

// SetEnableChunked configures chunked framing per direction on a
// length-prefixed connection: "r", "w", "rw" or "none".
func (c *Context) SetEnableChunked(fd uint32, mode string) error {
	return c.host.worker.sockets.SetEnableChunked(fd, mode)
}

// SetTimeout arms the idle timeout for a connection; the coarse sweep
// closes it when no bytes arrive for that long.
func (c *Context) SetTimeout(fd uint32, timeout time.Duration) error {
	return c.host.worker.sockets.SetTimeout(fd, timeout)
}

// Co is the handle coroutines get inside Async. Its methods may suspend
// the calling goroutine; they must never be called from the worker
// goroutine itself.
type Co struct {
	host *serviceHost
}

// Call sends a request and suspends until the reply, an error reply, or
// the peer's exit.
func (co *Co) Call(to ServiceID, ptype uint8, header string, buf *buffer.Buffer) (*message.Message, error) {
	return co.call(to, ptype, header, buf, 0)
}

// CallTimeout is Call racing a timer: whichever finishes first cancels the
// other. On timeout the reply, should it still arrive, is dropped.
func (co *Co) CallTimeout(to ServiceID, ptype uint8, header string, buf *buffer.Buffer, timeout time.Duration) (*message.Message, error) {
	return co.call(to, ptype, header, buf, timeout)
}

func (co *Co) call(to ServiceID, ptype uint8, header string, buf *buffer.Buffer, timeout time.Duration) (*message.Message, error) {
	host := co.host
	session, entry, err := host.sessions.NewSession(to)
	if err != nil {
		if buf != nil {
			buf.Release()
		}
		return nil, err
	}

	var timerID uint32
	if timeout > 0 {
		timerID = host.worker.addTimer(host.id, timeout, 1, session)
	}

	if !host.worker.router.Send(host.id, to, header, session, ptype, buf) {
		host.sessions.Cancel(session)
		if timerID != 0 {
			host.worker.removeTimer(timerID)
		}
		return nil, errors.ErrServiceNotFound
	}

	res := <-entry.ch
	if timerID != 0 {
		host.worker.removeTimer(timerID)
	}
	return res.msg, res.err
}

// CallData packs vals with the data protocol (PTypeData), calls, and
// unpacks the reply with the Unpack of the reply's protocol.
func (co *Co) CallData(to ServiceID, vals ...any) ([]any, error) {
	return co.CallDataTimeout(to, 0, vals...)
}

// CallDataTimeout is CallData with a deadline.
func (co *Co) CallDataTimeout(to ServiceID, timeout time.Duration, vals ...any) ([]any, error) {
	buf, err := co.host.packFor(message.PTypeData, vals)
	if err != nil {
		return nil, err
	}
	reply, err := co.call(to, message.PTypeData, "", buf, timeout)
	if err != nil {
		return nil, err
	}
	defer reply.Release()
	return co.host.unpackFor(reply)
}

// Sleep suspends the coroutine for at least d.
func (co *Co) Sleep(d time.Duration) {
	host := co.host
	session, entry, err := host.sessions.NewSession(0)
	if err != nil {
		time.Sleep(d)
		return
	}
	host.worker.addTimer(host.id, d, 1, session)
	<-entry.ch
}

// Read issues a socket read and suspends until it is satisfied. size reads
// an exact byte count; otherwise the read runs through delim (CRLF when
// delim is empty) and returns the bytes before it, without the delimiter.
// Exactly one read may be pending per connection.
func (co *Co) Read(fd uint32, size int, delim string) ([]byte, error) {
	host := co.host
	session, entry, err := host.sessions.NewSession(0)
	if err != nil {
		return nil, err
	}
	if err := host.worker.sockets.Read(fd, socket.ReadRequest{Size: size, Delim: delim, Session: session}); err != nil {
		host.sessions.Cancel(session)
		return nil, err
	}
	res := <-entry.ch
	if res.err != nil {
		return nil, res.err
	}
	defer res.msg.Release()
	out := make([]byte, res.msg.Buffer.Len())
	copy(out, res.msg.Payload())
	return out, nil
}

// Self returns the owning service id.
func (co *Co) Self() ServiceID { return co.host.id }

// RunCmd issues a text admin command and suspends until its reply.
func (co *Co) RunCmd(cmdline string) (string, error) {
	host := co.host
	session, entry, err := host.sessions.NewSession(0)
	if err != nil {
		return "", err
	}
	host.worker.router.RunCmd(host.id, cmdline, session)
	res := <-entry.ch
	if res.err != nil {
		return "", res.err
	}
	defer res.msg.Release()
	return res.msg.Text(), nil
}

// SetStrictSerial toggles strict-serial mode: while any coroutine of this
// service is suspended, further incoming requests queue instead of being
// dispatched on new coroutines. Meant to be called from Init.
func (c *Context) SetStrictSerial(strict bool) {
	c.host.strictSerial = strict
}
