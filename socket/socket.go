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

// Package socket is the per-worker network layer: a table of listeners and
// connections, an fd allocator encoding the owning worker, three framing
// variants (length-prefixed, delimiter, websocket) and per-connection send
// queues with backpressure.
//
// Every socket lives on the worker that opened it; events reach the owner
// service as messages through the worker's mailbox, so service dispatch
// stays serial.
package socket

import (
	"fmt"
	"net"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/flowchartsman/retry"
	"go.uber.org/atomic"

	"github.com/threadloom/loom/buffer"
	"github.com/threadloom/loom/errors"
	"github.com/threadloom/loom/log"
	"github.com/threadloom/loom/message"
)

const (
	// maxSocketNum bounds the per-worker rolling fd counter.
	maxSocketNum = 0xFFFF
	// sweepInterval is the coarse timeout sweep period.
	sweepInterval = 10 * time.Second

	// DefaultWarnSendQueueSize is the soft send queue limit; crossing it
	// logs a warning.
	DefaultWarnSendQueueSize = 64
	// DefaultMaxSendQueueSize is the hard send queue limit; crossing it
	// closes the connection with LogicSendQueueOverflow.
	DefaultMaxSendQueueSize = 1024
)

// liveFDs holds every live fd in the process so an fd is never reused
// while alive, even across workers.
var liveFDs = mapset.NewSet[uint32]()

// ReadRequest describes one pending read on a connection. Size reads an
// exact byte count; otherwise Delim reads through the delimiter (CRLF when
// empty). The satisfied read resumes the session on the owner service.
type ReadRequest struct {
	Size    int
	Delim   string
	Session int32
}

// DeliverFunc hands a socket event to the owner service's worker.
type DeliverFunc func(owner uint32, m *message.Message)

// Manager is one worker's socket table.
type Manager struct {
	workerID uint8
	deliver  DeliverFunc
	logger   log.Logger

	mu        sync.Mutex
	conns     map[uint32]*conn
	listeners map[uint32]*listener
	counter   uint32

	sweepStop chan struct{}
	closed    atomic.Bool
	wg        sync.WaitGroup

	// WarnSendQueueSize and MaxSendQueueSize apply to connections opened
	// after the change.
	WarnSendQueueSize int
	MaxSendQueueSize  int
}

// NewManager creates a manager for the given worker. The timeout sweep
// starts with the first socket.
func NewManager(workerID uint8, deliver DeliverFunc, logger log.Logger) *Manager {
	return &Manager{
		workerID:          workerID,
		deliver:           deliver,
		logger:            logger,
		conns:             make(map[uint32]*conn),
		listeners:         make(map[uint32]*listener),
		WarnSendQueueSize: DefaultWarnSendQueueSize,
		MaxSendQueueSize:  DefaultMaxSendQueueSize,
	}
}

// allocFD reserves a process-unique fd: high 16 bits worker id, low 16 a
// rolling counter.
func (m *Manager) allocFD() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < maxSocketNum; i++ {
		m.counter = m.counter%maxSocketNum + 1
		fd := uint32(m.workerID)<<16 | m.counter
		if liveFDs.Add(fd) {
			return fd, nil
		}
	}
	return 0, errors.ErrFdExhausted
}

func (m *Manager) releaseFD(fd uint32) {
	liveFDs.Remove(fd)
}

// WorkerOf extracts the owning worker id from an fd.
func WorkerOf(fd uint32) uint8 { return uint8(fd >> 16) }

// Listen opens a TCP listener delivering accepted connections to owner.
// For PTypeWS the listener speaks the websocket handshake.
func (m *Manager) Listen(addr string, ptype uint8, owner uint32) (uint32, error) {
	if m.closed.Load() {
		return 0, errors.ErrConnClosed
	}
	fd, err := m.allocFD()
	if err != nil {
		return 0, err
	}

	if ptype == message.PTypeWS {
		return m.listenWS(addr, fd, owner)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		m.releaseFD(fd)
		return 0, fmt.Errorf("listen %s: %w", addr, err)
	}
	l := &listener{fd: fd, owner: owner, ptype: ptype, ln: ln}
	m.mu.Lock()
	m.listeners[fd] = l
	m.mu.Unlock()
	m.ensureSweep()

	m.wg.Add(1)
	go m.acceptLoop(l)
	return fd, nil
}

func (m *Manager) acceptLoop(l *listener) {
	defer m.wg.Done()
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if !m.closed.Load() && !l.closed.Load() {
				m.logger.Errorf("listener %d: accept: %v", l.fd, err)
			}
			return
		}
		if tcp, ok := nc.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
			_ = tcp.SetKeepAlive(true)
		}
		if err := m.adopt(nc, nil, l.ptype, l.owner, true); err != nil {
			m.logger.Errorf("listener %d: %v", l.fd, err)
			_ = nc.Close()
		}
	}
}

// Connect dials addr with bounded retry and binds the connection to owner.
// A SubtypeConnect message follows once the connection is registered.
func (m *Manager) Connect(addr string, ptype uint8, owner uint32, timeout time.Duration) (uint32, error) {
	if m.closed.Load() {
		return 0, errors.ErrConnClosed
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if ptype == message.PTypeWS {
		return m.connectWS(addr, owner, timeout)
	}

	dialer := &net.Dialer{Timeout: timeout}
	var nc net.Conn
	retrier := retry.NewRetrier(3, 50*time.Millisecond, timeout)
	err := retrier.Run(func() error {
		var err error
		nc, err = dialer.Dial("tcp", addr)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("connect %s: %w", addr, err)
	}
	if tcp, ok := nc.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return m.adoptFD(nc, nil, ptype, owner, false)
}

// adoptFD registers an established connection and returns its fd.
func (m *Manager) adoptFD(nc net.Conn, ws wsEndpoint, ptype uint8, owner uint32, accepted bool) (uint32, error) {
	fd, err := m.register(nc, ws, ptype, owner, accepted)
	if err != nil {
		return 0, err
	}
	return fd, nil
}

func (m *Manager) adopt(nc net.Conn, ws wsEndpoint, ptype uint8, owner uint32, accepted bool) error {
	_, err := m.register(nc, ws, ptype, owner, accepted)
	return err
}

func (m *Manager) register(nc net.Conn, ws wsEndpoint, ptype uint8, owner uint32, accepted bool) (uint32, error) {
	fd, err := m.allocFD()
	if err != nil {
		return 0, err
	}
	c := newConn(m, fd, owner, ptype, nc, ws)
	m.mu.Lock()
	m.conns[fd] = c
	m.mu.Unlock()
	m.ensureSweep()

	c.start(accepted)
	return fd, nil
}

func (m *Manager) unregister(fd uint32) {
	m.mu.Lock()
	delete(m.conns, fd)
	m.mu.Unlock()
	m.releaseFD(fd)
}

func (m *Manager) conn(fd uint32) (*conn, error) {
	m.mu.Lock()
	c, ok := m.conns[fd]
	m.mu.Unlock()
	if !ok {
		return nil, errors.ErrConnNotFound
	}
	return c, nil
}

// Send queues buf on the connection's send queue.
func (m *Manager) Send(fd uint32, buf *buffer.Buffer) error {
	c, err := m.conn(fd)
	if err != nil {
		return err
	}
	return c.send(buf)
}

// Read issues a read request; at most one may be pending per connection.
func (m *Manager) Read(fd uint32, req ReadRequest) error {
	c, err := m.conn(fd)
	if err != nil {
		return err
	}
	return c.postRead(req)
}

// Close closes a connection or listener by fd.
func (m *Manager) Close(fd uint32) error {
	if c, err := m.conn(fd); err == nil {
		c.fail(nil, LogicOK)
		return nil
	}
	m.mu.Lock()
	l, ok := m.listeners[fd]
	if ok {
		delete(m.listeners, fd)
	}
	m.mu.Unlock()
	if !ok {
		return errors.ErrConnNotFound
	}
	l.close()
	m.releaseFD(fd)
	return nil
}

// CloseOwned closes every socket bound to the given owner service.
func (m *Manager) CloseOwned(owner uint32) {
	m.mu.Lock()
	var conns []*conn
	var listeners []*listener
	for _, c := range m.conns {
		if c.owner == owner {
			conns = append(conns, c)
		}
	}
	for fd, l := range m.listeners {
		if l.owner == owner {
			listeners = append(listeners, l)
			delete(m.listeners, fd)
		}
	}
	m.mu.Unlock()
	for _, c := range conns {
		c.fail(nil, LogicOK)
	}
	for _, l := range listeners {
		l.close()
		m.releaseFD(l.fd)
	}
}

// SetEnableChunked configures chunked framing per direction on a
// length-prefixed connection: "r", "w", "rw" or "none".
func (m *Manager) SetEnableChunked(fd uint32, mode string) error {
	c, err := m.conn(fd)
	if err != nil {
		return err
	}
	switch mode {
	case "r":
		c.chunkedRead.Store(true)
		c.chunkedWrite.Store(false)
	case "w":
		c.chunkedRead.Store(false)
		c.chunkedWrite.Store(true)
	case "rw":
		c.chunkedRead.Store(true)
		c.chunkedWrite.Store(true)
	case "none":
		c.chunkedRead.Store(false)
		c.chunkedWrite.Store(false)
	default:
		return fmt.Errorf("chunked mode %q: want r, w, rw or none", mode)
	}
	return nil
}

// SetTimeout arms the idle timeout checked by the coarse sweep.
func (m *Manager) SetTimeout(fd uint32, timeout time.Duration) error {
	c, err := m.conn(fd)
	if err != nil {
		return err
	}
	c.timeoutSecs.Store(int64(timeout / time.Second))
	return nil
}

// ensureSweep starts the coarse timeout sweep once. The sweep wakes every
// ten seconds, snapshots the table under the lock and fails idle
// connections outside it, so a slow teardown never stalls the tick.
func (m *Manager) ensureSweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweepStop != nil || m.closed.Load() {
		return
	}
	m.sweepStop = make(chan struct{})
	m.wg.Add(1)
	go m.sweepLoop(m.sweepStop)
}

func (m *Manager) sweepLoop(stop <-chan struct{}) {
	defer m.wg.Done()
	tick := time.NewTicker(sweepInterval)
	defer tick.Stop()
	for {
		select {
		case now := <-tick.C:
			m.mu.Lock()
			var idle []*conn
			for _, c := range m.conns {
				if t := c.timeoutSecs.Load(); t > 0 && now.Unix()-c.lastRecv.Load() > t {
					idle = append(idle, c)
				}
			}
			m.mu.Unlock()
			for _, c := range idle {
				c.fail(errors.ErrTimeout, LogicTimeout)
			}
		case <-stop:
			return
		}
	}
}

// Shutdown closes every socket and joins the manager goroutines.
func (m *Manager) Shutdown() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.mu.Lock()
	conns := make([]*conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	listeners := make([]*listener, 0, len(m.listeners))
	for fd, l := range m.listeners {
		listeners = append(listeners, l)
		delete(m.listeners, fd)
	}
	sweepStop := m.sweepStop
	m.mu.Unlock()

	for _, l := range listeners {
		l.close()
		m.releaseFD(l.fd)
	}
	for _, c := range conns {
		c.fail(nil, LogicOK)
	}
	if sweepStop != nil {
		close(sweepStop)
	}
	m.wg.Wait()
}

// listener wraps one accept socket.
type listener struct {
	fd     uint32
	owner  uint32
	ptype  uint8
	ln     net.Listener
	closed atomic.Bool
	// shutdownWS stops the websocket handshake server, when present.
	shutdownWS func()
}

func (l *listener) close() {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	if l.shutdownWS != nil {
		l.shutdownWS()
		return
	}
	_ = l.ln.Close()
}
