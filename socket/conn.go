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

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	gods "github.com/Workiva/go-datastructures/queue"
	"go.uber.org/atomic"

	"github.com/threadloom/loom/buffer"
	"github.com/threadloom/loom/errors"
	"github.com/threadloom/loom/message"
	"github.com/threadloom/loom/metric"
)

// Connection states.
const (
	stateConnecting int32 = iota
	stateOpen
	stateClosing
	stateClosed
)

const (
	// maxUnchunkedFrame is the largest frame a 2-byte length prefix can
	// carry without chunking.
	maxUnchunkedFrame = 0xFFFF
	// chunkPayloadMax is the payload of one chunk; the prefix high bit
	// marks continuation.
	chunkPayloadMax = 0x7FFF
	// chunkMoreBit marks "more chunks follow" in a length prefix.
	chunkMoreBit = 0x8000

	readBufSize = 8 * 1024
)

// conn is one socket with its framing state. The same struct backs all
// three variants; mode-specific behavior branches on ptype, websocket
// connections additionally carry a ws endpoint.
type conn struct {
	mgr   *Manager
	fd    uint32
	owner uint32
	ptype uint8

	nc     net.Conn
	ws     wsEndpoint
	reader *bufio.Reader
	addr   string

	// sendQ carries *buffer.Buffer items. The ring rounds its capacity up
	// to a power of two, so the hard limit is held in limit and checked
	// before each Offer.
	sendQ *gods.RingBuffer
	limit int
	warn  int

	state        atomic.Int32
	lastRecv     atomic.Int64
	timeoutSecs  atomic.Int64
	chunkedRead  atomic.Bool
	chunkedWrite atomic.Bool

	// readMu guards the single pending read slot for delimiter/sized
	// reads.
	readMu  sync.Mutex
	pending *ReadRequest
	readCh  chan ReadRequest
	closeCh chan struct{}

	closeOnce sync.Once
}

func newConn(m *Manager, fd, owner uint32, ptype uint8, nc net.Conn, ws wsEndpoint) *conn {
	c := &conn{
		mgr:   m,
		fd:    fd,
		owner: owner,
		ptype: ptype,
		nc:    nc,
		ws:    ws,
		// the buffer being written counts against the hard limit, so the
		// ring holds one less
		sendQ:   gods.NewRingBuffer(uint64(max(m.MaxSendQueueSize-1, 1))),
		limit:   max(m.MaxSendQueueSize-1, 1),
		warn:    m.WarnSendQueueSize,
		readCh:  make(chan ReadRequest, 1),
		closeCh: make(chan struct{}),
	}
	if nc != nil {
		c.reader = bufio.NewReaderSize(nc, readBufSize)
		c.addr = nc.RemoteAddr().String()
	} else if ws != nil {
		c.addr = ws.RemoteAddr().String()
	}
	c.lastRecv.Store(time.Now().Unix())
	c.state.Store(stateConnecting)
	return c
}

// start transitions to Open, reports the connection to the owner service
// and launches the io goroutines.
func (c *conn) start(accepted bool) {
	c.state.Store(stateOpen)
	metric.Connections.WithLabelValues(workerLabel(c.mgr.workerID)).Inc()

	subtype := message.SubtypeConnect
	if accepted {
		subtype = message.SubtypeAccept
	}
	c.event(subtype, buffer.FromString(c.addr), 0)

	c.mgr.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
}

// event delivers one socket event message to the owner service. The fd
// rides in the sender field.
func (c *conn) event(subtype uint8, buf *buffer.Buffer, session int32) {
	ptype := c.ptype
	if ptype == 0 {
		ptype = message.PTypeSocket
	}
	c.mgr.deliver(c.owner, &message.Message{
		Sender:  c.fd,
		Session: session,
		Type:    ptype,
		Subtype: subtype,
		Buffer:  buf,
	})
}

// send queues buf for writing, enforcing the soft and hard queue limits.
func (c *conn) send(buf *buffer.Buffer) error {
	if buf == nil || buf.Len() == 0 && !buf.HasFlag(buffer.FlagCloseAfterSend) {
		return errors.New("send: empty buffer")
	}
	if c.state.Load() != stateOpen {
		buf.Release()
		return errors.ErrConnClosed
	}

	queued := int(c.sendQ.Len())
	if queued >= c.warn {
		c.mgr.logger.Warnf("conn %d: send queue long: %d", c.fd, queued)
	}
	ok, err := queued < c.limit, error(nil)
	if ok {
		ok, err = c.sendQ.Offer(buf)
	}
	if err != nil {
		buf.Release()
		return errors.ErrConnClosed
	}
	if !ok {
		buf.Release()
		metric.SendQueueOverflows.Inc()
		c.fail(errors.ErrSendQueueOverflow, LogicSendQueueOverflow)
		return errors.ErrSendQueueOverflow
	}
	return nil
}

// postRead parks one read request; a second while one is outstanding is a
// usage error.
func (c *conn) postRead(req ReadRequest) error {
	if c.ptype != message.PTypeText {
		return errors.New("read: connection is not in pull mode")
	}
	c.readMu.Lock()
	if c.pending != nil {
		c.readMu.Unlock()
		return errors.ErrReadPending
	}
	c.pending = &req
	c.readMu.Unlock()
	c.readCh <- req
	if c.state.Load() == stateClosed {
		// lost the race with fail; resume the caller instead of parking it
		select {
		case r := <-c.readCh:
			c.clearPending()
			c.failRead(r.Session, errors.ErrConnClosed)
			return errors.ErrConnClosed
		default:
		}
	}
	return nil
}

func (c *conn) clearPending() {
	c.readMu.Lock()
	c.pending = nil
	c.readMu.Unlock()
}

// readLoop pumps inbound bytes: length-prefixed and websocket modes push
// complete frames, text mode satisfies parked read requests.
func (c *conn) readLoop() {
	defer c.mgr.wg.Done()
	var err error
	switch {
	case c.ws != nil:
		err = c.readLoopWS()
	case c.ptype == message.PTypeText:
		err = c.readLoopText()
	default:
		err = c.readLoopFramed()
	}
	c.fail(err, LogicOK)
}

// readLoopFramed reads 2-byte big-endian length-prefixed frames. With
// chunked read mode, a set high bit marks continuation chunks that
// accumulate into one logical message.
func (c *conn) readLoopFramed() error {
	var header [2]byte
	var assembled []byte
	for {
		if _, err := io.ReadFull(c.reader, header[:]); err != nil {
			return err
		}
		c.lastRecv.Store(time.Now().Unix())

		size := int(binary.BigEndian.Uint16(header[:]))
		more := false
		if c.chunkedRead.Load() && size&chunkMoreBit != 0 {
			size &= chunkPayloadMax
			more = true
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(c.reader, payload); err != nil {
			return err
		}

		if more || assembled != nil {
			assembled = append(assembled, payload...)
			if more {
				continue
			}
			payload = assembled
			assembled = nil
		}
		c.event(message.SubtypeMessage, buffer.From(payload), 0)
	}
}

// readLoopText satisfies parked read requests: exact-size reads or reads
// through a delimiter.
func (c *conn) readLoopText() error {
	for {
		var req ReadRequest
		select {
		case req = <-c.readCh:
		case <-c.closeCh:
			return nil
		}
		var (
			data []byte
			err  error
		)
		if req.Size > 0 {
			data = make([]byte, req.Size)
			_, err = io.ReadFull(c.reader, data)
		} else {
			delim := req.Delim
			if delim == "" {
				delim = "\r\n"
			}
			data, err = readUntil(c.reader, delim)
		}
		c.clearPending()
		if err != nil {
			c.failRead(req.Session, err)
			return err
		}
		c.lastRecv.Store(time.Now().Unix())
		c.event(message.SubtypeMessage, buffer.From(data), req.Session)
	}
}

// failRead resumes a pending read session with an error reply.
func (c *conn) failRead(session int32, err error) {
	if session == 0 {
		return
	}
	c.mgr.deliver(c.owner, &message.Message{
		Sender:  c.fd,
		Session: session,
		Type:    message.PTypeError,
		Subtype: message.SubtypeError,
		Buffer:  buffer.FromString(err.Error()),
	})
}

// writeLoop drains the send queue, framing buffers that ask for it.
func (c *conn) writeLoop() {
	defer c.mgr.wg.Done()
	for {
		item, err := c.sendQ.Get()
		if err != nil {
			return // disposed on close
		}
		buf := item.(*buffer.Buffer)
		closeAfter := buf.HasFlag(buffer.FlagCloseAfterSend)

		if err := c.writeBuffer(buf); err != nil {
			buf.Release()
			c.fail(err, LogicOK)
			return
		}
		buf.Release()

		if closeAfter {
			c.state.Store(stateClosing)
			c.fail(nil, LogicOK)
			return
		}
	}
}

func (c *conn) writeBuffer(buf *buffer.Buffer) error {
	if c.ws != nil {
		return c.writeWS(buf)
	}
	if buf.HasFlag(buffer.FlagFraming) {
		return c.writeFramed(buf)
	}
	_, err := c.nc.Write(buf.Bytes())
	return err
}

// writeFramed prepends the length prefix, splitting into chunks when the
// payload exceeds the unchunked limit and chunked write mode is on.
func (c *conn) writeFramed(buf *buffer.Buffer) error {
	payload := buf.Bytes()
	if len(payload) > maxUnchunkedFrame || buf.HasFlag(buffer.FlagChunked) {
		if !c.chunkedWrite.Load() {
			c.fail(errors.ErrFrameTooLarge, LogicFrameTooLarge)
			return errors.ErrFrameTooLarge
		}
		return c.writeChunks(payload)
	}

	var header [2]byte
	binary.BigEndian.PutUint16(header[:], uint16(len(payload)))
	if buf.WriteFront(header[:]) {
		_, err := c.nc.Write(buf.Bytes())
		return err
	}
	if _, err := c.nc.Write(header[:]); err != nil {
		return err
	}
	_, err := c.nc.Write(payload)
	return err
}

func (c *conn) writeChunks(payload []byte) error {
	var header [2]byte
	for len(payload) > 0 {
		n := len(payload)
		more := uint16(0)
		if n > chunkPayloadMax {
			n = chunkPayloadMax
			more = chunkMoreBit
		}
		binary.BigEndian.PutUint16(header[:], uint16(n)|more)
		if _, err := c.nc.Write(header[:]); err != nil {
			return err
		}
		if _, err := c.nc.Write(payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

// fail tears the connection down once: the owner receives SubtypeError
// with the taxonomy code, then SubtypeClose, and the fd is released.
func (c *conn) fail(cause error, logic LogicError) {
	c.closeOnce.Do(func() {
		c.state.Store(stateClosed)
		metric.Connections.WithLabelValues(workerLabel(c.mgr.workerID)).Dec()

		// fail a parked read so its coroutine resumes
		c.readMu.Lock()
		pending := c.pending
		c.pending = nil
		c.readMu.Unlock()
		if pending != nil && cause != nil {
			c.failRead(pending.Session, cause)
		}
		// a request that slipped into the channel after the pending slot
		// was read resumes with an error too
		select {
		case r := <-c.readCh:
			c.failRead(r.Session, errors.ErrConnClosed)
		default:
		}

		errText := ""
		if cause != nil && cause != io.EOF {
			errText = cause.Error()
		}
		detail := fmt.Sprintf(`{"addr":%q,"logic_errcode":%d,"errmsg":%q}`,
			c.addr, int32(logic), logicOrCause(logic, errText))
		c.event(message.SubtypeError, buffer.FromString(detail), 0)
		c.event(message.SubtypeClose, buffer.FromString(c.addr), 0)

		if c.nc != nil {
			_ = c.nc.Close()
		}
		if c.ws != nil {
			_ = c.ws.Close()
		}
		c.sendQ.Dispose()
		close(c.closeCh)
		c.mgr.unregister(c.fd)
	})
}

func logicOrCause(logic LogicError, cause string) string {
	if logic != LogicOK {
		return logic.String()
	}
	return cause
}

func workerLabel(id uint8) string {
	return fmt.Sprintf("worker-%d", id)
}

// readUntil reads through the (possibly multi-byte) delimiter and returns
// the bytes without it.
func readUntil(r *bufio.Reader, delim string) ([]byte, error) {
	last := delim[len(delim)-1]
	var out []byte
	for {
		part, err := r.ReadBytes(last)
		out = append(out, part...)
		if err != nil {
			return nil, err
		}
		if len(out) >= len(delim) && string(out[len(out)-len(delim):]) == delim {
			return out[:len(out)-len(delim)], nil
		}
	}
}
