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
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/threadloom/loom/buffer"
	"github.com/threadloom/loom/message"
)

// wsEndpoint is the slice of *websocket.Conn the connection layer touches,
// kept as an interface so framing tests can stub the handshake away.
type wsEndpoint interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPingHandler(h func(appData string) error)
	SetPongHandler(h func(appData string) error)
	RemoteAddr() net.Addr
	Close() error
}

var _ wsEndpoint = (*websocket.Conn)(nil)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  readBufSize,
	WriteBufferSize: readBufSize,
	// origin policy is the embedding application's concern
	CheckOrigin: func(*http.Request) bool { return true },
}

// listenWS serves the websocket handshake on addr; upgraded connections
// join the connection table like any accepted socket.
func (m *Manager) listenWS(addr string, fd uint32, owner uint32) (uint32, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		m.releaseFD(fd)
		return 0, fmt.Errorf("ws listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ws, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				m.logger.Errorf("ws listener %d: handshake: %v", fd, err)
				return
			}
			if err := m.adopt(nil, ws, message.PTypeWS, owner, true); err != nil {
				m.logger.Errorf("ws listener %d: %v", fd, err)
				_ = ws.Close()
			}
		}),
	}

	l := &listener{fd: fd, owner: owner, ptype: message.PTypeWS, ln: ln}
	l.shutdownWS = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	m.mu.Lock()
	m.listeners[fd] = l
	m.mu.Unlock()
	m.ensureSweep()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			if !m.closed.Load() && !l.closed.Load() {
				m.logger.Errorf("ws listener %d: serve: %v", fd, err)
			}
		}
	}()
	return fd, nil
}

// connectWS dials a websocket URL ("ws://host:port/path" or a bare
// host:port).
func (m *Manager) connectWS(addr string, owner uint32, timeout time.Duration) (uint32, error) {
	url := addr
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + addr
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	ws, _, err := dialer.Dial(url, nil)
	if err != nil {
		return 0, fmt.Errorf("ws connect %s: %w", addr, err)
	}
	return m.adoptFD(nil, ws, message.PTypeWS, owner, false)
}

// readLoopWS pumps websocket frames: data frames deliver SubtypeMessage
// with FlagWSText on text frames, pings answer with a pong and surface as
// SubtypePing, pongs surface as SubtypePong.
func (c *conn) readLoopWS() error {
	c.ws.SetPingHandler(func(appData string) error {
		_ = c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
		c.lastRecv.Store(time.Now().Unix())
		c.event(message.SubtypePing, buffer.FromString(appData), 0)
		return nil
	})
	c.ws.SetPongHandler(func(appData string) error {
		c.lastRecv.Store(time.Now().Unix())
		c.event(message.SubtypePong, buffer.FromString(appData), 0)
		return nil
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		c.lastRecv.Store(time.Now().Unix())
		buf := buffer.From(data)
		if mt == websocket.TextMessage {
			buf.SetFlag(buffer.FlagWSText)
		}
		c.event(message.SubtypeMessage, buf, 0)
	}
}

// writeWS maps buffer flags onto websocket frame types.
func (c *conn) writeWS(buf *buffer.Buffer) error {
	deadline := time.Now().Add(5 * time.Second)
	switch {
	case buf.HasFlag(buffer.FlagWSPing):
		return c.ws.WriteControl(websocket.PingMessage, buf.Bytes(), deadline)
	case buf.HasFlag(buffer.FlagWSPong):
		return c.ws.WriteControl(websocket.PongMessage, buf.Bytes(), deadline)
	case buf.HasFlag(buffer.FlagWSText):
		return c.ws.WriteMessage(websocket.TextMessage, buf.Bytes())
	default:
		return c.ws.WriteMessage(websocket.BinaryMessage, buf.Bytes())
	}
}
