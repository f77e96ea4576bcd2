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
	"bytes"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dynaport "github.com/travisjeffery/go-dynaport"

	"github.com/threadloom/loom/buffer"
	"github.com/threadloom/loom/errors"
	"github.com/threadloom/loom/log"
	"github.com/threadloom/loom/message"
)

// collector gathers delivered socket events for assertions.
type collector struct {
	events chan *message.Message
}

func newCollector() *collector {
	return &collector{events: make(chan *message.Message, 64)}
}

func (c *collector) deliver(owner uint32, m *message.Message) {
	c.events <- m
}

func (c *collector) next(t *testing.T, subtype uint8) *message.Message {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case m := <-c.events:
			if m.Subtype == subtype {
				return m
			}
		case <-deadline:
			t.Fatalf("no event with subtype %d", subtype)
		}
	}
}

func testManager(t *testing.T, workerID uint8) (*Manager, *collector) {
	t.Helper()
	col := newCollector()
	m := NewManager(workerID, col.deliver, log.DiscardLogger)
	t.Cleanup(m.Shutdown)
	return m, col
}

func TestFdEncodingAndUniqueness(t *testing.T) {
	m1, _ := testManager(t, 1)
	m7, _ := testManager(t, 7)

	ports := dynaport.Get(2)
	fd1, err := m1.Listen(fmt.Sprintf("127.0.0.1:%d", ports[0]), message.PTypeSocket, 1)
	require.NoError(t, err)
	fd2, err := m7.Listen(fmt.Sprintf("127.0.0.1:%d", ports[1]), message.PTypeSocket, 1)
	require.NoError(t, err)

	assert.Equal(t, uint8(1), WorkerOf(fd1))
	assert.Equal(t, uint8(7), WorkerOf(fd2))
	assert.NotEqual(t, fd1, fd2)
	assert.True(t, liveFDs.Contains(fd1))
	assert.True(t, liveFDs.Contains(fd2))

	require.NoError(t, m1.Close(fd1))
	assert.False(t, liveFDs.Contains(fd1))
}

func TestFramedRoundTrip(t *testing.T) {
	mgr, col := testManager(t, 1)

	ports := dynaport.Get(1)
	addr := fmt.Sprintf("127.0.0.1:%d", ports[0])
	_, err := mgr.Listen(addr, message.PTypeSocket, 10)
	require.NoError(t, err)

	clientFD, err := mgr.Connect(addr, message.PTypeSocket, 20, time.Second)
	require.NoError(t, err)

	col.next(t, message.SubtypeAccept)
	col.next(t, message.SubtypeConnect)

	payload := buffer.FromString("hello framed world")
	payload.SetFlag(buffer.FlagFraming)
	require.NoError(t, mgr.Send(clientFD, payload))

	got := col.next(t, message.SubtypeMessage)
	assert.Equal(t, "hello framed world", got.Text())
}

func TestChunkedLargeFrame(t *testing.T) {
	mgr, col := testManager(t, 2)

	ports := dynaport.Get(1)
	addr := fmt.Sprintf("127.0.0.1:%d", ports[0])
	_, err := mgr.Listen(addr, message.PTypeSocket, 10)
	require.NoError(t, err)

	clientFD, err := mgr.Connect(addr, message.PTypeSocket, 20, time.Second)
	require.NoError(t, err)

	accept := col.next(t, message.SubtypeAccept)
	serverFD := accept.Sender
	col.next(t, message.SubtypeConnect)

	require.NoError(t, mgr.SetEnableChunked(clientFD, "w"))
	require.NoError(t, mgr.SetEnableChunked(serverFD, "r"))

	payload := make([]byte, 1_000_000)
	for i := range payload {
		payload[i] = byte(i * 31)
	}
	buf := buffer.From(payload)
	buf.SetFlag(buffer.FlagFraming)
	require.NoError(t, mgr.Send(clientFD, buf))

	got := col.next(t, message.SubtypeMessage)
	require.Equal(t, len(payload), got.Buffer.Len(), "one logical message")
	assert.True(t, bytes.Equal(payload, got.Payload()))
}

func TestUnchunkedLargeFrameRejected(t *testing.T) {
	mgr, col := testManager(t, 3)

	ports := dynaport.Get(1)
	addr := fmt.Sprintf("127.0.0.1:%d", ports[0])
	_, err := mgr.Listen(addr, message.PTypeSocket, 10)
	require.NoError(t, err)
	clientFD, err := mgr.Connect(addr, message.PTypeSocket, 20, time.Second)
	require.NoError(t, err)
	col.next(t, message.SubtypeConnect)

	big := buffer.From(make([]byte, maxUnchunkedFrame+1))
	big.SetFlag(buffer.FlagFraming)
	require.NoError(t, mgr.Send(clientFD, big))

	errEvent := col.next(t, message.SubtypeError)
	assert.Contains(t, errEvent.Text(), LogicFrameTooLarge.String())
	col.next(t, message.SubtypeClose)
}

func TestSendQueueOverflow(t *testing.T) {
	col := newCollector()
	mgr := NewManager(4, col.deliver, log.DiscardLogger)
	mgr.MaxSendQueueSize = 4
	mgr.WarnSendQueueSize = 2
	t.Cleanup(mgr.Shutdown)

	// a pipe peer that never reads keeps the first write in flight
	client, server := net.Pipe()
	defer server.Close()
	fd, err := mgr.adoptFD(client, nil, message.PTypeSocket, 30, false)
	require.NoError(t, err)
	col.next(t, message.SubtypeConnect)

	var sendErr error
	for i := range 5 {
		buf := buffer.FromString(fmt.Sprintf("chunk-%d", i))
		if err := mgr.Send(fd, buf); err != nil {
			sendErr = err
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.ErrorIs(t, sendErr, errors.ErrSendQueueOverflow)

	errEvent := col.next(t, message.SubtypeError)
	assert.Contains(t, errEvent.Text(), LogicSendQueueOverflow.String())
	col.next(t, message.SubtypeClose)
}

func TestTextReadDelimAndSize(t *testing.T) {
	mgr, col := testManager(t, 5)

	ports := dynaport.Get(1)
	addr := fmt.Sprintf("127.0.0.1:%d", ports[0])
	_, err := mgr.Listen(addr, message.PTypeText, 10)
	require.NoError(t, err)

	peer, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer peer.Close()

	accept := col.next(t, message.SubtypeAccept)
	serverFD := accept.Sender

	_, err = peer.Write([]byte("GET / HTTP/1.0\r\nrest"))
	require.NoError(t, err)

	require.NoError(t, mgr.Read(serverFD, ReadRequest{Session: 7}))
	line := col.next(t, message.SubtypeMessage)
	assert.Equal(t, "GET / HTTP/1.0", line.Text())
	assert.EqualValues(t, 7, line.Session)

	require.NoError(t, mgr.Read(serverFD, ReadRequest{Size: 4, Session: 8}))
	exact := col.next(t, message.SubtypeMessage)
	assert.Equal(t, "rest", exact.Text())
}

func TestDoubleReadRejected(t *testing.T) {
	mgr, col := testManager(t, 6)

	ports := dynaport.Get(1)
	addr := fmt.Sprintf("127.0.0.1:%d", ports[0])
	_, err := mgr.Listen(addr, message.PTypeText, 10)
	require.NoError(t, err)

	peer, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer peer.Close()

	accept := col.next(t, message.SubtypeAccept)
	serverFD := accept.Sender

	require.NoError(t, mgr.Read(serverFD, ReadRequest{Size: 4, Session: 1}))
	err = mgr.Read(serverFD, ReadRequest{Size: 4, Session: 2})
	assert.ErrorIs(t, err, errors.ErrReadPending)
}

func TestCloseDeliversErrorThenClose(t *testing.T) {
	mgr, col := testManager(t, 8)

	ports := dynaport.Get(1)
	addr := fmt.Sprintf("127.0.0.1:%d", ports[0])
	_, err := mgr.Listen(addr, message.PTypeSocket, 10)
	require.NoError(t, err)
	clientFD, err := mgr.Connect(addr, message.PTypeSocket, 20, time.Second)
	require.NoError(t, err)
	col.next(t, message.SubtypeConnect)

	require.NoError(t, mgr.Close(clientFD))
	col.next(t, message.SubtypeError)
	col.next(t, message.SubtypeClose)
	assert.False(t, liveFDs.Contains(clientFD))
}
