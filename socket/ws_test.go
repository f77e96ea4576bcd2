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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dynaport "github.com/travisjeffery/go-dynaport"

	"github.com/threadloom/loom/buffer"
	"github.com/threadloom/loom/message"
)

func TestWebSocketRoundTrip(t *testing.T) {
	mgr, col := testManager(t, 9)

	ports := dynaport.Get(1)
	addr := fmt.Sprintf("127.0.0.1:%d", ports[0])
	_, err := mgr.Listen(addr, message.PTypeWS, 10)
	require.NoError(t, err)

	clientFD, err := mgr.Connect(addr, message.PTypeWS, 20, 2*time.Second)
	require.NoError(t, err)

	accept := col.next(t, message.SubtypeAccept)
	serverFD := accept.Sender
	col.next(t, message.SubtypeConnect)
	require.Equal(t, uint8(message.PTypeWS), accept.Type)

	// client → server text frame
	hello := buffer.FromString("hello ws")
	hello.SetFlag(buffer.FlagWSText)
	require.NoError(t, mgr.Send(clientFD, hello))

	got := col.next(t, message.SubtypeMessage)
	assert.Equal(t, "hello ws", got.Text())
	assert.True(t, got.Buffer.HasFlag(buffer.FlagWSText))

	// server → client binary frame
	raw := buffer.From([]byte{0x01, 0x02, 0x03})
	require.NoError(t, mgr.Send(serverFD, raw))
	back := col.next(t, message.SubtypeMessage)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, back.Payload())
	assert.False(t, back.Buffer.HasFlag(buffer.FlagWSText))
}

func TestWebSocketPing(t *testing.T) {
	mgr, col := testManager(t, 11)

	ports := dynaport.Get(1)
	addr := fmt.Sprintf("127.0.0.1:%d", ports[0])
	_, err := mgr.Listen(addr, message.PTypeWS, 10)
	require.NoError(t, err)

	clientFD, err := mgr.Connect(addr, message.PTypeWS, 20, 2*time.Second)
	require.NoError(t, err)
	col.next(t, message.SubtypeConnect)

	ping := buffer.FromString("beat")
	ping.SetFlag(buffer.FlagWSPing)
	require.NoError(t, mgr.Send(clientFD, ping))

	// the peer surfaces the ping and answers; the client surfaces the pong
	got := col.next(t, message.SubtypePing)
	assert.Equal(t, "beat", got.Text())
	pong := col.next(t, message.SubtypePong)
	assert.Equal(t, "beat", pong.Text())
}
