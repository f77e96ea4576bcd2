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

package message

// Protocol types tag the wire format of a message payload. The numeric
// values are part of the wire contract and never reassigned.
const (
	// PTypeSystem carries runtime control traffic (exit notifications,
	// service lifecycle).
	PTypeSystem uint8 = 1
	// PTypeText carries raw text payloads and delimiter-framed socket data.
	PTypeText uint8 = 2
	// PTypeData carries arbitrary structured payloads packed with the codec
	// package.
	PTypeData uint8 = 3
	// PTypeSocket carries length-prefixed socket traffic and socket
	// lifecycle events.
	PTypeSocket uint8 = 4
	// PTypeError carries an error reply for a failed request.
	PTypeError uint8 = 5
	// PTypeWS carries websocket frames and websocket lifecycle events.
	PTypeWS uint8 = 6
	// PTypeDebug carries the text admin channel.
	PTypeDebug uint8 = 7
)

// Socket event subtypes, delivered on PTypeSocket and PTypeWS messages.
const (
	SubtypeNone uint8 = iota
	// SubtypeConnect reports an outbound connection became open.
	SubtypeConnect
	// SubtypeAccept reports an inbound connection became open.
	SubtypeAccept
	// SubtypeMessage carries one framed payload.
	SubtypeMessage
	// SubtypeClose reports the connection is gone. Always the last event.
	SubtypeClose
	// SubtypeError reports a socket or logic error. Followed by
	// SubtypeClose.
	SubtypeError
	// SubtypePing carries a websocket ping.
	SubtypePing
	// SubtypePong carries a websocket pong.
	SubtypePong
)
