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

	"github.com/threadloom/loom/buffer"
	"github.com/threadloom/loom/codec"
	"github.com/threadloom/loom/errors"
	"github.com/threadloom/loom/message"
)

// Protocol describes how one wire type is packed, unpacked and dispatched
// for a service. Registration is done at runtime but fully typed.
type Protocol struct {
	Name  string
	PType uint8
	// Pack encodes call arguments into a payload buffer.
	Pack func(vals ...any) (*buffer.Buffer, error)
	// Unpack decodes a payload. When set, CallData unpacks replies of this
	// type with it after the suspended coroutine resumes; Call returns the
	// raw reply.
	Unpack func(p []byte) ([]any, error)
	// Dispatch handles an incoming non-reply message. When nil the message
	// goes to the service's Receive.
	Dispatch func(ctx *Context, m *message.Message)
}

// protocols is a service's registry keyed both by numeric type and name.
type protocols struct {
	byType map[uint8]*Protocol
	byName map[string]*Protocol
}

func newProtocols() *protocols {
	p := &protocols{
		byType: make(map[uint8]*Protocol),
		byName: make(map[string]*Protocol),
	}
	// Built-in wire types. Services may re-register any of them to change
	// packing or dispatch.
	p.register(&Protocol{Name: "system", PType: message.PTypeSystem})
	p.register(&Protocol{Name: "text", PType: message.PTypeText,
		Pack: func(vals ...any) (*buffer.Buffer, error) {
			b := buffer.New()
			for _, v := range vals {
				b.WriteString(fmt.Sprint(v))
			}
			return b, nil
		},
	})
	p.register(&Protocol{Name: "data", PType: message.PTypeData,
		Pack:   codec.Pack,
		Unpack: codec.Unpack,
	})
	p.register(&Protocol{Name: "socket", PType: message.PTypeSocket})
	p.register(&Protocol{Name: "error", PType: message.PTypeError})
	p.register(&Protocol{Name: "ws", PType: message.PTypeWS})
	p.register(&Protocol{Name: "debug", PType: message.PTypeDebug})
	return p
}

func (p *protocols) register(proto *Protocol) {
	p.byType[proto.PType] = proto
	p.byName[proto.Name] = proto
}

func (p *protocols) lookup(ptype uint8) (*Protocol, error) {
	proto, ok := p.byType[ptype]
	if !ok {
		return nil, errors.ErrUnknownPType
	}
	return proto, nil
}

func (p *protocols) lookupName(name string) (*Protocol, error) {
	proto, ok := p.byName[name]
	if !ok {
		return nil, errors.ErrUnknownPType
	}
	return proto, nil
}
