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

// Package codec packs and unpacks the structured payloads carried on
// PTypeData messages. Values round-trip through msgpack: what one service
// packs, the peer unpacks structurally equal.
package codec

import (
	"bytes"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/threadloom/loom/buffer"
)

// encoders are scratch buffers for packing; payloads are copied out into a
// runtime buffer before the scratch returns to the pool.
var scratchPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

func getScratch() *bytes.Buffer { return scratchPool.Get().(*bytes.Buffer) }

func putScratch(b *bytes.Buffer) {
	b.Reset()
	scratchPool.Put(b)
}

// Pack encodes vals as a msgpack stream into a fresh buffer.
func Pack(vals ...any) (*buffer.Buffer, error) {
	scratch := getScratch()
	defer putScratch(scratch)

	enc := msgpack.NewEncoder(scratch)
	for _, v := range vals {
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
	}
	return buffer.From(scratch.Bytes()), nil
}

// PackInto encodes vals as a msgpack stream appended to dst.
func PackInto(dst *buffer.Buffer, vals ...any) error {
	scratch := getScratch()
	defer putScratch(scratch)

	enc := msgpack.NewEncoder(scratch)
	for _, v := range vals {
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	dst.Write(scratch.Bytes())
	return nil
}

// Unpack decodes every value of a msgpack stream. Signed integers come back
// as int64 and unsigned ones as uint64, floats as float64, maps with string
// keys as map[string]any.
func Unpack(p []byte) ([]any, error) {
	if len(p) == 0 {
		return nil, nil
	}
	dec := msgpack.NewDecoder(bytes.NewReader(p))
	var out []any
	for {
		v, err := dec.DecodeInterfaceLoose()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// UnpackInto decodes the first value of the stream into target, which must
// be a pointer.
func UnpackInto(p []byte, target any) error {
	return msgpack.NewDecoder(bytes.NewReader(p)).Decode(target)
}
