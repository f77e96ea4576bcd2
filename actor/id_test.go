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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceIDRouting(t *testing.T) {
	for _, worker := range []uint8{1, 2, 17, 255} {
		for _, seq := range []uint32{1, 42, seqMask} {
			id := MakeServiceID(worker, seq)
			assert.Equal(t, worker, id.WorkerID())
			assert.Equal(t, seq, id.Seq())
		}
	}
}

func TestServiceIDSeqMasked(t *testing.T) {
	id := MakeServiceID(3, seqMask+5)
	assert.Equal(t, uint8(3), id.WorkerID())
	assert.Equal(t, uint32(4), id.Seq())
}

func TestZeroID(t *testing.T) {
	assert.True(t, ServiceID(0).IsZero())
	assert.False(t, MakeServiceID(1, 1).IsZero())
}
