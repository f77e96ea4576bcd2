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

// ServiceID identifies a service. The high 8 bits carry the owning worker
// id, the low 24 bits a per-worker sequence, so resolving a service to its
// worker is a bit extraction with no global table.
type ServiceID uint32

const (
	workerIDShift = 24
	seqMask       = 0x00FFFFFF
	// MaxServicesPerWorker bounds the per-worker sequence space.
	MaxServicesPerWorker = seqMask
)

// MakeServiceID composes a ServiceID from a worker id and a sequence.
func MakeServiceID(worker uint8, seq uint32) ServiceID {
	return ServiceID(uint32(worker)<<workerIDShift | seq&seqMask)
}

// WorkerID returns the owning worker id.
func (id ServiceID) WorkerID() uint8 { return uint8(id >> workerIDShift) }

// Seq returns the per-worker sequence.
func (id ServiceID) Seq() uint32 { return uint32(id) & seqMask }

// IsZero reports whether the id is the zero (unaddressed) id.
func (id ServiceID) IsZero() bool { return id == 0 }
