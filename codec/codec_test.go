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

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripNested(t *testing.T) {
	original := map[string]any{
		"name":  "loom",
		"count": int64(3),
		"ratio": 0.5,
		"ok":    true,
		"none":  nil,
		"list":  []any{"a", int64(1), false},
		"inner": map[string]any{
			"deep": []any{map[string]any{"x": int64(42)}},
		},
	}

	buf, err := Pack(original)
	require.NoError(t, err)
	defer buf.Release()

	vals, err := Unpack(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, original, vals[0])
}

func TestMultiValueStream(t *testing.T) {
	buf, err := Pack("ping", int64(7), true)
	require.NoError(t, err)
	defer buf.Release()

	vals, err := Unpack(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, "ping", vals[0])
	assert.Equal(t, int64(7), vals[1])
	assert.Equal(t, true, vals[2])
}

func TestUnpackEmpty(t *testing.T) {
	vals, err := Unpack(nil)
	require.NoError(t, err)
	assert.Nil(t, vals)
}

type echoRequest struct {
	Text    string
	Attempt int64
}

func TestTypedTarget(t *testing.T) {
	buf, err := Pack(echoRequest{Text: "hello", Attempt: 2})
	require.NoError(t, err)
	defer buf.Release()

	var decoded echoRequest
	require.NoError(t, UnpackInto(buf.Bytes(), &decoded))
	assert.Equal(t, echoRequest{Text: "hello", Attempt: 2}, decoded)
}
