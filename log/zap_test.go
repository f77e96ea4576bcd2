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

package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebug(t *testing.T) {
	buffer := new(bytes.Buffer)
	logger := NewZap(DebugLevel, buffer)
	logger.Debug("test debug")
	require.NoError(t, logger.Flush())
	lines := buffer.String()
	assert.Contains(t, lines, "test debug")
	assert.Contains(t, lines, "DEBUG")
	assert.Equal(t, DebugLevel, logger.LogLevel())
}

func TestInfo(t *testing.T) {
	buffer := new(bytes.Buffer)
	logger := NewZap(InfoLevel, buffer)
	logger.Infof("hello %s", "world")
	require.NoError(t, logger.Flush())
	assert.Contains(t, buffer.String(), "hello world")
	assert.Contains(t, buffer.String(), "INFO")
}

func TestLevelFiltering(t *testing.T) {
	buffer := new(bytes.Buffer)
	logger := NewZap(ErrorLevel, buffer)
	logger.Info("not seen")
	logger.Error("seen")
	require.NoError(t, logger.Flush())
	assert.NotContains(t, buffer.String(), "not seen")
	assert.Contains(t, buffer.String(), "seen")
}

func TestWarn(t *testing.T) {
	buffer := new(bytes.Buffer)
	logger := NewZap(WarningLevel, buffer)
	logger.Warnf("queue size %d", 42)
	require.NoError(t, logger.Flush())
	assert.Contains(t, buffer.String(), "queue size 42")
	assert.Contains(t, buffer.String(), "WARN")
}

func TestDiscard(t *testing.T) {
	logger := DiscardLogger
	logger.Info("dropped")
	logger.Errorf("dropped %d", 1)
	assert.Equal(t, InvalidLevel, logger.LogLevel())
	assert.Nil(t, logger.LogOutput())
	assert.NoError(t, logger.Flush())
}

func TestLevelString(t *testing.T) {
	cases := map[Level]string{
		InfoLevel:    "info",
		WarningLevel: "warning",
		ErrorLevel:   "error",
		FatalLevel:   "fatal",
		DebugLevel:   "debug",
		InvalidLevel: "",
	}
	for level, want := range cases {
		assert.Equal(t, want, level.String())
	}
}

func TestMultipleWriters(t *testing.T) {
	first := new(bytes.Buffer)
	second := new(strings.Builder)
	logger := NewZap(InfoLevel, first, second)
	logger.Info("fan out")
	require.NoError(t, logger.Flush())
	assert.Contains(t, first.String(), "fan out")
	assert.Contains(t, second.String(), "fan out")
}
