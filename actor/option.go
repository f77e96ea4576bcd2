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

import "github.com/threadloom/loom/log"

// Option configures a Server.
type Option interface {
	// Apply sets the Option value of a Server.
	Apply(*Server)
}

var _ Option = OptionFunc(nil)

// OptionFunc is a function-shaped Option.
type OptionFunc func(*Server)

// Apply applies the option.
func (f OptionFunc) Apply(s *Server) { f(s) }

// WithLogger sets the server logger.
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(s *Server) {
		s.logger = logger
	})
}

// WithWorkers sets the worker pool size, overriding the config.
func WithWorkers(n int) Option {
	return OptionFunc(func(s *Server) {
		if n > 0 {
			s.cfg.Thread = n
		}
	})
}

// WithConfig sets the node configuration.
func WithConfig(cfg *ServerConfig) Option {
	return OptionFunc(func(s *Server) {
		s.cfg = cfg
	})
}
