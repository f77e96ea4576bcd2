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
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/threadloom/loom/log"
)

type serverState int32

const (
	stateCreated serverState = iota
	stateRunning
	stateStopping
	stateStopped
)

// Server is the top-level lifecycle: it spawns the worker pool, constructs
// the statically configured services, handles stop signals and joins the
// workers on shutdown.
type Server struct {
	cfg        *ServerConfig
	router     *Router
	workers    []*worker
	logger     log.Logger
	instanceID string
	state      atomic.Int32
}

// NewServer builds a server from options. Without WithConfig a default
// single-node config with the hardware worker count is used.
func NewServer(opts ...Option) *Server {
	s := &Server{
		cfg:        &ServerConfig{Name: "loom"},
		logger:     log.DefaultLogger,
		instanceID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt.Apply(s)
	}
	s.cfg.applyDefaults()
	s.router = newRouter(s.logger)
	s.router.onUniqueExit = s.uniqueExited
	return s
}

// Router exposes the process directory.
func (s *Server) Router() *Router { return s.router }

// InstanceID returns the unique id of this server instance.
func (s *Server) InstanceID() string { return s.instanceID }

// Start spawns the workers and constructs the configured services. The
// Start hooks of the initial batch run only after every service in the
// batch finished construction, so their unique names are resolvable from
// any Start hook.
func (s *Server) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(stateCreated), int32(stateRunning)) {
		return fmt.Errorf("server already started")
	}

	s.workers = make([]*worker, s.cfg.Thread)
	for i := range s.workers {
		s.workers[i] = newWorker(uint8(i+1), s.router, s.logger)
	}
	s.router.workers = s.workers
	for _, w := range s.workers {
		go w.run()
	}

	created := make([]ServiceID, 0, len(s.cfg.Services))
	for i := range s.cfg.Services {
		cfg := &s.cfg.Services[i]
		id, err := s.router.Spawn(cfg, 0)
		if err != nil {
			s.logger.Errorf("server %s: bootstrap of %q failed: %v", s.cfg.Name, cfg.Name, err)
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = s.Stop(stopCtx)
			return err
		}
		created = append(created, id)
	}

	// the whole batch constructed; run the Start hooks
	for _, id := range created {
		if w, ok := s.router.worker(id.WorkerID()); ok {
			id := id
			w.post(func() { w.startService(id) })
		}
	}

	s.logger.Infof("server %s (sid %d, instance %s) running with %d workers, %d services",
		s.cfg.Name, s.cfg.Sid, s.instanceID, len(s.workers), len(created))
	return nil
}

// Stop transitions to stopping, asks every service to exit and joins the
// workers. Each worker exits once its service table drained.
func (s *Server) Stop(ctx context.Context) error {
	prev := s.state.Swap(int32(stateStopping))
	if serverState(prev) == stateStopped {
		return nil
	}

	for _, w := range s.workers {
		w.requestStop()
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		w := w
		eg.Go(func() error {
			select {
			case <-w.done:
				return nil
			case <-egCtx.Done():
				return fmt.Errorf("worker %d did not drain: %w", w.id, egCtx.Err())
			}
		})
	}
	err := eg.Wait()
	s.state.Store(int32(stateStopped))
	if flushErr := s.logger.Flush(); err == nil {
		err = flushErr
	}
	return err
}

// Run starts the server and blocks until a SIGINT/SIGTERM or context
// cancellation, then stops gracefully. A nil return maps to exit code 0.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Infof("server %s: received %s, stopping", s.cfg.Name, sig)
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Stop(stopCtx)
}

// Stopping reports whether the server is shutting down.
func (s *Server) Stopping() bool {
	return serverState(s.state.Load()) >= stateStopping
}

// uniqueExited escalates the departure of a unique service: the node's
// infrastructure is gone, so the server transitions to stopping.
func (s *Server) uniqueExited(id ServiceID) {
	if !s.state.CompareAndSwap(int32(stateRunning), int32(stateStopping)) {
		return
	}
	s.logger.Warnf("server %s: unique service %d exited, stopping node", s.cfg.Name, id)
	for _, w := range s.workers {
		w.requestStop()
	}
}

// ExpandLogPath fills the #sid and #date placeholders of a log path
// template.
func ExpandLogPath(template string, sid uint16) string {
	out := strings.ReplaceAll(template, "#sid", fmt.Sprintf("%d", sid))
	return strings.ReplaceAll(out, "#date", time.Now().Format("20060102"))
}
