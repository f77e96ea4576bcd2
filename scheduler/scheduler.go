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

// Package scheduler delivers messages to services on cron schedules. It
// rides on quartz, so expressions use the six-field cron syntax with
// seconds.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/atomic"

	"github.com/threadloom/loom/actor"
	"github.com/threadloom/loom/buffer"
	"github.com/threadloom/loom/log"
)

// Scheduler schedules message deliveries through a router.
type Scheduler struct {
	mu        sync.Mutex
	scheduler quartz.Scheduler
	router    *actor.Router
	started   *atomic.Bool
	logger    log.Logger
	seq       atomic.Uint64
}

// New creates a scheduler bound to the given router.
func New(router *actor.Router, logger log.Logger) *Scheduler {
	return &Scheduler{
		scheduler: quartz.NewStdScheduler(),
		router:    router,
		started:   atomic.NewBool(false),
		logger:    logger,
	}
}

// Start launches the quartz workers.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler.Start(ctx)
	s.started.Store(s.scheduler.IsStarted())
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler.Stop()
	s.scheduler.Wait(ctx)
	s.started.Store(false)
}

// Schedule registers a cron delivery: every firing sends payload to the
// service with the given ptype and header. The returned key cancels it.
func (s *Scheduler) Schedule(cronExpression string, to actor.ServiceID, ptype uint8, header string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started.Load() {
		return "", fmt.Errorf("message scheduler is not started")
	}

	trigger, err := quartz.NewCronTrigger(cronExpression)
	if err != nil {
		return "", fmt.Errorf("bad cron expression %q: %w", cronExpression, err)
	}

	key := fmt.Sprintf("loom-%d-%d", to, s.seq.Inc())
	fj := job.NewFunctionJob(func(context.Context) (bool, error) {
		var buf *buffer.Buffer
		if len(payload) > 0 {
			buf = buffer.From(payload)
		}
		if !s.router.Send(0, to, header, 0, ptype, buf) {
			s.logger.Warnf("scheduler: delivery to %d failed", to)
		}
		return true, nil
	})

	detail := quartz.NewJobDetail(fj, quartz.NewJobKey(key))
	if err := s.scheduler.ScheduleJob(detail, trigger); err != nil {
		return "", err
	}
	return key, nil
}

// Cancel removes a scheduled delivery by its key.
func (s *Scheduler) Cancel(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduler.DeleteJob(quartz.NewJobKey(key))
}
