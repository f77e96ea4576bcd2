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

// Package metric exposes the runtime's observability counters through
// prometheus. Collectors register on a package registry so embedding
// applications can mount Handler next to their own endpoints.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// Services tracks live services per worker.
	Services = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "loom",
		Name:      "services",
		Help:      "Live services per worker.",
	}, []string{"worker"})

	// MailboxDepth tracks the pending messages of each worker's mailbox,
	// sampled once per loop iteration.
	MailboxDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "loom",
		Name:      "mailbox_depth",
		Help:      "Pending messages per worker mailbox.",
	}, []string{"worker"})

	// DispatchTotal counts dispatched messages.
	DispatchTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loom",
		Name:      "dispatch_total",
		Help:      "Messages dispatched to services.",
	})

	// Connections tracks live socket connections per worker.
	Connections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "loom",
		Name:      "connections",
		Help:      "Live connections per worker.",
	}, []string{"worker"})

	// SendQueueOverflows counts connections closed for exceeding the hard
	// send queue limit.
	SendQueueOverflows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loom",
		Name:      "send_queue_overflows_total",
		Help:      "Connections closed on send queue overflow.",
	})

	// DispatchCPU accumulates nanoseconds spent in dispatch callbacks.
	DispatchCPU = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loom",
		Name:      "dispatch_cpu_ns_total",
		Help:      "Nanoseconds spent in service dispatch callbacks.",
	}, []string{"worker"})
)

func init() {
	registry.MustRegister(
		Services,
		MailboxDepth,
		DispatchTotal,
		Connections,
		SendQueueOverflows,
		DispatchCPU,
		collectors.NewGoCollector(),
	)
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
