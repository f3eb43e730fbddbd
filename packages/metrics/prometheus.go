// Package metrics exposes multipart production counters in Prometheus format.
package metrics

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels how a production ended
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeStopped Outcome = "stopped"
)

// Collector records production activity. A nil *Collector is valid and
// records nothing.
type Collector struct {
	started  prometheus.Counter
	finished *prometheus.CounterVec
	fields   *prometheus.CounterVec
	bytes    prometheus.Counter
	gatherer prometheus.Gatherer

	mu     sync.Mutex
	server *http.Server
}

// NewCollector creates a collector registered on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c, err := NewCollectorWith(reg, reg)
	if err != nil {
		// A fresh registry cannot hold conflicting collectors
		panic(err)
	}
	return c
}

// NewCollectorWith registers the collector's metrics on reg and serves
// them from g.
func NewCollectorWith(reg prometheus.Registerer, g prometheus.Gatherer) (*Collector, error) {
	c := &Collector{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formstream",
			Name:      "productions_started_total",
			Help:      "Multipart productions started.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formstream",
			Name:      "productions_finished_total",
			Help:      "Multipart productions finished, by outcome.",
		}, []string{"outcome"}),
		fields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formstream",
			Name:      "fields_encoded_total",
			Help:      "Fields fully written, by kind.",
		}, []string{"kind"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formstream",
			Name:      "bytes_written_total",
			Help:      "Body bytes written to consumers.",
		}),
		gatherer: g,
	}

	for _, m := range []prometheus.Collector{c.started, c.finished, c.fields, c.bytes} {
		if err := reg.Register(m); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return c, nil
}

// ProductionStarted counts a new production run
func (c *Collector) ProductionStarted() {
	if c == nil {
		return
	}
	c.started.Inc()
}

// ProductionFinished counts a run that ended with outcome
func (c *Collector) ProductionFinished(outcome Outcome) {
	if c == nil {
		return
	}
	c.finished.WithLabelValues(string(outcome)).Inc()
}

// FieldsEncoded counts fields written by a successful run
func (c *Collector) FieldsEncoded(scalars, attachments int) {
	if c == nil {
		return
	}
	c.fields.WithLabelValues("scalar").Add(float64(scalars))
	c.fields.WithLabelValues("attachment").Add(float64(attachments))
}

// BytesWritten adds n body bytes
func (c *Collector) BytesWritten(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.bytes.Add(float64(n))
}

// Handler serves the collected metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Serve binds addr and serves /metrics on it in the background. Bind
// failures are returned; errors after that are passed to onError. Close
// shuts the server down.
func (c *Collector) Serve(addr string, onError func(error)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:    ln.Addr().String(),
		Handler: mux,
	}

	c.mu.Lock()
	c.server = server
	c.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed && onError != nil {
			onError(fmt.Errorf("metrics server: %w", err))
		}
	}()
	return nil
}

// Addr returns the address the metrics server listens on, or "" before
// Serve.
func (c *Collector) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server == nil {
		return ""
	}
	return c.server.Addr
}

// Close shuts down the metrics server, if any
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server != nil {
		return c.server.Close()
	}
	return nil
}
