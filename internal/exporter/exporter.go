// Package exporter publishes the most recent sample as Prometheus metrics.
package exporter

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"codeberg.org/mutker/perfcollector/internal/errors"
	"codeberg.org/mutker/perfcollector/internal/logger"
	"codeberg.org/mutker/perfcollector/internal/sampler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace       = "perfcollector"
	metricsPath     = "/metrics"
	shutdownTimeout = 5 * time.Second
	readTimeout     = 10 * time.Second
)

const (
	ErrListen   = errors.ErrorCode("exporter_listen_failed")
	ErrShutdown = errors.ErrorCode("exporter_shutdown_failed")
)

// Collector implements prometheus.Collector over the latest sample.
type Collector struct {
	mu      sync.RWMutex
	latest  sampler.Sample
	samples uint64
	seen    bool

	cyclesDesc       *prometheus.Desc
	instructionsDesc *prometheus.Desc
	cacheMissesDesc  *prometheus.Desc
	branchMissesDesc *prometheus.Desc
	cpiDesc          *prometheus.Desc
	timestampDesc    *prometheus.Desc
	degradedDesc     *prometheus.Desc
	samplesDesc      *prometheus.Desc
}

func NewCollector() *Collector {
	return &Collector{
		cyclesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "cycles"),
			"CPU cycles counted since sampling started, user space only.",
			nil, nil),
		instructionsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "instructions"),
			"Instructions retired since sampling started, user space only.",
			nil, nil),
		cacheMissesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "cache_misses"),
			"Cache misses since sampling started.",
			nil, nil),
		branchMissesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "branch_misses"),
			"Mispredicted branches since sampling started.",
			nil, nil),
		cpiDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "cpi"),
			"Cycles per instruction of the latest sample, 0 when no instruction retired.",
			nil, nil),
		timestampDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sample_timestamp_seconds"),
			"Wall clock time of the latest sample.",
			nil, nil),
		degradedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "counter_degraded"),
			"1 when the counter could not be read in the latest sample.",
			[]string{"counter"}, nil),
		samplesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "samples_total"),
			"Samples taken since start.",
			nil, nil),
	}
}

// Describe implements the prometheus.Collector interface
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cyclesDesc
	ch <- c.instructionsDesc
	ch <- c.cacheMissesDesc
	ch <- c.branchMissesDesc
	ch <- c.cpiDesc
	ch <- c.timestampDesc
	ch <- c.degradedDesc
	ch <- c.samplesDesc
}

// Collect implements the prometheus.Collector interface
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ch <- prometheus.MustNewConstMetric(c.samplesDesc, prometheus.CounterValue, float64(c.samples))

	// Nothing to report before the first sample
	if !c.seen {
		return
	}

	s := c.latest
	ch <- prometheus.MustNewConstMetric(c.cyclesDesc, prometheus.CounterValue, float64(s.Cycles))
	ch <- prometheus.MustNewConstMetric(c.instructionsDesc, prometheus.CounterValue, float64(s.Instructions))
	ch <- prometheus.MustNewConstMetric(c.cacheMissesDesc, prometheus.CounterValue, float64(s.CacheMisses))
	ch <- prometheus.MustNewConstMetric(c.branchMissesDesc, prometheus.CounterValue, float64(s.BranchMisses))
	ch <- prometheus.MustNewConstMetric(c.cpiDesc, prometheus.GaugeValue, s.CPI)
	ch <- prometheus.MustNewConstMetric(c.timestampDesc, prometheus.GaugeValue,
		float64(s.Timestamp.UnixNano())/float64(time.Second))

	for _, name := range s.Degraded {
		ch <- prometheus.MustNewConstMetric(c.degradedDesc, prometheus.GaugeValue, 1, name)
	}
}

// Observe replaces the latest sample.
func (c *Collector) Observe(s sampler.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latest = s
	c.samples++
	c.seen = true
}

// Exporter is a sampler.Sink serving the latest sample over HTTP.
type Exporter struct {
	collector *Collector
	registry  *prometheus.Registry
	addr      string
	listener  net.Listener
	server    *http.Server
	done      chan struct{}
	log       logger.Logger
}

func New(addr string, log logger.Logger) *Exporter {
	collector := NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	return &Exporter{
		collector: collector,
		registry:  registry,
		addr:      addr,
		log:       log,
	}
}

// Start binds the listen address and serves metrics in the background.
func (e *Exporter) Start() error {
	ln, err := net.Listen("tcp", e.addr)
	if err != nil {
		return errors.New().Wrap(ErrListen, err).WithData(e.addr)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))

	e.listener = ln
	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readTimeout,
	}
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	e.log.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")

	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (e *Exporter) Addr() string {
	if e.listener != nil {
		return e.listener.Addr().String()
	}
	return e.addr
}

func (e *Exporter) Collector() *Collector {
	return e.collector
}

func (*Exporter) WriteHeader() error {
	return nil
}

func (e *Exporter) Write(_ context.Context, s sampler.Sample) error {
	e.collector.Observe(s)
	return nil
}

// Close shuts the server down; it is a no-op if Start was not called.
func (e *Exporter) Close() error {
	if e.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := e.server.Shutdown(ctx)
	<-e.done
	e.server = nil
	if err != nil {
		return errors.New().Wrap(ErrShutdown, err)
	}

	return nil
}
