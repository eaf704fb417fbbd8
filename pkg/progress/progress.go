// Package progress implements the periodic progress reporter: a background
// goroutine that prints a human-readable status line at a geometrically
// growing interval, and a Collector that exposes the same counters as
// Prometheus counter metrics for /metrics scraping. Counters tallies
// queued/cached/run/failed actions and served/uncached/cached exports as
// atomics, so any worker can bump them without a shared lock; no other
// package in this module updates them. The terminal printer and its color conventions follow
// cmd/uast/validate.go's direct use of github.com/fatih/color; the
// registerer/collector plumbing follows internal/observability's Prometheus
// wiring (internal/observability/prometheus.go), adapted from an OTel
// metrics bridge to direct prometheus/client_golang instruments since the
// reporter has no OTel meter of its own to attach to.
package progress

import (
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
)

// Counters is the running tally of build activity; every field is an
// atomic, safe to update concurrently.
type Counters struct {
	ActionsQueued   atomic.Int64
	ActionsCached   atomic.Int64
	ActionsRun      atomic.Int64
	ActionsFailed   atomic.Int64
	ExportsServed   atomic.Int64
	ExportsUncached atomic.Int64
	ExportsCached   atomic.Int64
}

// snapshot is an immutable copy of Counters at one instant, used both for
// terminal printing and for deciding whether anything changed since the
// last report.
type snapshot struct {
	actionsQueued, actionsCached, actionsRun, actionsFailed int64
	exportsServed, exportsUncached, exportsCached           int64
}

func (c *Counters) snapshot() snapshot {
	return snapshot{
		actionsQueued:   c.ActionsQueued.Load(),
		actionsCached:   c.ActionsCached.Load(),
		actionsRun:      c.ActionsRun.Load(),
		actionsFailed:   c.ActionsFailed.Load(),
		exportsServed:   c.ExportsServed.Load(),
		exportsUncached: c.ExportsUncached.Load(),
		exportsCached:   c.ExportsCached.Load(),
	}
}

// initialDelay is the first interval between reports; each subsequent
// interval grows by a factor of sqrt(2), capped at maxDelay, so reporting
// is frequent early in a build and settles down for long-running ones.
const (
	initialDelay = 3000 * time.Millisecond
	growthFactor = math.Sqrt2
	maxDelay     = 60 * time.Second
)

// Reporter periodically prints Counters to an io.Writer. It registers
// nothing with Prometheus; see Collector and Register for that.
type Reporter struct {
	counters *Counters
	out      io.Writer
	stop     chan struct{}
	done     chan struct{}
}

// NewReporter constructs a Reporter over counters, printing to out.
func NewReporter(counters *Counters, out io.Writer) *Reporter {
	return &Reporter{
		counters: counters,
		out:      out,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the background reporting goroutine. Stop must be called to
// release it.
func (r *Reporter) Start() {
	go r.run()
}

// Stop signals the reporting goroutine to exit and blocks until it has,
// printing one final report first.
func (r *Reporter) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reporter) run() {
	defer close(r.done)

	delay := initialDelay
	last := snapshot{}

	for {
		select {
		case <-time.After(delay):
			current := r.counters.snapshot()
			if current != last {
				r.print(current)
				last = current
			}

			delay = time.Duration(math.Min(float64(maxDelay), float64(delay)*growthFactor))
		case <-r.stop:
			r.print(r.counters.snapshot())

			return
		}
	}
}

func (r *Reporter) print(s snapshot) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	green.Fprintf(r.out, "actions: ")
	fmt.Fprintf(r.out, "%d queued, ", s.actionsQueued)
	green.Fprintf(r.out, "%d cached, ", s.actionsCached)
	yellow.Fprintf(r.out, "%d run", s.actionsRun)

	if s.actionsFailed > 0 {
		red.Fprintf(r.out, ", %d failed", s.actionsFailed)
	}

	fmt.Fprintf(r.out, " | exports: %d served, %d uncached, %d cached\n",
		s.exportsServed, s.exportsUncached, s.exportsCached)
}

// metricNames is kept alongside the Collector below so the /metrics
// surface and the terminal printer describe the same seven counters.
const (
	metricActionsQueued   = "justbuild_actions_queued_total"
	metricActionsCached   = "justbuild_actions_cached_total"
	metricActionsRun      = "justbuild_actions_run_total"
	metricActionsFailed   = "justbuild_actions_failed_total"
	metricExportsServed   = "justbuild_exports_served_total"
	metricExportsUncached = "justbuild_exports_uncached_total"
	metricExportsCached   = "justbuild_exports_cached_total"
)

// Collector adapts Counters to prometheus.Collector, so the running
// totals can be registered directly on a prometheus.Registerer and scraped
// over /metrics without a separate OTel meter.
type Collector struct {
	counters *Counters
}

// NewCollector wraps counters as a prometheus.Collector.
func NewCollector(counters *Counters) *Collector {
	return &Collector{counters: counters}
}

var _ prometheus.Collector = (*Collector)(nil)

func (c *Collector) descs() map[string]*prometheus.Desc {
	return map[string]*prometheus.Desc{
		metricActionsQueued:   prometheus.NewDesc(metricActionsQueued, "Actions queued for execution.", nil, nil),
		metricActionsCached:   prometheus.NewDesc(metricActionsCached, "Actions satisfied from cache.", nil, nil),
		metricActionsRun:      prometheus.NewDesc(metricActionsRun, "Actions actually executed.", nil, nil),
		metricActionsFailed:   prometheus.NewDesc(metricActionsFailed, "Actions that failed.", nil, nil),
		metricExportsServed:   prometheus.NewDesc(metricExportsServed, "Export targets served from cache write-through.", nil, nil),
		metricExportsUncached: prometheus.NewDesc(metricExportsUncached, "Export targets analysed with no cache hit.", nil, nil),
		metricExportsCached:   prometheus.NewDesc(metricExportsCached, "Export targets that hit the export cache.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs() {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	descs := c.descs()
	s := c.counters.snapshot()

	ch <- prometheus.MustNewConstMetric(descs[metricActionsQueued], prometheus.CounterValue, float64(s.actionsQueued))
	ch <- prometheus.MustNewConstMetric(descs[metricActionsCached], prometheus.CounterValue, float64(s.actionsCached))
	ch <- prometheus.MustNewConstMetric(descs[metricActionsRun], prometheus.CounterValue, float64(s.actionsRun))
	ch <- prometheus.MustNewConstMetric(descs[metricActionsFailed], prometheus.CounterValue, float64(s.actionsFailed))
	ch <- prometheus.MustNewConstMetric(descs[metricExportsServed], prometheus.CounterValue, float64(s.exportsServed))
	ch <- prometheus.MustNewConstMetric(descs[metricExportsUncached], prometheus.CounterValue, float64(s.exportsUncached))
	ch <- prometheus.MustNewConstMetric(descs[metricExportsCached], prometheus.CounterValue, float64(s.exportsCached))
}

// Register adds a Collector for counters to reg.
func Register(reg prometheus.Registerer, counters *Counters) error {
	return reg.Register(NewCollector(counters))
}
