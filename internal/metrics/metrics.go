package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dispatchboard"

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Collector records remote calls and watcher runs.
//
// Collector owns its registry so several instances (e.g. in tests) never
// collide on metric names.
type Collector struct {
	registry *prometheus.Registry

	remoteCalls    *prometheus.CounterVec
	remoteLatency  *prometheus.HistogramVec
	watcherRuns    *prometheus.CounterVec
	watcherLatency *prometheus.HistogramVec
}

// New creates a [Collector] with Go runtime and process collectors
// registered alongside the store metrics.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Remote data source calls by operation, collection and result.",
		}, []string{"operation", "collection", "result"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Remote data source call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "collection"}),
		watcherRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_runs_total",
			Help:      "Watcher executions by watcher and result.",
		}, []string{"watcher", "result"}),
		watcherLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "watcher_duration_seconds",
			Help:      "Watcher execution time.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}, []string{"watcher"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.remoteCalls,
		c.remoteLatency,
		c.watcherRuns,
		c.watcherLatency,
	)
	return c
}

// ObserveLoad records a collection load.
func (c *Collector) ObserveLoad(collection string, d time.Duration, err error) {
	c.observeRemote("load", collection, d, err)
}

// ObservePersist records a mutation persist.
func (c *Collector) ObservePersist(collection string, d time.Duration, err error) {
	c.observeRemote("persist", collection, d, err)
}

// WatcherRan records a watcher execution.
func (c *Collector) WatcherRan(name string, d time.Duration, err error) {
	c.watcherRuns.WithLabelValues(name, result(err)).Inc()
	c.watcherLatency.WithLabelValues(name).Observe(d.Seconds())
}

// Registry returns the registry holding every metric of the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) observeRemote(op, collection string, d time.Duration, err error) {
	c.remoteCalls.WithLabelValues(op, collection, result(err)).Inc()
	c.remoteLatency.WithLabelValues(op, collection).Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}
