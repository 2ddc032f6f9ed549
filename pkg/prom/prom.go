package prom

import (
	"sync"

	xhttp "github.com/nimasrn/school-treasury/pkg/http"
	"github.com/nimasrn/school-treasury/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemTreasury = "treasury"
	SystemEvents   = "events"
)

const (
	MetricTransactionsPosted   = "transactions_posted_total"
	MetricAmountPosted         = "amount_posted_total"
	MetricOperationsRejected   = "operations_rejected_total"
	MetricLocationBalance      = "location_balance"
	MetricOpeningDiscrepancy   = "opening_discrepancy_abs"
	MetricOpeningEscalations   = "opening_escalations_total"
	MetricPostingDuration      = "posting_duration_seconds"
	MetricEventsHandled        = "handled_total"
	MetricEventsPublishFailure = "publish_failures_total"
)

const (
	TypeCounter      = "counter"
	TypeCounterVec   = "counterVec"
	TypeHistogram    = "histogram"
	TypeHistogramVec = "histogramVec"
	TypeGaugeVec     = "gaugeVec"
)

type definition struct {
	kind      string
	subsystem string
	name      string
	help      string
	labels    []string
	buckets   []float64
}

// amounts are minor currency units: 1 .. 10M
var amountBuckets = prometheus.ExponentialBuckets(1, 10, 8)

var definitions = []definition{
	{TypeCounterVec, SystemTreasury, MetricTransactionsPosted, "Ledger rows committed.", []string{"type", "direction"}, nil},
	{TypeCounterVec, SystemTreasury, MetricAmountPosted, "Sum of committed amounts in minor units.", []string{"type", "direction"}, nil},
	{TypeCounterVec, SystemTreasury, MetricOperationsRejected, "Treasury operations refused, by reason code.", []string{"operation", "reason"}, nil},
	{TypeGaugeVec, SystemTreasury, MetricLocationBalance, "Balance per cash location after the last commit.", []string{"location"}, nil},
	{TypeHistogram, SystemTreasury, MetricOpeningDiscrepancy, "Absolute counted-vs-expected safe difference at opening.", nil, amountBuckets},
	{TypeCounterVec, SystemTreasury, MetricOpeningEscalations, "Openings escalated by the event processor.", []string{"severity"}, nil},
	{TypeHistogramVec, SystemTreasury, MetricPostingDuration, "Time spent in a mutating operation, retries included.", []string{"operation"}, prometheus.DefBuckets},
	{TypeCounterVec, SystemEvents, MetricEventsHandled, "Ledger events handled by the processor.", []string{"kind", "result"}, nil},
	{TypeCounter, SystemEvents, MetricEventsPublishFailure, "Events that could not be published after commit.", nil, nil},
}

var lockCreateMetricLock = &sync.Mutex{}
var namespace = "none"

var MetricSystemEnabled = false

var MetricCollectionCounters = make(map[string]prometheus.Counter)
var MetricCollectionCounterVec = make(map[string]*prometheus.CounterVec)
var MetricCollectionGaugeVec = make(map[string]*prometheus.GaugeVec)
var MetricCollectionHistogram = make(map[string]prometheus.Histogram)
var MetricCollectionHistogramVec = make(map[string]*prometheus.HistogramVec)

var defaultLabels prometheus.Labels

// Create registers every treasury metric. It is safe to call once per process.
func Create(host string, env string, nameSpace string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()

	defaultLabels = prometheus.Labels{"env": env, "instance": host}
	namespace = nameSpace

	for _, d := range definitions {
		if err := prometheus.Register(build(d)); err != nil {
			return err
		}
	}
	MetricSystemEnabled = true
	return nil
}

// build creates the collector for d and stores it in its collection.
func build(d definition) prometheus.Collector {
	key := d.subsystem + d.name
	opts := prometheus.Opts{
		Namespace:   namespace,
		Subsystem:   d.subsystem,
		Name:        d.name,
		Help:        d.help,
		ConstLabels: defaultLabels,
	}
	histogramOpts := prometheus.HistogramOpts{
		Namespace:   opts.Namespace,
		Subsystem:   opts.Subsystem,
		Name:        opts.Name,
		Help:        opts.Help,
		ConstLabels: opts.ConstLabels,
		Buckets:     d.buckets,
	}

	switch d.kind {
	case TypeCounter:
		c := prometheus.NewCounter(prometheus.CounterOpts(opts))
		MetricCollectionCounters[key] = c
		return c
	case TypeCounterVec:
		c := prometheus.NewCounterVec(prometheus.CounterOpts(opts), d.labels)
		MetricCollectionCounterVec[key] = c
		return c
	case TypeGaugeVec:
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts(opts), d.labels)
		MetricCollectionGaugeVec[key] = g
		return g
	case TypeHistogram:
		h := prometheus.NewHistogram(histogramOpts)
		MetricCollectionHistogram[key] = h
		return h
	default:
		h := prometheus.NewHistogramVec(histogramOpts, d.labels)
		MetricCollectionHistogramVec[key] = h
		return h
	}
}

// ListenAndServer exposes the default registry on addr. It blocks.
func ListenAndServer(addr string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "addr", addr, "url", url)
	if err := s.ListenAndServe(addr); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func IncCounter(subsystem, name string) {
	AddCounter(subsystem, name, 1)
}

func AddCounter(subsystem, name string, number float64) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounters[subsystem+name]; ok {
		v.Add(number)
		return
	}
	logger.Warn("[metrics-server] counter not found", "subsystem", subsystem, "name", name)
}

func SetGaugeVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionGaugeVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Set(num)
		return
	}
	logger.Warn("[metrics-server] gauge not found", "subsystem", subsystem, "name", name)
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounterVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func AddHistogram(subsystem, name string, number float64) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionHistogram[subsystem+name]; ok {
		v.Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram not found", "subsystem", subsystem, "name", name)
}

func AddHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionHistogramVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}
