// Package metrics holds the node's Prometheus collectors on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hyperswap"

type Metrics struct {
	registry *prometheus.Registry

	txs             *prometheus.CounterVec
	ordersSubmitted prometheus.Counter
	ordersCancelled prometheus.Counter
	fills           prometheus.Counter
	matchedOrders   prometheus.Counter
	swaps           prometheus.Counter
	conversions     prometheus.Counter
	blockHeight     prometheus.Gauge
	mempoolSize     prometheus.Gauge
	blockDuration   prometheus.Histogram
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		txs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "txs_total",
			Help:      "Transactions executed by message type and result",
		}, []string{"type", "result"}),

		ordersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Limit orders accepted into an order book",
		}),

		ordersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_cancelled_total",
			Help:      "Limit orders cancelled by their bidder",
		}),

		fills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Buy/sell pairings settled by matching passes",
		}),

		matchedOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matched_orders_total",
			Help:      "Orders removed from a book after being fulfilled or closed",
		}),

		swaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_total",
			Help:      "AMM swaps executed",
		}),

		conversions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Converter conversions in either direction",
		}),

		blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "block_height",
			Help:      "Height of the last committed block",
		}),

		mempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mempool_size",
			Help:      "Transactions waiting for a block",
		}),

		blockDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_execution_seconds",
			Help:      "Time spent executing a block's transactions",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}

	registry.MustRegister(
		m.txs,
		m.ordersSubmitted,
		m.ordersCancelled,
		m.fills,
		m.matchedOrders,
		m.swaps,
		m.conversions,
		m.blockHeight,
		m.mempoolSize,
		m.blockDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTx counts one executed transaction
func (m *Metrics) ObserveTx(msgType string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.txs.WithLabelValues(msgType, result).Inc()

	if !ok {
		return
	}
	switch msgType {
	case "submit_order":
		m.ordersSubmitted.Inc()
	case "cancel_order":
		m.ordersCancelled.Inc()
	case "swap":
		m.swaps.Inc()
	case "convert", "convert_reverse":
		m.conversions.Inc()
	}
}

// ObserveMatch records the outcome of one matching pass
func (m *Metrics) ObserveMatch(fills, matchedOrders int) {
	m.fills.Add(float64(fills))
	m.matchedOrders.Add(float64(matchedOrders))
}

func (m *Metrics) ObserveBlock(height int64, elapsed time.Duration) {
	m.blockHeight.Set(float64(height))
	m.blockDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) SetMempoolSize(n int) { m.mempoolSize.Set(float64(n)) }

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
