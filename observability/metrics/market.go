package metrics

import (
	"math"
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type MarketMetrics struct {
	commands      *prometheus.CounterVec
	events        *prometheus.CounterVec
	feesCollected prometheus.Counter
	volume        *prometheus.CounterVec
	subscribers   prometheus.Gauge
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			commands: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_commands_total",
				Help: "Count of market commands by command and outcome kind.",
			}, []string{"command", "outcome"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_events_total",
				Help: "Count of committed market events by type.",
			}, []string{"type"}),
			feesCollected: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_fees_collected",
				Help: "Protocol fees paid to the treasury, in the smallest currency unit.",
			}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_settled_volume",
				Help: "Gross settled sale amounts by offer type.",
			}, []string{"offer"}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "market_stream_subscribers",
				Help: "Number of connected event stream subscribers.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.commands,
			marketRegistry.events,
			marketRegistry.feesCollected,
			marketRegistry.volume,
			marketRegistry.subscribers,
		)
	})
	return marketRegistry
}

// ObserveCommand counts a command outcome. outcome is "ok" or the error kind.
func (m *MarketMetrics) ObserveCommand(command, outcome string) {
	if m == nil {
		return
	}
	if command == "" {
		command = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *MarketMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.events.WithLabelValues(normalized).Inc()
}

// RecordSettlement adds a completed sale. offer is "listing" or "auction".
func (m *MarketMetrics) RecordSettlement(offer string, gross, fee *big.Int) {
	if m == nil {
		return
	}
	m.volume.WithLabelValues(offer).Add(bigToFloat(gross))
	m.feesCollected.Add(bigToFloat(fee))
}

func (m *MarketMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func bigToFloat(value *big.Int) float64 {
	if value == nil || value.Sign() <= 0 {
		return 0
	}
	floatVal, _ := new(big.Float).SetInt(value).Float64()
	if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
		return 0
	}
	return floatVal
}
