package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Metrics live ingest counters, mirrored into Prometheus.
type Metrics struct {
	mu sync.RWMutex

	MessagesReceived  int64 // every delivery
	MessagesForwarded int64 // reached a view's series
	MessagesFiltered  int64 // other device or unsupported kind
	MessagesMalformed int64 // unparsable payload

	LastReceivedTime time.Time
	StartTime        time.Time

	received  prometheus.Counter
	forwarded prometheus.Counter
	filtered  prometheus.Counter
	malformed prometheus.Counter
}

// NewMetrics registers the ingest counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tankwatch",
			Subsystem: "live",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		StartTime: time.Now(),
		received:  counter("messages_received_total", "Live messages delivered by the transport."),
		forwarded: counter("messages_forwarded_total", "Live events applied to a view."),
		filtered:  counter("messages_filtered_total", "Live events not relevant to the view."),
		malformed: counter("messages_malformed_total", "Live messages that could not be parsed."),
	}
}

// GetSnapshot counters only, safe for concurrent use.
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		MessagesReceived:  m.MessagesReceived,
		MessagesForwarded: m.MessagesForwarded,
		MessagesFiltered:  m.MessagesFiltered,
		MessagesMalformed: m.MessagesMalformed,
		LastReceivedTime:  m.LastReceivedTime,
		StartTime:         m.StartTime,
	}
}

func (m *Metrics) IncrementReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesReceived++
	m.LastReceivedTime = time.Now()
	m.received.Inc()
}

func (m *Metrics) IncrementForwarded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesForwarded++
	m.forwarded.Inc()
}

func (m *Metrics) IncrementFiltered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesFiltered++
	m.filtered.Inc()
}

func (m *Metrics) IncrementMalformed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesMalformed++
	m.malformed.Inc()
}

// Report logs a snapshot every interval until ctx is done.
func (m *Metrics) Report(ctx context.Context, logger *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := m.GetSnapshot()

			forwardRate := float64(0)
			if snapshot.MessagesReceived > 0 {
				forwardRate = float64(snapshot.MessagesForwarded) / float64(snapshot.MessagesReceived) * 100
			}

			logger.Info("Metrics report",
				zap.Int64("messages_received", snapshot.MessagesReceived),
				zap.Int64("messages_forwarded", snapshot.MessagesForwarded),
				zap.Int64("messages_filtered", snapshot.MessagesFiltered),
				zap.Int64("messages_malformed", snapshot.MessagesMalformed),
				zap.Float64("forward_rate", forwardRate),
				zap.Time("last_received", snapshot.LastReceivedTime),
				zap.Duration("uptime", time.Since(snapshot.StartTime)),
			)
		}
	}
}
