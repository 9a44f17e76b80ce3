package app

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"orderbot/internal/broadcast"
	"orderbot/internal/eventbus"
	"orderbot/internal/storage"
	logx "orderbot/pkg/logx"
)

// metrics owns a private registry so tests can build several apps in one process.
type metrics struct {
	reg *prometheus.Registry

	events    *prometheus.CounterVec
	updates   prometheus.Counter
	handle    prometheus.Histogram
	broadcast *prometheus.CounterVec
}

func newMetrics(users storage.Store) *metrics {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderbot_events_total",
			Help: "Bot events by type.",
		}, []string{"type"}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderbot_updates_total",
			Help: "Incoming chat messages handled.",
		}),
		handle: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "orderbot_message_handle_seconds",
			Help:    "Time to fully handle one incoming message.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		broadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderbot_broadcast_messages_total",
			Help: "Broadcast deliveries by result.",
		}, []string{"result"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events, m.updates, m.handle, m.broadcast,
	)
	if users != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "orderbot_registered_users",
			Help: "Users known to the broadcast registry.",
		}, func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			n, err := users.Count(ctx)
			if err != nil {
				return 0
			}
			return float64(n)
		}))
	}
	return m
}

func (m *metrics) observeUpdate(took time.Duration) {
	m.updates.Inc()
	m.handle.Observe(took.Seconds())
}

// consume counts every event until ctx ends or the subscription closes.
func (m *metrics) consume(ctx context.Context, events <-chan eventbus.Event, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			m.events.WithLabelValues(e.Type).Inc()
			if rep, ok := e.Data.(broadcast.Report); ok {
				m.broadcast.WithLabelValues("sent").Add(float64(rep.Sent))
				m.broadcast.WithLabelValues("failed").Add(float64(rep.Failed))
			}
			log.Trace("event", logx.String("type", e.Type))
		}
	}
}
