package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eventhub"

// Collector holds the counters shared by the ingestor and the publisher.
// A nil *Collector is valid and records nothing, so components can be built
// without metrics in tests.
type Collector struct {
	messagesPersisted prometheus.Counter
	messagesFailed    prometheus.Counter
	batches           *prometheus.CounterVec
	eventsPublished   prometheus.Counter
	publishBatches    prometheus.Counter
}

// NewCollector creates the counters and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		messagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_persisted_total",
			Help:      "Messages written to the store.",
		}),
		messagesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_failed_total",
			Help:      "Messages whose store write failed.",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Ingested batches by outcome.",
		}, []string{"outcome"}),
		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Synthetic events sent by the simulator.",
		}),
		publishBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_batches_total",
			Help:      "Transport batches sent by the simulator.",
		}),
	}
	for _, col := range []prometheus.Collector{
		c.messagesPersisted, c.messagesFailed, c.batches, c.eventsPublished, c.publishBatches,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// BatchIngested records the result of one ingested batch.
func (c *Collector) BatchIngested(succeeded, failed int) {
	if c == nil {
		return
	}
	c.messagesPersisted.Add(float64(succeeded))
	c.messagesFailed.Add(float64(failed))
	outcome := "success"
	if failed > 0 {
		outcome = "redeliver"
	}
	c.batches.WithLabelValues(outcome).Inc()
}

// BatchSent records one transport batch of n events.
func (c *Collector) BatchSent(n int) {
	if c == nil {
		return
	}
	c.eventsPublished.Add(float64(n))
	c.publishBatches.Inc()
}
