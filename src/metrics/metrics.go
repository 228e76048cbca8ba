// Package metrics exports node events as Prometheus metrics.
package metrics

import (
	"errors"

	"github.com/mosaicnetworks/tandem/src/chain"
	"github.com/mosaicnetworks/tandem/src/finality"
	"github.com/mosaicnetworks/tandem/src/node"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	typeLabel    = "type"
	reasonLabel  = "reason"
	outcomeLabel = "outcome"
)

// HeadSource gives the current chain heads.
type HeadSource interface {
	GetHead() chain.Head
}

// Recorder is a node.Observer that maintains the metrics.
type Recorder struct {
	heads HeadSource

	events          *prometheus.CounterVec
	blockRejections *prometheus.CounterVec
	voteRejections  *prometheus.CounterVec
	productionFails *prometheus.CounterVec
	roundsClosed    *prometheus.CounterVec

	bestHeight      prometheus.Gauge
	finalizedHeight prometheus.Gauge
	round           prometheus.Gauge
	slot            prometheus.Gauge
}

var _ node.Observer = (*Recorder)(nil)

// NewRecorder creates the metrics and registers them.
func NewRecorder(namespace string, registerer prometheus.Registerer, heads HeadSource) (*Recorder, error) {
	r := &Recorder{
		heads: heads,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Number of node events by type",
		}, []string{typeLabel}),
		blockRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_rejected_total",
			Help:      "Number of network blocks rejected, by reason",
		}, []string{reasonLabel}),
		voteRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_rejected_total",
			Help:      "Number of finality messages rejected, by reason",
		}, []string{reasonLabel}),
		productionFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "production_failures_total",
			Help:      "Number of failed block production attempts, by reason",
		}, []string{reasonLabel}),
		roundsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finality_rounds_closed_total",
			Help:      "Number of finality rounds closed, by outcome",
		}, []string{outcomeLabel}),
		bestHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_height",
			Help:      "Height of the best head",
		}),
		finalizedHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "finalized_height",
			Help:      "Height of the finalized head",
		}),
		round: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "finality_round",
			Help:      "Number of the last finality round closed",
		}),
		slot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slot",
			Help:      "Slot of the last event",
		}),
	}

	collectors := []prometheus.Collector{
		r.events,
		r.blockRejections,
		r.voteRejections,
		r.productionFails,
		r.roundsClosed,
		r.bestHeight,
		r.finalizedHeight,
		r.round,
		r.slot,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// OnEvent implements node.Observer.
func (r *Recorder) OnEvent(e node.Event) {
	r.events.WithLabelValues(e.Type.String()).Inc()
	if e.Slot > 0 {
		r.slot.Set(float64(e.Slot))
	}

	switch e.Type {
	case node.BlockRejected:
		r.blockRejections.WithLabelValues(reason(e.Err)).Inc()
	case node.VoteRejected:
		r.voteRejections.WithLabelValues(reason(e.Err)).Inc()
	case node.ProductionFailed:
		r.productionFails.WithLabelValues(reason(e.Err)).Inc()
	case node.RoundClosed:
		outcome := "timeout"
		if e.Finalized {
			outcome = "finalized"
		}
		r.roundsClosed.WithLabelValues(outcome).Inc()
		r.round.Set(float64(e.Round))
	}

	if r.heads != nil {
		head := r.heads.GetHead()
		r.bestHeight.Set(float64(head.Best.Height()))
		r.finalizedHeight.Set(float64(head.Finalized.Height()))
	}
}

// reason turns an error into a low cardinality label value.
func reason(err error) string {
	var importErr chain.ImportErr
	var voteErr finality.VoteErr

	switch {
	case err == nil:
		return "none"
	case errors.As(err, &importErr):
		return importErr.Type().String()
	case errors.As(err, &voteErr):
		return voteErr.Type().String()
	case errors.Is(err, node.ErrClockSkew):
		return "ClockSkew"
	case errors.Is(err, finality.ErrNotStarted):
		return "NotStarted"
	default:
		return "Other"
	}
}
