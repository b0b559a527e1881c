// Package metrics exposes Prometheus instruments for the ledger pipeline.
package metrics

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Degraded record kinds.
const (
	DegradedPerson      = "person_skipped"
	DegradedExpense     = "expense_skipped"
	DegradedParticipant = "participant_placeholder"
)

var (
	mu          sync.Mutex
	initialized bool
	setupErr    error

	readDuration     *prometheus.HistogramVec
	degradedRecords  *prometheus.CounterVec
	writesTotal      *prometheus.CounterVec
	settlementsTotal *prometheus.CounterVec
	priceCache       *prometheus.CounterVec
	snapshotsTotal   *prometheus.CounterVec
)

// Setup registers the collectors once. Later calls return the first result.
func Setup(reg prometheus.Registerer) error {
	mu.Lock()
	defer mu.Unlock()
	if initialized {
		return setupErr
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	readDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "splitledger_read_duration_seconds",
		Help:    "Duration of full ledger reads.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	degradedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "splitledger_degraded_records_total",
		Help: "Ledger records skipped or replaced by placeholders during reads.",
	}, []string{"kind"})
	writesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "splitledger_writes_total",
		Help: "Ledger mutations by operation and outcome.",
	}, []string{"op", "outcome"})
	settlementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "splitledger_settlements_total",
		Help: "Settlement attempts by final state.",
	}, []string{"state"})
	priceCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "splitledger_price_cache_total",
		Help: "Price oracle cache lookups by result.",
	}, []string{"result"})
	snapshotsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "splitledger_snapshot_refresh_total",
		Help: "Worker snapshot refreshes by outcome.",
	}, []string{"outcome"})

	targets := []**prometheus.CounterVec{&degradedRecords, &writesTotal, &settlementsTotal, &priceCache, &snapshotsTotal}
	for _, target := range targets {
		if err := register(reg, *target, func(c prometheus.Collector) error {
			existing, ok := c.(*prometheus.CounterVec)
			if !ok {
				return fmt.Errorf("metrics: unexpected collector type %T", c)
			}
			*target = existing
			return nil
		}); err != nil {
			return fail(err)
		}
	}
	if err := register(reg, readDuration, func(c prometheus.Collector) error {
		existing, ok := c.(*prometheus.HistogramVec)
		if !ok {
			return fmt.Errorf("metrics: unexpected collector type %T", c)
		}
		readDuration = existing
		return nil
	}); err != nil {
		return fail(err)
	}

	initialized = true
	return nil
}

func register(reg prometheus.Registerer, c prometheus.Collector, reuse func(prometheus.Collector) error) error {
	err := reg.Register(c)
	if err == nil {
		return nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return reuse(already.ExistingCollector)
	}
	return err
}

func fail(err error) error {
	readDuration, degradedRecords, writesTotal = nil, nil, nil
	settlementsTotal, priceCache, snapshotsTotal = nil, nil, nil
	setupErr = err
	initialized = true
	return err
}

func ObserveRead(op string, d time.Duration) {
	if readDuration == nil {
		return
	}
	readDuration.WithLabelValues(op).Observe(d.Seconds())
}

func RecordDegraded(kind string) {
	if degradedRecords == nil {
		return
	}
	degradedRecords.WithLabelValues(kind).Inc()
}

func RecordWrite(op string, err error) {
	if writesTotal == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	writesTotal.WithLabelValues(op, outcome).Inc()
}

func RecordSettlement(state string) {
	if settlementsTotal == nil {
		return
	}
	settlementsTotal.WithLabelValues(state).Inc()
}

func RecordPriceCache(hit bool) {
	if priceCache == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	priceCache.WithLabelValues(result).Inc()
}

func RecordSnapshot(err error) {
	if snapshotsTotal == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	snapshotsTotal.WithLabelValues(outcome).Inc()
}
