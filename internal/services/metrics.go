package services

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/events"
)

var (
	// drawsTotal counts draw attempts by outcome
	// (granted, owned, harem_full, throttled, limit_reached, failed).
	drawsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mudae_draws_total",
			Help: "Draw attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// exchangesTotal counts exchange protocol transitions
	// (proposed, settled, expired, ignored, failed).
	exchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mudae_exchanges_total",
			Help: "Exchange protocol transitions by outcome.",
		},
		[]string{"outcome"},
	)

	// ledgerOpsTotal counts successful ledger mutations by operation.
	ledgerOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mudae_ledger_operations_total",
			Help: "Successful ledger mutations by operation.",
		},
		[]string{"op"},
	)

	// exchangeIndexEvictions counts pending requests dropped by the sweep.
	exchangeIndexEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mudae_exchange_index_evictions_total",
			Help: "Pending exchange requests evicted from the index, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(drawsTotal, exchangesTotal, ledgerOpsTotal, exchangeIndexEvictions)
}

// publish sends e and logs a failure. Events never affect game state.
func publish(ctx context.Context, p events.Publisher, e events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("event", string(e.Type)).
			Str("group_id", e.Group).
			Msg("publish event failed")
	}
}
