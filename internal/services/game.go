package services

import (
	"time"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/events"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/kv"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/messaging"
)

// Game bundles the services that share one store, group state and catalog.
type Game struct {
	State    *GroupState
	Limiter  *DrawLimiter
	Draw     *DrawService
	Ledger   *LedgerService
	Wish     *WishService
	Exchange *ExchangeService
	Admin    *AdminService
	Query    *QueryService
}

// GameOptions carries the process-level tunables.
type GameOptions struct {
	Defaults domain.GroupConfig
	Location *time.Location
}

// NewGame wires every service over the given collaborators. A nil publisher
// disables events.
func NewGame(store kv.Store, cat Catalog, m messaging.Messenger, p events.Publisher, opts GameOptions) *Game {
	if p == nil {
		p = events.Noop{}
	}
	state := NewGroupState(store, opts.Defaults)
	lim := NewDrawLimiter(store, state, opts.Location)
	return &Game{
		State:    state,
		Limiter:  lim,
		Draw:     NewDrawService(store, state, cat, lim, m, p),
		Ledger:   NewLedgerService(store, state, cat, p),
		Wish:     NewWishService(store, state, cat),
		Exchange: NewExchangeService(store, state, cat, m, p),
		Admin:    NewAdminService(state, lim, p),
		Query:    NewQueryService(store, cat),
	}
}
