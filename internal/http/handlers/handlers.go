package handlers

import (
	"context"
	"time"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/messaging"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/services"
)

// EventHandler consumes one decoded OneBot event. The command dispatcher
// implements it.
type EventHandler interface {
	Handle(ctx context.Context, ev messaging.Event) error
}

// GameReader is the read side of the game consumed by the JSON API.
type GameReader interface {
	Harem(ctx context.Context, group, user string, page int) (*services.HaremView, error)
	Wishes(ctx context.Context, group, user string) ([]services.WishEntry, error)
	Character(ctx context.Context, group string, id int) (*services.CharacterInfo, error)
	Search(keyword string) (*services.SearchResult, error)
	Config(ctx context.Context, group string) (domain.GroupConfig, error)
}

// gameReader adapts *services.Game to GameReader.
type gameReader struct{ g *services.Game }

// NewGameReader exposes g's read operations.
func NewGameReader(g *services.Game) GameReader { return gameReader{g: g} }

func (r gameReader) Harem(ctx context.Context, group, user string, page int) (*services.HaremView, error) {
	return r.g.Ledger.Harem(ctx, group, user, page)
}

func (r gameReader) Wishes(ctx context.Context, group, user string) ([]services.WishEntry, error) {
	return r.g.Wish.Wishes(ctx, group, user)
}

func (r gameReader) Character(ctx context.Context, group string, id int) (*services.CharacterInfo, error) {
	return r.g.Query.Character(ctx, group, id)
}

func (r gameReader) Search(keyword string) (*services.SearchResult, error) {
	return r.g.Query.Search(keyword)
}

func (r gameReader) Config(ctx context.Context, group string) (domain.GroupConfig, error) {
	return r.g.Admin.Config(ctx, group)
}

// Handlers groups the webhook and API endpoints.
type Handlers struct {
	events       EventHandler
	game         GameReader
	eventTimeout time.Duration
}

// New constructs Handlers. eventTimeout bounds the processing of a single
// webhook event; zero means 30s.
func New(events EventHandler, game GameReader, eventTimeout time.Duration) *Handlers {
	if eventTimeout <= 0 {
		eventTimeout = 30 * time.Second
	}
	return &Handlers{events: events, game: game, eventTimeout: eventTimeout}
}
