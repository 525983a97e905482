package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/events"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/kv"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/messaging"
)

// WishDrawChance is the probability that a draw picks from the drawer's own
// wish list instead of the pool.
const WishDrawChance = 0.001

// Catalog is the read-only character pool the services draw from.
type Catalog interface {
	Random(scope int) *domain.Character
	ByID(id int) *domain.Character
	Search(substr string) []domain.Character
	Len() int
}

// DrawOutcome classifies a draw.
type DrawOutcome int

const (
	DrawGranted DrawOutcome = iota
	DrawAlreadyOwned
	DrawHaremFull
	DrawThrottled
	DrawLimitReached
)

func (o DrawOutcome) String() string {
	switch o {
	case DrawGranted:
		return "granted"
	case DrawAlreadyOwned:
		return "owned"
	case DrawHaremFull:
		return "harem_full"
	case DrawThrottled:
		return "throttled"
	case DrawLimitReached:
		return "limit_reached"
	default:
		return "unknown"
	}
}

// DrawResult describes what a draw did. Character, MessageID and Owner are
// set only when the announcement went out.
type DrawResult struct {
	Outcome   DrawOutcome
	Character *domain.Character
	MessageID string
	// Owner is the current owner for DrawAlreadyOwned.
	Owner string
	// Wait is the remaining cooldown in seconds for DrawThrottled.
	Wait int
	// Notify is set on the first DrawLimitReached of an hour.
	Notify bool
	// HaremMax is the capacity that applied.
	HaremMax int
	// LastOfHour is set when this draw used the final hourly slot.
	LastOfHour bool
}

// DrawService grants random characters.
//
// Draws do not take the group lock. Two concurrent draws of the same
// unowned character can both observe it unowned; the harem append is
// idempotent and the last owner pointer written wins.
type DrawService struct {
	Store     kv.Store
	State     *GroupState
	Catalog   Catalog
	Limiter   *DrawLimiter
	Messenger messaging.Messenger
	Events    events.Publisher

	Now     func() time.Time
	Float64 func() float64
	IntN    func(n int) int
}

// NewDrawService wires a DrawService with real time and randomness.
func NewDrawService(store kv.Store, state *GroupState, cat Catalog, lim *DrawLimiter, m messaging.Messenger, p events.Publisher) *DrawService {
	return &DrawService{
		Store:     store,
		State:     state,
		Catalog:   cat,
		Limiter:   lim,
		Messenger: m,
		Events:    p,
		Now:       time.Now,
		Float64:   rand.Float64,
		IntN:      rand.IntN,
	}
}

// Draw runs one draw for user in group: rate limit, pick, announce, grant.
// Nothing is consumed unless the announcement is delivered.
func (s *DrawService) Draw(ctx context.Context, group, user string) (*DrawResult, error) {
	group = normalizeGroup(group)
	ctx, span := otel.Tracer("services/DrawService").Start(ctx, "Draw",
		trace.WithAttributes(
			attribute.String("group.id", group),
			attribute.String("user.id", user),
		),
	)
	defer span.End()

	now := s.Now()
	d, err := s.Limiter.Check(ctx, group, user, now)
	if err != nil {
		return nil, err
	}
	switch d.Verdict {
	case Throttled:
		drawsTotal.WithLabelValues(DrawThrottled.String()).Inc()
		return &DrawResult{Outcome: DrawThrottled, Wait: d.Wait}, nil
	case LimitReached:
		drawsTotal.WithLabelValues(DrawLimitReached.String()).Inc()
		return &DrawResult{Outcome: DrawLimitReached, Notify: d.Notify}, nil
	}

	cfg, err := s.State.Config(ctx, group)
	if err != nil {
		return nil, err
	}
	ch, err := s.pick(ctx, group, user, cfg.DrawScope)
	if err != nil {
		return nil, err
	}
	c := cid(ch.ID)
	span.SetAttributes(attribute.Int("char.id", ch.ID))

	owner, err := ownerOf(ctx, s.Store, group, c)
	if err != nil {
		return nil, err
	}
	wishers, err := loadList(ctx, s.Store, wishedByKey(group, c))
	if err != nil {
		return nil, err
	}

	msg := s.announcement(ch, owner, wishers, d.Remaining <= 0)
	msgID, err := s.Messenger.SendGroupMessage(ctx, group, msg)
	if err != nil {
		drawsTotal.WithLabelValues("failed").Inc()
		log.Ctx(ctx).Error().Err(err).
			Str("stage", "draw_send").
			Str("group_id", group).
			Str("user_id", user).
			Int("char_id", ch.ID).
			Msg("draw announcement failed")
		return nil, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	if err := s.Limiter.Commit(ctx, group, user, d, now); err != nil {
		return nil, err
	}

	res := &DrawResult{
		Character:  ch,
		MessageID:  msgID,
		HaremMax:   cfg.HaremMaxSize,
		LastOfHour: d.Remaining <= 0,
	}
	if owner != "" {
		res.Outcome = DrawAlreadyOwned
		res.Owner = owner
		drawsTotal.WithLabelValues(res.Outcome.String()).Inc()
		return res, nil
	}

	partners, err := partnersOf(ctx, s.Store, group, user)
	if err != nil {
		return nil, err
	}
	if len(partners) >= cfg.HaremMaxSize {
		res.Outcome = DrawHaremFull
		drawsTotal.WithLabelValues(res.Outcome.String()).Inc()
		return res, nil
	}
	if !contains(partners, c) {
		partners = append(partners, c)
	}
	if err := saveList(ctx, s.Store, partnersKey(group, user), partners); err != nil {
		return nil, err
	}
	if err := setOwner(ctx, s.Store, group, c, user); err != nil {
		return nil, err
	}

	res.Outcome = DrawGranted
	drawsTotal.WithLabelValues(res.Outcome.String()).Inc()
	publish(ctx, s.Events, events.Event{
		Type:       events.CharacterGranted,
		Group:      group,
		Users:      []string{user},
		Characters: []string{c},
		At:         now,
	})
	return res, nil
}

// pick chooses the character: rarely from the wish list, otherwise from the
// (scoped) pool.
func (s *DrawService) pick(ctx context.Context, group, user string, scope int) (*domain.Character, error) {
	wishes, err := loadList(ctx, s.Store, wishListKey(group, user))
	if err != nil {
		return nil, err
	}
	if len(wishes) > 0 && s.Float64() < WishDrawChance {
		if id, err := strconv.Atoi(wishes[s.IntN(len(wishes))]); err == nil {
			if ch := s.Catalog.ByID(id); ch != nil {
				return ch, nil
			}
		}
	}
	if ch := s.Catalog.Random(scope); ch != nil {
		return ch, nil
	}
	drawsTotal.WithLabelValues("failed").Inc()
	return nil, ErrCatalogUnavailable
}

// announcement renders the draw message. Wishers are mentioned only while
// the character is unowned.
func (s *DrawService) announcement(ch *domain.Character, owner string, wishers []string, lastOfHour bool) messaging.Message {
	var msg messaging.Message
	if owner == "" && len(wishers) > 0 {
		for _, w := range wishers {
			msg = append(msg, messaging.At(w))
		}
		msg = append(msg, messaging.Text(" 已许愿\n"+ch.Name))
	} else {
		msg = append(msg, messaging.Text(ch.Name))
	}
	if owner != "" {
		msg = append(msg,
			messaging.Text("\u200b\n❤已与"),
			messaging.At(owner),
			messaging.Text("结婚，勿扰❤"),
		)
	}
	if len(ch.Images) > 0 {
		msg = append(msg, messaging.Image(ch.Images[s.IntN(len(ch.Images))]))
	}
	if lastOfHour {
		msg = append(msg, messaging.Text("⚠本小时已达上限⚠"))
	}
	return msg
}
