package services

import (
	"context"
	"fmt"
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

const (
	// ExchangeTTL is how long a proposal can be acknowledged.
	ExchangeTTL = 45 * time.Second
	// ExchangeIndexMax bounds the pending-request index per group.
	ExchangeIndexMax = 300
)

// AckOutcome classifies an acknowledgment.
type AckOutcome int

const (
	// AckIgnored: no pending request for the message, or the reactor is not
	// the counterpart.
	AckIgnored AckOutcome = iota
	// AckExpired: the request was older than the TTL and was dropped.
	AckExpired
	// AckSettled: the trade went through.
	AckSettled
	// AckFailed: settlement re-verification failed; see the error.
	AckFailed
)

// Settlement describes a completed trade.
type Settlement struct {
	Request  domain.ExchangeRequest
	FromName string
	ToName   string
}

// AckResult is returned by Acknowledge. Settlement is set for AckSettled;
// Request is set whenever a request was consumed.
type AckResult struct {
	Outcome    AckOutcome
	Request    *domain.ExchangeRequest
	Settlement *Settlement
}

// ExchangeService runs the two-party trade protocol: a proposal is
// announced, persisted under the announcement's message id, and settled
// when the counterpart reacts to that message within the TTL.
//
// Expired requests are swept from the index on each new proposal; there is
// no background timer.
type ExchangeService struct {
	Store     kv.Store
	State     *GroupState
	Catalog   Catalog
	Messenger messaging.Messenger
	Events    events.Publisher

	TTL      time.Duration
	IndexMax int
	Now      func() time.Time
}

// NewExchangeService constructs an ExchangeService with the default TTL and
// index bound.
func NewExchangeService(store kv.Store, state *GroupState, cat Catalog, m messaging.Messenger, p events.Publisher) *ExchangeService {
	return &ExchangeService{
		Store:     store,
		State:     state,
		Catalog:   cat,
		Messenger: m,
		Events:    p,
		TTL:       ExchangeTTL,
		IndexMax:  ExchangeIndexMax,
		Now:       time.Now,
	}
}

func (s *ExchangeService) name(c string) string {
	if id, err := atoi(c); err == nil {
		if ch := s.Catalog.ByID(id); ch != nil && ch.Name != "" {
			return ch.Name
		}
	}
	return c
}

// Propose announces a trade of myChar for theirChar and records it. The
// ownership checks and the send happen without the lock; only the index
// bookkeeping after a successful send is locked. replyTo, when set, is the
// message the announcement quotes.
func (s *ExchangeService) Propose(ctx context.Context, group, user string, myChar, theirChar int, replyTo string) (*domain.ExchangeRequest, error) {
	group = normalizeGroup(group)
	ctx, span := otel.Tracer("services/ExchangeService").Start(ctx, "Propose",
		trace.WithAttributes(
			attribute.String("group.id", group),
			attribute.String("user.id", user),
			attribute.Int("char.from", myChar),
			attribute.Int("char.to", theirChar),
		),
	)
	defer span.End()

	mine, theirs := cid(myChar), cid(theirChar)
	myOwner, err := ownerOf(ctx, s.Store, group, mine)
	if err != nil {
		return nil, err
	}
	if myOwner != user {
		return nil, ErrNotYourCharacter
	}
	other, err := ownerOf(ctx, s.Store, group, theirs)
	if err != nil {
		return nil, err
	}
	if other == "" || other == user {
		return nil, ErrCounterpartNotOwned
	}
	member, err := s.State.IsMember(ctx, group, other)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrCounterpartLeft
	}

	var msg messaging.Message
	if replyTo != "" {
		msg = append(msg, messaging.Reply(replyTo))
	}
	msg = append(msg,
		messaging.At(user),
		messaging.Text("想用 "+s.name(mine)+" 向你交换 "+s.name(theirs)+"。\n"),
		messaging.At(other),
		messaging.Text("若同意，请给此条消息贴表情。"),
	)
	msgID, err := s.Messenger.SendGroupMessage(ctx, group, msg)
	if err != nil {
		exchangesTotal.WithLabelValues("failed").Inc()
		log.Ctx(ctx).Error().Err(err).
			Str("stage", "exchange_prompt_send").
			Str("group_id", group).
			Str("user_id", user).
			Msg("exchange announcement failed")
		return nil, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	req := domain.ExchangeRequest{
		MessageID:     msgID,
		FromUser:      user,
		ToUser:        other,
		FromCharacter: mine,
		ToCharacter:   theirs,
		CreatedAt:     s.Now(),
	}
	err = s.State.withLock(group, func() error {
		if err := kv.Save(ctx, s.Store, exchangeReqKey(group, msgID), req); err != nil {
			return err
		}
		return s.indexAppend(ctx, group, req)
	})
	if err != nil {
		return nil, err
	}

	exchangesTotal.WithLabelValues("proposed").Inc()
	return &req, nil
}

// indexAppend sweeps the index and appends req. Evicted entries take their
// request records with them: first everything past the TTL, then the oldest
// surplus so the index holds at most IndexMax entries afterwards. Caller
// holds the group lock.
func (s *ExchangeService) indexAppend(ctx context.Context, group string, req domain.ExchangeRequest) error {
	idx, err := kv.Load(ctx, s.Store, exchangeIndexKey(group), []domain.ExchangeIndexEntry{})
	if err != nil {
		return err
	}

	kept := make([]domain.ExchangeIndexEntry, 0, len(idx)+1)
	for _, e := range idx {
		if req.CreatedAt.Sub(e.CreatedAt) > s.TTL {
			if err := kv.Remove(ctx, s.Store, exchangeReqKey(group, e.MessageID)); err != nil {
				return err
			}
			exchangeIndexEvictions.WithLabelValues("expired").Inc()
			continue
		}
		kept = append(kept, e)
	}
	if limit := max(s.IndexMax, 1); len(kept) >= limit {
		surplus := len(kept) - (limit - 1)
		for _, e := range kept[:surplus] {
			if err := kv.Remove(ctx, s.Store, exchangeReqKey(group, e.MessageID)); err != nil {
				return err
			}
			exchangeIndexEvictions.WithLabelValues("capacity").Inc()
		}
		kept = kept[surplus:]
	}
	kept = append(kept, domain.ExchangeIndexEntry{MessageID: req.MessageID, CreatedAt: req.CreatedAt})
	return kv.Save(ctx, s.Store, exchangeIndexKey(group), kept)
}

// indexRemove drops msgID from the index. Caller holds the group lock.
func (s *ExchangeService) indexRemove(ctx context.Context, group, msgID string) error {
	idx, err := kv.Load(ctx, s.Store, exchangeIndexKey(group), []domain.ExchangeIndexEntry{})
	if err != nil {
		return err
	}
	kept := idx[:0]
	for _, e := range idx {
		if e.MessageID != msgID {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(idx) {
		return nil
	}
	return kv.Save(ctx, s.Store, exchangeIndexKey(group), kept)
}

// Acknowledge handles a reaction by reactor on message msgID. Reactions by
// anyone but the counterpart, or on messages with no pending request, are
// ignored. Otherwise the request is consumed; a stale one is dropped without
// error, a fresh one is settled. Resolution and settlement share one
// critical section, so a request settles at most once.
func (s *ExchangeService) Acknowledge(ctx context.Context, group, reactor, msgID string) (*AckResult, error) {
	group = normalizeGroup(group)
	ctx, span := otel.Tracer("services/ExchangeService").Start(ctx, "Acknowledge",
		trace.WithAttributes(
			attribute.String("group.id", group),
			attribute.String("user.id", reactor),
			attribute.String("message.id", msgID),
		),
	)
	defer span.End()

	now := s.Now()
	res := &AckResult{Outcome: AckIgnored}
	var settleErr error
	err := s.State.withLock(group, func() error {
		req, err := kv.Load[*domain.ExchangeRequest](ctx, s.Store, exchangeReqKey(group, msgID), nil)
		if err != nil {
			return err
		}
		if req == nil || req.ToUser != reactor {
			return nil
		}
		if err := kv.Remove(ctx, s.Store, exchangeReqKey(group, msgID)); err != nil {
			return err
		}
		if err := s.indexRemove(ctx, group, msgID); err != nil {
			return err
		}
		res.Request = req

		if req.Expired(now, s.TTL) {
			res.Outcome = AckExpired
			return nil
		}
		st, err := s.settleLocked(ctx, group, *req)
		if err != nil {
			res.Outcome = AckFailed
			settleErr = err
			return nil
		}
		res.Outcome = AckSettled
		res.Settlement = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch res.Outcome {
	case AckIgnored:
		exchangesTotal.WithLabelValues("ignored").Inc()
	case AckExpired:
		exchangesTotal.WithLabelValues("expired").Inc()
		log.Ctx(ctx).Debug().
			Str("stage", "exchange_expired").
			Str("group_id", group).
			Str("msg_id", msgID).
			Msg("late acknowledgment dropped")
	}
	if settleErr != nil {
		return res, settleErr
	}
	return res, nil
}

// Settle re-verifies req under the group lock and swaps the characters.
func (s *ExchangeService) Settle(ctx context.Context, group string, req domain.ExchangeRequest) (*Settlement, error) {
	group = normalizeGroup(group)
	var st *Settlement
	err := s.State.withLock(group, func() error {
		var err error
		st, err = s.settleLocked(ctx, group, req)
		return err
	})
	return st, err
}

func (s *ExchangeService) settleLocked(ctx context.Context, group string, req domain.ExchangeRequest) (*Settlement, error) {
	ctx, span := otel.Tracer("services/ExchangeService").Start(ctx, "Settle",
		trace.WithAttributes(
			attribute.String("group.id", group),
			attribute.String("message.id", req.MessageID),
		),
	)
	defer span.End()

	st, err := s.swap(ctx, group, req)
	if err != nil {
		exchangesTotal.WithLabelValues("failed").Inc()
		log.Ctx(ctx).Info().Err(err).
			Str("stage", "exchange_fail").
			Str("group_id", group).
			Str("msg_id", req.MessageID).
			Msg("exchange not settled")
		return nil, err
	}

	exchangesTotal.WithLabelValues("settled").Inc()
	log.Ctx(ctx).Info().
		Str("stage", "exchange_success").
		Str("group_id", group).
		Str("msg_id", req.MessageID).
		Str("from_uid", req.FromUser).
		Str("to_uid", req.ToUser).
		Str("from_cid", req.FromCharacter).
		Str("to_cid", req.ToCharacter).
		Msg("exchange settled")
	publish(ctx, s.Events, events.Event{
		Type:       events.ExchangeSettled,
		Group:      group,
		Users:      []string{req.FromUser, req.ToUser},
		Characters: []string{req.FromCharacter, req.ToCharacter},
		At:         s.Now(),
	})
	return st, nil
}

func (s *ExchangeService) swap(ctx context.Context, group string, req domain.ExchangeRequest) (*Settlement, error) {
	for _, u := range []string{req.FromUser, req.ToUser} {
		ok, err := s.State.IsMember(ctx, group, u)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrPartyLeft
		}
	}

	fromOwner, err := ownerOf(ctx, s.Store, group, req.FromCharacter)
	if err != nil {
		return nil, err
	}
	toOwner, err := ownerOf(ctx, s.Store, group, req.ToCharacter)
	if err != nil {
		return nil, err
	}
	if toOwner != req.ToUser {
		return nil, ErrCounterpartNoLongerOwns
	}
	if fromOwner != req.FromUser {
		return nil, ErrInitiatorNoLongerOwns
	}

	fromList, err := partnersOf(ctx, s.Store, group, req.FromUser)
	if err != nil {
		return nil, err
	}
	toList, err := partnersOf(ctx, s.Store, group, req.ToUser)
	if err != nil {
		return nil, err
	}
	if !contains(fromList, req.FromCharacter) || !contains(toList, req.ToCharacter) {
		return nil, ErrOwnershipDrift
	}

	fromList = append(without(fromList, req.FromCharacter), req.ToCharacter)
	toList = append(without(toList, req.ToCharacter), req.FromCharacter)
	if err := saveList(ctx, s.Store, partnersKey(group, req.FromUser), fromList); err != nil {
		return nil, err
	}
	if err := saveList(ctx, s.Store, partnersKey(group, req.ToUser), toList); err != nil {
		return nil, err
	}
	if err := setOwner(ctx, s.Store, group, req.ToCharacter, req.FromUser); err != nil {
		return nil, err
	}
	if err := setOwner(ctx, s.Store, group, req.FromCharacter, req.ToUser); err != nil {
		return nil, err
	}
	if err := repairFavorite(ctx, s.Store, group, req.FromUser, fromList); err != nil {
		return nil, err
	}
	if err := repairFavorite(ctx, s.Store, group, req.ToUser, toList); err != nil {
		return nil, err
	}

	return &Settlement{
		Request:  req,
		FromName: s.name(req.FromCharacter),
		ToName:   s.name(req.ToCharacter),
	}, nil
}
