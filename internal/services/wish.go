package services

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/kv"
)

// WishMark annotates a wish with the character's marriage status relative
// to the viewer.
type WishMark string

const (
	WishUnclaimed WishMark = ""
	WishMine      WishMark = "mine"
	WishTaken     WishMark = "taken"
)

// WishEntry is one rendered wish.
type WishEntry struct {
	Character domain.Character `json:"character"`
	Mark      WishMark         `json:"mark,omitempty"`
}

// WishService maintains the symmetric wish list / wisher list mapping.
type WishService struct {
	Store   kv.Store
	State   *GroupState
	Catalog Catalog
}

// NewWishService constructs a WishService.
func NewWishService(store kv.Store, state *GroupState, cat Catalog) *WishService {
	return &WishService{Store: store, State: state, Catalog: cat}
}

// Wish adds char to user's wish list and user to char's wishers. Wishing an
// already wished character is a no-op.
func (s *WishService) Wish(ctx context.Context, group, user string, char int) (*domain.Character, error) {
	group = normalizeGroup(group)
	ctx, span := otel.Tracer("services/WishService").Start(ctx, "Wish",
		trace.WithAttributes(
			attribute.String("group.id", group),
			attribute.String("user.id", user),
			attribute.Int("char.id", char),
		),
	)
	defer span.End()

	ch := s.Catalog.ByID(char)
	if ch == nil {
		return nil, ErrCharacterNotFound
	}
	cfg, err := s.State.Config(ctx, group)
	if err != nil {
		return nil, err
	}

	c := cid(char)
	err = s.State.withLock(group, func() error {
		wishes, err := loadList(ctx, s.Store, wishListKey(group, user))
		if err != nil {
			return err
		}
		if !contains(wishes, c) {
			if len(wishes) >= cfg.HaremMaxSize {
				return ErrWishListFull
			}
			if err := saveList(ctx, s.Store, wishListKey(group, user), append(wishes, c)); err != nil {
				return err
			}
		}
		wishers, err := loadList(ctx, s.Store, wishedByKey(group, c))
		if err != nil {
			return err
		}
		if contains(wishers, user) {
			return nil
		}
		return saveList(ctx, s.Store, wishedByKey(group, c), append(wishers, user))
	})
	if err != nil {
		return nil, err
	}
	ledgerOpsTotal.WithLabelValues("wish").Inc()
	return ch, nil
}

// Unwish removes char from both sides of the mapping. Empty lists are
// deleted rather than stored.
func (s *WishService) Unwish(ctx context.Context, group, user string, char int) error {
	group = normalizeGroup(group)
	ctx, span := otel.Tracer("services/WishService").Start(ctx, "Unwish",
		trace.WithAttributes(
			attribute.String("group.id", group),
			attribute.String("user.id", user),
			attribute.Int("char.id", char),
		),
	)
	defer span.End()

	c := cid(char)
	err := s.State.withLock(group, func() error {
		wishes, err := loadList(ctx, s.Store, wishListKey(group, user))
		if err != nil {
			return err
		}
		if contains(wishes, c) {
			if err := saveList(ctx, s.Store, wishListKey(group, user), without(wishes, c)); err != nil {
				return err
			}
		}
		wishers, err := loadList(ctx, s.Store, wishedByKey(group, c))
		if err != nil {
			return err
		}
		if !contains(wishers, user) {
			return nil
		}
		return saveList(ctx, s.Store, wishedByKey(group, c), without(wishers, user))
	})
	if err != nil {
		return err
	}
	ledgerOpsTotal.WithLabelValues("unwish").Inc()
	return nil
}

// Wishes lists user's wishes with marriage marks. Ids missing from the
// catalog are skipped.
func (s *WishService) Wishes(ctx context.Context, group, user string) ([]WishEntry, error) {
	group = normalizeGroup(group)
	wishes, err := loadList(ctx, s.Store, wishListKey(group, user))
	if err != nil {
		return nil, err
	}

	out := make([]WishEntry, 0, len(wishes))
	for _, c := range wishes {
		id, err := strconv.Atoi(c)
		if err != nil {
			continue
		}
		ch := s.Catalog.ByID(id)
		if ch == nil {
			continue
		}
		owner, err := ownerOf(ctx, s.Store, group, c)
		if err != nil {
			return nil, err
		}
		e := WishEntry{Character: *ch}
		switch {
		case owner == "":
		case owner == user:
			e.Mark = WishMine
		default:
			e.Mark = WishTaken
		}
		out = append(out, e)
	}
	return out, nil
}
