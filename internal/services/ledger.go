package services

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/events"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/kv"
)

// HaremPageSize is the number of entries per harem page.
const HaremPageSize = 10

// HaremEntry is one owned character in a harem listing.
type HaremEntry struct {
	Character domain.Character `json:"character"`
	Favorite  bool             `json:"favorite"`
}

// HaremView is a rendered harem. For page 0 Entries holds every entry and
// Page is 0; otherwise it holds one clamped page.
type HaremView struct {
	Entries    []HaremEntry      `json:"entries"`
	Favorite   *domain.Character `json:"favorite,omitempty"`
	TotalHeat  int               `json:"total_heat"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
}

// ClearResult reports a harem collapse.
type ClearResult struct {
	Released int
	// Kept is the surviving favorite, empty if none.
	Kept string
}

// LedgerService owns character ownership: divorce, administrative cleanup,
// favorites and harem listings. Every mutation holds the group lock.
type LedgerService struct {
	Store   kv.Store
	State   *GroupState
	Catalog Catalog
	Events  events.Publisher
	Now     func() time.Time
}

// NewLedgerService constructs a LedgerService.
func NewLedgerService(store kv.Store, state *GroupState, cat Catalog, p events.Publisher) *LedgerService {
	return &LedgerService{Store: store, State: state, Catalog: cat, Events: p, Now: time.Now}
}

func (s *LedgerService) tracer(ctx context.Context, name, group string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/LedgerService").Start(ctx, name,
		trace.WithAttributes(append(attrs, attribute.String("group.id", group))...),
	)
}

// Divorce removes char from user's harem and releases its owner pointer.
func (s *LedgerService) Divorce(ctx context.Context, group, user string, char int) error {
	group = normalizeGroup(group)
	ctx, span := s.tracer(ctx, "Divorce", group, attribute.String("user.id", user), attribute.Int("char.id", char))
	defer span.End()

	c := cid(char)
	err := s.State.withLock(group, func() error {
		partners, err := partnersOf(ctx, s.Store, group, user)
		if err != nil {
			return err
		}
		if !contains(partners, c) {
			return ErrNotOwned
		}
		partners = without(partners, c)
		if err := saveList(ctx, s.Store, partnersKey(group, user), partners); err != nil {
			return err
		}
		if err := releaseOwner(ctx, s.Store, group, c, user); err != nil {
			return err
		}
		return repairFavorite(ctx, s.Store, group, user, partners)
	})
	if err != nil {
		return err
	}

	ledgerOpsTotal.WithLabelValues("divorce").Inc()
	publish(ctx, s.Events, events.Event{
		Type: events.CharacterDivorced, Group: group,
		Users: []string{user}, Characters: []string{c}, At: s.Now(),
	})
	return nil
}

// ForceDivorce clears char's owner unconditionally and removes it from every
// member's harem. It returns the users whose harem changed.
func (s *LedgerService) ForceDivorce(ctx context.Context, group string, char int) ([]string, error) {
	group = normalizeGroup(group)
	ctx, span := s.tracer(ctx, "ForceDivorce", group, attribute.Int("char.id", char))
	defer span.End()

	members, err := s.State.Members(ctx, group)
	if err != nil {
		return nil, err
	}

	c := cid(char)
	var affected []string
	err = s.State.withLock(group, func() error {
		if err := clearOwner(ctx, s.Store, group, c); err != nil {
			return err
		}
		for _, u := range members {
			partners, err := partnersOf(ctx, s.Store, group, u)
			if err != nil {
				return err
			}
			if !contains(partners, c) {
				continue
			}
			partners = without(partners, c)
			if err := saveList(ctx, s.Store, partnersKey(group, u), partners); err != nil {
				return err
			}
			if err := repairFavorite(ctx, s.Store, group, u, partners); err != nil {
				return err
			}
			affected = append(affected, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ledgerOpsTotal.WithLabelValues("force_divorce").Inc()
	log.Ctx(ctx).Info().
		Str("stage", "force_divorce").
		Str("group_id", group).
		Int("char_id", char).
		Strs("affected", affected).
		Msg("character force-divorced")
	publish(ctx, s.Events, events.Event{
		Type: events.CharacterDivorced, Group: group,
		Users: affected, Characters: []string{c}, At: s.Now(),
	})
	return affected, nil
}

// ClearHarem collapses user's harem to their favorite.
func (s *LedgerService) ClearHarem(ctx context.Context, group, user string) (ClearResult, error) {
	group = normalizeGroup(group)
	ctx, span := s.tracer(ctx, "ClearHarem", group, attribute.String("user.id", user))
	defer span.End()

	var res ClearResult
	err := s.State.withLock(group, func() error {
		var err error
		res, err = s.collapse(ctx, group, user)
		return err
	})
	if err != nil {
		return ClearResult{}, err
	}

	ledgerOpsTotal.WithLabelValues("clear_harem").Inc()
	publish(ctx, s.Events, events.Event{
		Type: events.HaremCleared, Group: group, Users: []string{user}, At: s.Now(),
	})
	return res, nil
}

// MassReset collapses every member's harem to their favorite. It returns the
// number of characters released.
func (s *LedgerService) MassReset(ctx context.Context, group string) (int, error) {
	group = normalizeGroup(group)
	ctx, span := s.tracer(ctx, "MassReset", group)
	defer span.End()

	members, err := s.State.Members(ctx, group)
	if err != nil {
		return 0, err
	}

	released := 0
	err = s.State.withLock(group, func() error {
		for _, u := range members {
			res, err := s.collapse(ctx, group, u)
			if err != nil {
				return err
			}
			released += res.Released
		}
		return nil
	})
	if err != nil {
		return released, err
	}

	ledgerOpsTotal.WithLabelValues("mass_reset").Inc()
	log.Ctx(ctx).Info().
		Str("stage", "mass_reset").
		Str("group_id", group).
		Int("members", len(members)).
		Int("released", released).
		Msg("group reset")
	publish(ctx, s.Events, events.Event{Type: events.GroupReset, Group: group, At: s.Now()})
	return released, nil
}

// collapse keeps only user's favorite (when it is in the harem) and releases
// every other character. Caller holds the group lock.
func (s *LedgerService) collapse(ctx context.Context, group, user string) (ClearResult, error) {
	partners, err := partnersOf(ctx, s.Store, group, user)
	if err != nil {
		return ClearResult{}, err
	}
	fav, err := favoriteOf(ctx, s.Store, group, user)
	if err != nil {
		return ClearResult{}, err
	}

	var keep []string
	if fav != "" && contains(partners, fav) {
		keep = []string{fav}
	}
	released := 0
	for _, c := range partners {
		if contains(keep, c) {
			continue
		}
		if err := releaseOwner(ctx, s.Store, group, c, user); err != nil {
			return ClearResult{}, err
		}
		released++
	}
	if err := saveList(ctx, s.Store, partnersKey(group, user), keep); err != nil {
		return ClearResult{}, err
	}
	if err := repairFavorite(ctx, s.Store, group, user, keep); err != nil {
		return ClearResult{}, err
	}

	res := ClearResult{Released: released}
	if len(keep) == 1 {
		res.Kept = keep[0]
	}
	return res, nil
}

// Favorite marks char as user's favorite.
func (s *LedgerService) Favorite(ctx context.Context, group, user string, char int) error {
	group = normalizeGroup(group)
	ctx, span := s.tracer(ctx, "Favorite", group, attribute.String("user.id", user), attribute.Int("char.id", char))
	defer span.End()

	c := cid(char)
	err := s.State.withLock(group, func() error {
		partners, err := partnersOf(ctx, s.Store, group, user)
		if err != nil {
			return err
		}
		if !contains(partners, c) {
			return ErrNotOwned
		}
		return kv.Save(ctx, s.Store, favKey(group, user), c)
	})
	if err != nil {
		return err
	}
	ledgerOpsTotal.WithLabelValues("favorite").Inc()
	return nil
}

// Harem lists user's characters. page 0 returns everything; other pages are
// clamped to [1, TotalPages]. Ids missing from the catalog are skipped.
func (s *LedgerService) Harem(ctx context.Context, group, user string, page int) (*HaremView, error) {
	group = normalizeGroup(group)
	ctx, span := s.tracer(ctx, "Harem", group, attribute.String("user.id", user), attribute.Int("page", page))
	defer span.End()

	partners, err := partnersOf(ctx, s.Store, group, user)
	if err != nil {
		return nil, err
	}
	fav, err := favoriteOf(ctx, s.Store, group, user)
	if err != nil {
		return nil, err
	}
	if fav != "" && !contains(partners, fav) {
		// Observed a stale favorite: heal it under the lock.
		if err := s.healFavorite(ctx, group, user); err != nil {
			return nil, err
		}
		fav = ""
	}

	view := &HaremView{}
	all := make([]HaremEntry, 0, len(partners))
	for _, c := range partners {
		id, err := strconv.Atoi(c)
		if err != nil {
			continue
		}
		ch := s.Catalog.ByID(id)
		if ch == nil {
			continue
		}
		view.TotalHeat += ch.Heat
		isFav := fav == c
		if isFav {
			f := *ch
			view.Favorite = &f
		}
		all = append(all, HaremEntry{Character: *ch, Favorite: isFav})
	}
	view.Total = len(all)
	view.TotalPages = (len(all) + HaremPageSize - 1) / HaremPageSize
	if view.TotalPages < 1 {
		view.TotalPages = 1
	}

	if page == 0 {
		view.Entries = all
		return view, nil
	}
	if page < 1 {
		page = 1
	}
	if page > view.TotalPages {
		page = view.TotalPages
	}
	start := (page - 1) * HaremPageSize
	end := min(start+HaremPageSize, len(all))
	view.Page = page
	view.Entries = all[start:end]
	return view, nil
}

func (s *LedgerService) healFavorite(ctx context.Context, group, user string) error {
	return s.State.withLock(group, func() error {
		partners, err := partnersOf(ctx, s.Store, group, user)
		if err != nil {
			return err
		}
		return repairFavorite(ctx, s.Store, group, user, partners)
	})
}
