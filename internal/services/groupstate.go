package services

import (
	"context"
	"sync"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/kv"
)

// GroupState caches each group's configuration and member set and owns the
// per-group game lock.
//
// Caching is read-through on first access and write-through on mutation,
// with no expiry. It assumes a single process owns the store; several
// instances sharing one store would serve stale configs and member sets.
type GroupState struct {
	Store    kv.Store
	Defaults domain.GroupConfig

	mu     sync.Mutex
	groups map[string]*groupEntry
}

// groupEntry is created once per group id and never removed; growth is
// bounded by the number of distinct groups.
type groupEntry struct {
	// game serializes compound mutations of the group's ledger.
	game sync.Mutex

	// mu guards the cached fields below, including their hydration and
	// write-through, so one group's store I/O never blocks another group.
	mu         sync.Mutex
	cfgLoaded  bool
	cfg        domain.GroupConfig
	memLoaded  bool
	memberList []string
	memberSet  map[string]struct{}
}

// NewGroupState returns a GroupState over store. Zero fields of defaults
// fall back to hourly limit 5 and harem size 10.
func NewGroupState(store kv.Store, defaults domain.GroupConfig) *GroupState {
	if defaults.DrawHourlyLimit <= 0 {
		defaults.DrawHourlyLimit = 5
	}
	if defaults.HaremMaxSize <= 0 {
		defaults.HaremMaxSize = 10
	}
	return &GroupState{
		Store:    store,
		Defaults: defaults,
		groups:   make(map[string]*groupEntry),
	}
}

func (s *GroupState) entry(group string) *groupEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.groups[group]
	if !ok {
		e = &groupEntry{}
		s.groups[group] = e
	}
	return e
}

// Lock returns the group's game lock. Callers must not hold it across an
// outbound message send.
func (s *GroupState) Lock(group string) *sync.Mutex {
	return &s.entry(normalizeGroup(group)).game
}

// withLock runs fn while holding the group's game lock.
func (s *GroupState) withLock(group string, fn func() error) error {
	l := s.Lock(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// RawConfig returns the stored configuration without defaults applied.
func (s *GroupState) RawConfig(ctx context.Context, group string) (domain.GroupConfig, error) {
	group = normalizeGroup(group)
	e := s.entry(group)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfgLoaded {
		cfg, err := kv.Load(ctx, s.Store, configKey(group), domain.GroupConfig{})
		if err != nil {
			return domain.GroupConfig{}, err
		}
		e.cfg = cfg
		e.cfgLoaded = true
	}
	return e.cfg, nil
}

// Config returns the effective configuration: stored values with process
// defaults filling the unset fields.
func (s *GroupState) Config(ctx context.Context, group string) (domain.GroupConfig, error) {
	raw, err := s.RawConfig(ctx, group)
	if err != nil {
		return domain.GroupConfig{}, err
	}
	return raw.Resolve(s.Defaults), nil
}

// UpdateConfig applies fn to the stored configuration and writes the result
// through to the store. The cache only changes if the write succeeds.
func (s *GroupState) UpdateConfig(ctx context.Context, group string, fn func(*domain.GroupConfig)) (domain.GroupConfig, error) {
	group = normalizeGroup(group)
	if _, err := s.RawConfig(ctx, group); err != nil {
		return domain.GroupConfig{}, err
	}

	e := s.entry(group)
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.cfg
	fn(&next)
	if err := kv.Save(ctx, s.Store, configKey(group), next); err != nil {
		return domain.GroupConfig{}, err
	}
	e.cfg = next
	return next.Resolve(s.Defaults), nil
}

func (s *GroupState) loadMembersLocked(ctx context.Context, group string, e *groupEntry) error {
	if e.memLoaded {
		return nil
	}
	list, err := kv.Load(ctx, s.Store, userListKey(group), []string{})
	if err != nil {
		return err
	}
	e.memberList = make([]string, 0, len(list))
	e.memberSet = make(map[string]struct{}, len(list))
	for _, u := range list {
		if _, dup := e.memberSet[u]; dup || u == "" {
			continue
		}
		e.memberSet[u] = struct{}{}
		e.memberList = append(e.memberList, u)
	}
	e.memLoaded = true
	return nil
}

// Members returns the group's known members in first-seen order.
func (s *GroupState) Members(ctx context.Context, group string) ([]string, error) {
	group = normalizeGroup(group)
	e := s.entry(group)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.loadMembersLocked(ctx, group, e); err != nil {
		return nil, err
	}
	out := make([]string, len(e.memberList))
	copy(out, e.memberList)
	return out, nil
}

// IsMember reports whether user has been seen in group.
func (s *GroupState) IsMember(ctx context.Context, group, user string) (bool, error) {
	group = normalizeGroup(group)
	e := s.entry(group)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.loadMembersLocked(ctx, group, e); err != nil {
		return false, err
	}
	_, ok := e.memberSet[user]
	return ok, nil
}

// Touch records user as a member of group. The member list is written
// through only when the user is new.
func (s *GroupState) Touch(ctx context.Context, group, user string) error {
	if user == "" {
		return ErrInvalidArgument
	}
	group = normalizeGroup(group)
	e := s.entry(group)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.loadMembersLocked(ctx, group, e); err != nil {
		return err
	}
	if _, ok := e.memberSet[user]; ok {
		return nil
	}

	next := append(append([]string(nil), e.memberList...), user)
	if err := kv.Save(ctx, s.Store, userListKey(group), next); err != nil {
		return err
	}
	e.memberList = next
	e.memberSet[user] = struct{}{}
	return nil
}
