package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/events"
)

// Setting names a tunable group configuration field.
type Setting string

const (
	SettingDrawCooldown    Setting = "draw_cooldown"
	SettingDrawHourlyLimit Setting = "draw_hourly_limit"
	SettingHaremMaxSize    Setting = "harem_max_size"
	SettingDrawScope       Setting = "draw_scope"
)

// Bounds applied by SetConfig. Values above a Max* ceiling are rejected for
// cooldown and hourly limit and clamped for the others; values below a
// floor are clamped.
const (
	MaxDrawCooldown    = 600
	MinDrawHourlyLimit = 1
	MaxDrawHourlyLimit = 10
	MinHaremMaxSize    = 5
	MaxHaremMaxSize    = 50
	MinDrawScope       = 5000
	MaxDrawScope       = 20000
)

// AdminService changes group configuration and resets draw quotas.
// Authorization is enforced by the caller.
type AdminService struct {
	State   *GroupState
	Limiter *DrawLimiter
	Events  events.Publisher
}

// NewAdminService constructs an AdminService.
func NewAdminService(state *GroupState, lim *DrawLimiter, p events.Publisher) *AdminService {
	return &AdminService{State: state, Limiter: lim, Events: p}
}

// Normalize validates value for setting and returns the value that would be
// stored.
func Normalize(setting Setting, value int) (int, error) {
	switch setting {
	case SettingDrawCooldown:
		if value > MaxDrawCooldown {
			return 0, fmt.Errorf("%s %d > %d: %w", setting, value, MaxDrawCooldown, ErrValueOutOfRange)
		}
		return max(value, 0), nil
	case SettingDrawHourlyLimit:
		if value > MaxDrawHourlyLimit {
			return 0, fmt.Errorf("%s %d > %d: %w", setting, value, MaxDrawHourlyLimit, ErrValueOutOfRange)
		}
		return max(value, MinDrawHourlyLimit), nil
	case SettingHaremMaxSize:
		return min(max(value, MinHaremMaxSize), MaxHaremMaxSize), nil
	case SettingDrawScope:
		return min(max(value, MinDrawScope), MaxDrawScope), nil
	default:
		return 0, fmt.Errorf("%q: %w", setting, ErrUnknownSetting)
	}
}

// SetConfig stores value for setting after validation and returns the
// applied value.
func (s *AdminService) SetConfig(ctx context.Context, group string, setting Setting, value int) (int, error) {
	group = normalizeGroup(group)
	applied, err := Normalize(setting, value)
	if err != nil {
		return 0, err
	}

	_, err = s.State.UpdateConfig(ctx, group, func(c *domain.GroupConfig) {
		switch setting {
		case SettingDrawCooldown:
			c.DrawCooldown = applied
		case SettingDrawHourlyLimit:
			c.DrawHourlyLimit = applied
		case SettingHaremMaxSize:
			c.HaremMaxSize = applied
		case SettingDrawScope:
			c.DrawScope = applied
		}
	})
	if err != nil {
		return 0, err
	}

	log.Ctx(ctx).Info().
		Str("stage", "config_set").
		Str("group_id", group).
		Str("setting", string(setting)).
		Int("value", applied).
		Msg("group config updated")
	publish(ctx, s.Events, events.Event{Type: events.ConfigChanged, Group: group, At: time.Now()})
	return applied, nil
}

// Config returns the group's effective configuration.
func (s *AdminService) Config(ctx context.Context, group string) (domain.GroupConfig, error) {
	return s.State.Config(ctx, group)
}

// Refresh restores user's full hourly draw quota.
func (s *AdminService) Refresh(ctx context.Context, group, user string) error {
	if user == "" {
		return ErrInvalidArgument
	}
	return s.Limiter.Refresh(ctx, group, user)
}
