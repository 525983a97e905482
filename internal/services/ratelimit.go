package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/domain"
	"github.com/lovelyMokou/astrbot-plugin-mudae-qq-mokou/internal/kv"
)

// MinDrawCooldown is the floor applied to every group's draw cooldown.
const MinDrawCooldown = 2 * time.Second

// Verdict is the rate limiter's answer for one draw attempt.
type Verdict int

const (
	Allow Verdict = iota
	Throttled
	LimitReached
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Throttled:
		return "throttled"
	case LimitReached:
		return "limit_reached"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Decision is the outcome of DrawLimiter.Check.
type Decision struct {
	Verdict Verdict
	// Wait is the whole seconds left on the cooldown when Throttled.
	Wait int
	// Notify is true on the first LimitReached of a bucket only.
	Notify bool
	// Bucket and Count are what Commit persists for an allowed draw.
	Bucket string
	Count  int
	// Remaining draws in the bucket after this one.
	Remaining int
}

// DrawLimiter combines the per user hourly bucket with the per group
// cooldown.
type DrawLimiter struct {
	Store kv.Store
	State *GroupState
	// Location defines the wall clock the hourly buckets follow.
	Location *time.Location
}

// NewDrawLimiter returns a limiter using loc (time.Local when nil).
func NewDrawLimiter(store kv.Store, state *GroupState, loc *time.Location) *DrawLimiter {
	if loc == nil {
		loc = time.Local
	}
	return &DrawLimiter{Store: store, State: state, Location: loc}
}

// Bucket names the one-hour window containing now as "<year>-<yday>-<hour>".
func (l *DrawLimiter) Bucket(now time.Time) string {
	t := now.In(l.Location)
	return fmt.Sprintf("%d-%d-%d", t.Year(), t.YearDay(), t.Hour())
}

// Check evaluates a draw attempt. It has one side effect: the first attempt
// past the hourly limit persists count+1 so the notice fires once per
// bucket.
func (l *DrawLimiter) Check(ctx context.Context, group, user string, now time.Time) (Decision, error) {
	group = normalizeGroup(group)
	ctx, span := otel.Tracer("services/DrawLimiter").Start(ctx, "Check",
		trace.WithAttributes(
			attribute.String("group.id", group),
			attribute.String("user.id", user),
		),
	)
	defer span.End()

	cfg, err := l.State.Config(ctx, group)
	if err != nil {
		return Decision{}, err
	}

	cooldown := time.Duration(cfg.DrawCooldown) * time.Second
	if cooldown < MinDrawCooldown {
		cooldown = MinDrawCooldown
	}
	last, err := kv.Load(ctx, l.Store, lastDrawKey(group), int64(0))
	if err != nil {
		return Decision{}, err
	}
	if last > 0 {
		if elapsed := now.Sub(time.Unix(0, last)); elapsed < cooldown {
			wait := int(math.Ceil((cooldown - elapsed).Seconds()))
			if wait < 1 {
				wait = 1
			}
			return Decision{Verdict: Throttled, Wait: wait}, nil
		}
	}

	bucket := l.Bucket(now)
	status, err := kv.Load(ctx, l.Store, drawStatusKey(group, user), domain.DrawStatus{})
	if err != nil {
		return Decision{}, err
	}
	count := 0
	if status.Bucket == bucket {
		count = status.Count
	}

	if count >= cfg.DrawHourlyLimit {
		d := Decision{Verdict: LimitReached, Bucket: bucket, Count: count}
		if count == cfg.DrawHourlyLimit {
			over := domain.DrawStatus{Bucket: bucket, Count: count + 1}
			if err := kv.Save(ctx, l.Store, drawStatusKey(group, user), over); err != nil {
				return Decision{}, err
			}
			d.Notify = true
		}
		return d, nil
	}

	return Decision{
		Verdict:   Allow,
		Bucket:    bucket,
		Count:     count + 1,
		Remaining: cfg.DrawHourlyLimit - (count + 1),
	}, nil
}

// Commit consumes an allowed draw. It must only run after the draw's
// announcement was delivered.
func (l *DrawLimiter) Commit(ctx context.Context, group, user string, d Decision, now time.Time) error {
	if d.Verdict != Allow {
		return fmt.Errorf("commit %s decision: %w", d.Verdict, ErrInvalidArgument)
	}
	group = normalizeGroup(group)
	status := domain.DrawStatus{Bucket: d.Bucket, Count: d.Count}
	if err := kv.Save(ctx, l.Store, drawStatusKey(group, user), status); err != nil {
		return err
	}
	return kv.Save(ctx, l.Store, lastDrawKey(group), now.UnixNano())
}

// Refresh deletes the user's draw status, restoring the full hourly quota.
func (l *DrawLimiter) Refresh(ctx context.Context, group, user string) error {
	return kv.Remove(ctx, l.Store, drawStatusKey(normalizeGroup(group), user))
}
