package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/imgbatch/internal/model"
)

var (
	// ErrQuotaExceeded is the user-facing "come back tomorrow or upgrade" condition.
	ErrQuotaExceeded = errors.New("daily quota exceeded")
	ErrNoBackend     = errors.New("registered quota requires a backend connection")
)

// Decision is the result of an admission request.
type Decision struct {
	Allowed bool  `json:"allowed"`
	Quota   Quota `json:"quota"`
}

// counter owns one actor class's consumption record. Admit must perform the
// reset-check-increment sequence as one step.
type counter interface {
	Admit(ctx context.Context, actor model.Actor, n int, today string) (Decision, error)
	Get(ctx context.Context, actor model.Actor, today string) (Quota, error)
}

// Gate decides whether an actor may add n more items today.
// Anonymous actors are counted locally; registered actors are counted by the backend.
type Gate struct {
	anonymous  counter
	registered counter
	loc        *time.Location
	now        func() time.Time
}

// NewGate creates a Gate. registered may be nil when no backend is configured,
// in which case registered actors are refused with ErrNoBackend.
func NewGate(anonymous, registered counter, loc *time.Location, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}

	return &Gate{
		anonymous:  anonymous,
		registered: registered,
		loc:        loc,
		now:        now,
	}
}

// Today returns the current calendar day in the reporting timezone.
func (g *Gate) Today() string {
	return Day(g.now(), g.loc)
}

func (g *Gate) counterFor(actor model.Actor) (counter, error) {
	if actor.Registered() {
		if g.registered == nil {
			return nil, ErrNoBackend
		}
		return g.registered, nil
	}

	return g.anonymous, nil
}

// Admit evaluates a request for n items and, when allowed, consumes them.
func (g *Gate) Admit(ctx context.Context, actor model.Actor, n int) (Decision, error) {
	c, err := g.counterFor(actor)
	if err != nil {
		return Decision{}, err
	}

	d, err := c.Admit(ctx, actor, n, g.Today())
	if err != nil {
		return Decision{}, fmt.Errorf("failed to admit %d items: %w", n, err)
	}

	zlog.Logger.Debug().
		Str("actor_kind", string(actor.Kind)).
		Int("requested", n).
		Bool("allowed", d.Allowed).
		Int("used_today", d.Quota.UsedToday).
		Int("daily_limit", d.Quota.DailyLimit).
		Msg("quota decision")

	return d, nil
}

// Check is Admit with the denial turned into ErrQuotaExceeded.
func (g *Gate) Check(ctx context.Context, actor model.Actor, n int) (Quota, error) {
	d, err := g.Admit(ctx, actor, n)
	if err != nil {
		return Quota{}, err
	}

	if !d.Allowed {
		return d.Quota, fmt.Errorf("%w: %d of %d used, %d requested",
			ErrQuotaExceeded, d.Quota.UsedToday, d.Quota.DailyLimit, n)
	}

	return d.Quota, nil
}

// Status returns the actor's current record without consuming anything.
func (g *Gate) Status(ctx context.Context, actor model.Actor) (Quota, error) {
	c, err := g.counterFor(actor)
	if err != nil {
		return Quota{}, err
	}

	return c.Get(ctx, actor, g.Today())
}
