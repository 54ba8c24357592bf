// Package reqctx carries the acting identity of an inbound request through
// its call graph on the request's context.Context.
//
// An Actor is established once at the HTTP boundary, including for
// unauthenticated requests, and enriched after token validation. A zero user
// id is normalized to domain.SystemUserID when the actor is stored, so code
// downstream never branches on anonymous callers.
package reqctx

import (
	"context"
	"errors"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"
)

// ErrNoActor signals a use-case invoked outside any request scope.
var ErrNoActor = errors.New("reqctx: no actor in context")

type actorKey struct{}

type Actor struct {
	UserID    uint
	RoleID    uint
	RoleCode  string
	SessionID uint
	IPAddress string
	UserAgent string
}

func (a Actor) IsAnonymous() bool { return a.UserID == domain.SystemUserID && a.RoleID == 0 }

func (a Actor) IsAdmin() bool { return a.RoleCode == domain.RoleCodeAdmin }

func WithActor(ctx context.Context, actor Actor) context.Context {
	if actor.UserID == 0 {
		actor.UserID = domain.SystemUserID
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

func From(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// MustFrom returns the request actor and panics when none was established.
// A missing actor is a wiring bug, not a runtime condition.
func MustFrom(ctx context.Context) Actor {
	a, ok := From(ctx)
	if !ok {
		panic(ErrNoActor)
	}
	return a
}

// FromOrSystem returns the request actor, or the system actor when none was
// established (background jobs, CLI commands).
func FromOrSystem(ctx context.Context) Actor {
	if a, ok := From(ctx); ok {
		return a
	}
	return Actor{UserID: domain.SystemUserID, RoleCode: domain.RoleCodeSystem}
}

func IsAdmin(ctx context.Context) bool {
	a, ok := From(ctx)
	return ok && a.IsAdmin()
}

// UserID returns the normalized acting user id, defaulting to the system actor.
func UserID(ctx context.Context) uint {
	return FromOrSystem(ctx).UserID
}
