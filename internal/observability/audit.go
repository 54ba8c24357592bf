package observability

import (
	"context"
	"log/slog"

	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
)

// SecurityEvent logs an authentication or session event with the request
// actor attached. It complements, and never replaces, the persisted audit log.
func SecurityEvent(ctx context.Context, event string, attrs ...any) {
	base := []any{"event", event}
	if actor, ok := reqctx.From(ctx); ok {
		base = append(base,
			"actor_user_id", actor.UserID,
			"ip", actor.IPAddress,
		)
	}
	base = append(base, attrs...)
	slog.InfoContext(ctx, "security_event", base...)
}
