package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/observability"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
)

const RedactedValue = "[REDACTED]"

var sensitiveAuditKeys = map[string]struct{}{
	"password":        {},
	"passwordhash":    {},
	"newpassword":     {},
	"currentpassword": {},
	"token":           {},
	"tokenhash":       {},
	"accesstoken":     {},
	"refreshtoken":    {},
	"refreshtokenid":  {},
}

// AuditEntry describes one business action. ActorID overrides the request
// actor for flows where the acting user is only known from a credential.
type AuditEntry struct {
	ActorID    uint
	Action     domain.AuditAction
	EntityName string
	EntityID   uint
	OldValues  any
	NewValues  any
}

type AuditService struct {
	repo   repository.AuditRepository
	logger *slog.Logger
}

func NewAuditService(repo repository.AuditRepository, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{repo: repo, logger: logger}
}

// Record appends an audit row after the mutation it describes has committed.
// Failures are logged and counted but never returned.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	actor := reqctx.FromOrSystem(ctx)
	userID := entry.ActorID
	if userID == 0 {
		userID = actor.UserID
	}
	row := &domain.AuditLog{
		UserID:     userID,
		Action:     entry.Action,
		EntityName: entry.EntityName,
		EntityID:   entry.EntityID,
		OldValues:  Snapshot(entry.OldValues),
		NewValues:  Snapshot(entry.NewValues),
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
	}
	ctx = context.WithoutCancel(ctx)
	if !entry.Action.Valid() {
		s.logger.ErrorContext(ctx, "audit write skipped: unknown action", "action", entry.Action, "entity", entry.EntityName)
		observability.RecordAuditWrite(ctx, string(entry.Action), "invalid")
		return
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.ErrorContext(ctx, "audit write failed",
			"action", entry.Action,
			"entity", entry.EntityName,
			"entity_id", entry.EntityID,
			"error", err,
		)
		observability.RecordAuditWrite(ctx, string(entry.Action), "error")
		return
	}
	observability.RecordAuditWrite(ctx, string(entry.Action), "success")
}

// List pages through the audit trail, newest first.
func (s *AuditService) List(ctx context.Context, query repository.AuditListQuery) (repository.PageResult[domain.AuditLog], error) {
	return s.repo.ListPaged(ctx, query)
}

// Snapshot converts v into a JSON object with credential fields redacted.
// Maps are redacted recursively; nil yields nil.
func Snapshot(v any) map[string]any {
	if v == nil {
		return nil
	}
	if typed, ok := v.(map[string]any); ok {
		return redact(typed).(map[string]any)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"error": "unserializable"}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"value": string(raw)}
	}
	if out == nil {
		return nil
	}
	return redact(out).(map[string]any)
}

// redact returns a copy of v with every sensitive key, at any depth of maps
// and slices, replaced by RedactedValue.
func redact(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, val := range typed {
			if isSensitiveAuditKey(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = redact(val)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, val := range typed {
			out[i] = redact(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(typed))
		for i, val := range typed {
			out[i] = redact(val)
		}
		return out
	}
	return v
}

func isSensitiveAuditKey(key string) bool {
	normalized := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(key, "_", ""), "-", ""))
	_, ok := sensitiveAuditKeys[normalized]
	return ok
}
