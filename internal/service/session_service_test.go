package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
)

func withSession(ctx context.Context, sessionID uint) context.Context {
	actor := reqctx.MustFrom(ctx)
	actor.SessionID = sessionID
	return reqctx.WithActor(ctx, actor)
}

func TestAdminRevokeAuditsPreImageOnce(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "admin@example.com", domain.RoleCodeAdmin)
	env.createUser(t, "clin@example.com", domain.RoleCodeClinician)
	login, err := env.auth.Login(anonymousCtx(), LoginInput{Email: "clin@example.com", Password: testPassword})
	require.NoError(t, err)

	ctx := ctxFor(admin)
	require.NoError(t, env.sessions.RevokeSession(ctx, login.Session.ID))
	require.NoError(t, env.sessions.RevokeSession(ctx, login.Session.ID))

	rows := env.auditRows(t, domain.AuditActionRevokeSession, "Session", login.Session.ID)
	require.Len(t, rows, 1)
	require.Equal(t, admin.ID, rows[0].UserID)
	require.Nil(t, rows[0].OldValues["deleted_at"], "pre-image is the active session")
	require.EqualValues(t, login.Session.UserID, rows[0].OldValues["user_id"])

	_, err = env.auth.Refresh(anonymousCtx(), login.Tokens.RefreshToken)
	require.True(t, apperr.IsKind(err, apperr.KindSessionExpired))

	err = env.sessions.RevokeSession(ctx, 9999)
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestListSessionsMarksCurrentAndRevokeAll(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createUser(t, "admin@example.com", domain.RoleCodeAdmin)
	u := env.createUser(t, "clin@example.com", domain.RoleCodeClinician)
	a, err := env.auth.Login(anonymousCtx(), LoginInput{Email: "clin@example.com", Password: testPassword})
	require.NoError(t, err)
	_, err = env.auth.Login(anonymousCtx(), LoginInput{Email: "clin@example.com", Password: testPassword})
	require.NoError(t, err)

	views, err := env.sessions.ListActiveSessions(ctxFor(u), u.ID, a.Session.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	current := 0
	for _, v := range views {
		if v.IsCurrent {
			current++
			require.Equal(t, a.Session.ID, v.ID)
		}
	}
	require.Equal(t, 1, current)

	listing, err := env.sessions.ListForUser(ctxFor(admin), u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, listing.User.Email)
	require.Len(t, listing.Sessions, 2)

	n, err := env.sessions.RevokeAllForUser(ctxFor(admin), u.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Len(t, env.auditRows(t, domain.AuditActionRevokeSession, "User", u.ID), 1)

	_, err = env.sessions.ListForUser(ctxFor(admin), 4242)
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
