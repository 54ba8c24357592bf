package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
)

func TestLoginCreatesSessionBoundTokens(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "clin@example.com", domain.RoleCodeClinician)

	res, err := env.auth.Login(anonymousCtx(), LoginInput{Email: " Clin@Example.com ", Password: testPassword, RememberMe: true})
	require.NoError(t, err)
	require.True(t, res.Tokens.RememberMe)
	require.Positive(t, res.Tokens.RefreshTokenExpiresIn)

	claims, err := env.jwt.ParseAccessToken(res.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, res.Session.ID, claims.SessionID)
	require.Equal(t, u.RoleID, claims.RoleID)

	stored, err := env.sessRepo.FindByID(anonymousCtx(), res.Session.ID)
	require.NoError(t, err)
	require.Equal(t, "10.9.9.9", stored.IPAddress)
	require.Equal(t, "anon-test", stored.UserAgent)

	rows := env.auditRows(t, domain.AuditActionCreate, "Session", res.Session.ID)
	require.Len(t, rows, 1)
	require.Equal(t, domain.SystemUserID, rows[0].UserID)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "clin@example.com", domain.RoleCodeClinician)

	_, unknownErr := env.auth.Login(anonymousCtx(), LoginInput{Email: "nobody@example.com", Password: testPassword})
	_, wrongErr := env.auth.Login(anonymousCtx(), LoginInput{Email: "clin@example.com", Password: "wrong-password"})
	_, systemErr := env.auth.Login(anonymousCtx(), LoginInput{Email: "system@clinical.local", Password: testPassword})

	for _, err := range []error{unknownErr, wrongErr, systemErr} {
		appErr, ok := apperr.As(err)
		require.True(t, ok, "expected typed error, got %v", err)
		require.Equal(t, apperr.CodeInvalidCredentials, appErr.Code)
		require.Equal(t, "invalid email or password", appErr.Message)
	}
	require.Zero(t, env.auditCount(t))
}

func TestAccessTokenOfRevokedSessionFailsStatefulValidation(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "clin@example.com", domain.RoleCodeClinician)
	res, err := env.auth.Login(anonymousCtx(), LoginInput{Email: "clin@example.com", Password: testPassword})
	require.NoError(t, err)

	principal, err := env.auth.ValidateAccessToken(anonymousCtx(), res.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, res.Session.ID, principal.SessionID)

	_, err = env.sessRepo.RevokeByID(anonymousCtx(), res.Session.ID, "test")
	require.NoError(t, err)

	_, err = env.jwt.ParseAccessToken(res.Tokens.AccessToken)
	require.NoError(t, err, "cryptographic validity is independent of the session")
	_, err = env.auth.ValidateAccessToken(anonymousCtx(), res.Tokens.AccessToken)
	require.True(t, apperr.IsKind(err, apperr.KindSessionExpired), "got %v", err)

	_, err = env.auth.ValidateAccessToken(anonymousCtx(), "not-a-token")
	require.True(t, apperr.IsKind(err, apperr.KindInvalidToken), "got %v", err)
}

func TestRefreshRejectsDeadSessions(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "clin@example.com", domain.RoleCodeClinician)
	res, err := env.auth.Login(anonymousCtx(), LoginInput{Email: "clin@example.com", Password: testPassword})
	require.NoError(t, err)

	_, err = env.sessRepo.RevokeByID(anonymousCtx(), res.Session.ID, "test")
	require.NoError(t, err)

	out, err := env.auth.Refresh(anonymousCtx(), res.Tokens.RefreshToken)
	require.Nil(t, out)
	require.True(t, apperr.IsKind(err, apperr.KindSessionExpired), "got %v", err)
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "clin@example.com", domain.RoleCodeClinician)
	first, err := env.auth.Login(anonymousCtx(), LoginInput{Email: "clin@example.com", Password: testPassword})
	require.NoError(t, err)
	other, err := env.auth.Login(anonymousCtx(), LoginInput{Email: "clin@example.com", Password: testPassword})
	require.NoError(t, err)

	rotated, err := env.auth.Refresh(anonymousCtx(), first.Tokens.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, first.Session.ID, rotated.Session.ID)
	require.NotEqual(t, first.Tokens.RefreshToken, rotated.Tokens.RefreshToken)
	require.Len(t, env.auditRows(t, domain.AuditActionUpdate, "Session", first.Session.ID), 1)

	env.auth.now = func() time.Time { return time.Now().UTC().Add(refreshRaceGrace + time.Minute) }
	_, err = env.auth.Refresh(anonymousCtx(), first.Tokens.RefreshToken)
	require.True(t, apperr.IsKind(err, apperr.KindSecurityBreach), "got %v", err)

	active, err := env.sessRepo.ListActiveByUserID(anonymousCtx(), u.ID)
	require.NoError(t, err)
	require.Empty(t, active, "reuse must end every session of the user")

	_, err = env.auth.Refresh(anonymousCtx(), rotated.Tokens.RefreshToken)
	require.True(t, apperr.IsKind(err, apperr.KindSessionExpired), "got %v", err)
	_, err = env.auth.ValidateAccessToken(anonymousCtx(), other.Tokens.AccessToken)
	require.True(t, apperr.IsKind(err, apperr.KindSessionExpired), "got %v", err)
}

func TestRefreshOfOlderTokenIsReuse(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "clin@example.com", domain.RoleCodeClinician)
	first, err := env.auth.Login(anonymousCtx(), LoginInput{Email: "clin@example.com", Password: testPassword})
	require.NoError(t, err)
	second, err := env.auth.Refresh(anonymousCtx(), first.Tokens.RefreshToken)
	require.NoError(t, err)
	_, err = env.auth.Refresh(anonymousCtx(), second.Tokens.RefreshToken)
	require.NoError(t, err)

	_, err = env.auth.Refresh(anonymousCtx(), first.Tokens.RefreshToken)
	require.True(t, apperr.IsKind(err, apperr.KindSecurityBreach), "got %v", err)
	active, err := env.sessRepo.ListActiveByUserID(anonymousCtx(), u.ID)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestConcurrentRefreshKeepsWinnerSession(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "clin@example.com", domain.RoleCodeClinician)
	login, err := env.auth.Login(anonymousCtx(), LoginInput{Email: "clin@example.com", Password: testPassword})
	require.NoError(t, err)

	const callers = 4
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*LoginResult
		losses  []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.auth.Refresh(anonymousCtx(), login.Tokens.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				losses = append(losses, err)
				return
			}
			winners = append(winners, res)
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1, "losses=%v", losses)
	for _, err := range losses {
		require.True(t, apperr.IsKind(err, apperr.KindInvalidToken), "got %v", err)
	}
	principal, err := env.auth.ValidateAccessToken(anonymousCtx(), winners[0].Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, principal.UserID)

	_, err = env.auth.Refresh(anonymousCtx(), winners[0].Tokens.RefreshToken)
	require.NoError(t, err, "winner's refresh token must stay usable")
}

func TestLogoutRevokesSessionAndNeverFails(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "clin@example.com", domain.RoleCodeClinician)
	res, err := env.auth.Login(anonymousCtx(), LoginInput{Email: "clin@example.com", Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(anonymousCtx(), "", ""))
	require.NoError(t, env.auth.Logout(anonymousCtx(), "garbage", "garbage"))
	require.NoError(t, env.auth.Logout(anonymousCtx(), res.Tokens.AccessToken, ""))

	_, err = env.auth.ValidateAccessToken(anonymousCtx(), res.Tokens.AccessToken)
	require.True(t, apperr.IsKind(err, apperr.KindSessionExpired), "got %v", err)

	rows := env.auditRows(t, domain.AuditActionRevokeSession, "Session", res.Session.ID)
	require.Len(t, rows, 1)
	require.Equal(t, u.ID, rows[0].UserID)
	require.NotEmpty(t, rows[0].OldValues)

	require.NoError(t, env.auth.Logout(anonymousCtx(), res.Tokens.AccessToken, ""))
	require.Len(t, env.auditRows(t, domain.AuditActionRevokeSession, "Session", res.Session.ID), 1)
}

func TestLogoutFallsBackToRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "clin@example.com", domain.RoleCodeClinician)
	res, err := env.auth.Login(anonymousCtx(), LoginInput{Email: "clin@example.com", Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(anonymousCtx(), "", res.Tokens.RefreshToken))
	_, err = env.auth.Refresh(anonymousCtx(), res.Tokens.RefreshToken)
	require.True(t, apperr.IsKind(err, apperr.KindSessionExpired), "got %v", err)
}
