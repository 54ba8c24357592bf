package service

import (
	"fmt"
	"time"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/security"
)

type TokenPair struct {
	AccessToken           string `json:"accessToken"`
	RefreshToken          string `json:"refreshToken"`
	RefreshTokenExpiresIn int64  `json:"refreshTokenExpiresIn,omitempty"`
	RememberMe            bool   `json:"rememberMe"`
}

// TokenService mints the access/refresh pair bound to one session.
type TokenService struct {
	jwtMgr *security.JWTManager
}

func NewTokenService(jwtMgr *security.JWTManager) *TokenService {
	return &TokenService{jwtMgr: jwtMgr}
}

func (s *TokenService) RefreshTTL() time.Duration { return s.jwtMgr.RefreshTTL() }

func (s *TokenService) RefreshTokenExpiry() time.Time { return s.jwtMgr.RefreshTokenExpiry() }

// Mint signs a pair for the session. refreshTokenID must be the id the
// session row stores as its current refresh token.
func (s *TokenService) Mint(user *domain.User, session *domain.Session, refreshTokenID string) (*TokenPair, error) {
	sub := security.TokenSubject{UserID: user.ID, RoleID: user.RoleID, SessionID: session.ID}
	access, err := s.jwtMgr.SignAccessToken(sub)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	sub.TokenID = refreshTokenID
	refresh, err := s.jwtMgr.SignRefreshToken(sub)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	pair := &TokenPair{AccessToken: access, RefreshToken: refresh, RememberMe: session.RememberMe}
	if session.RememberMe {
		pair.RefreshTokenExpiresIn = int64(s.jwtMgr.RefreshTTL().Seconds())
	}
	return pair, nil
}
