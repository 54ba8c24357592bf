package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// ErrInvalidToken covers every verification failure. Expired and tampered
// tokens are deliberately indistinguishable to callers.
var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	TokenType string `json:"token_type"`
	RoleID    uint   `json:"role_id"`
	SessionID uint   `json:"sid"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

// TokenSubject is what both token kinds carry. TokenID becomes the JWT id;
// when empty a random one is generated.
type TokenSubject struct {
	UserID    uint
	RoleID    uint
	SessionID uint
	TokenID   string
}

type JWTManager struct {
	issuer        string
	audience      string
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewJWTManager(issuer, audience, accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTManager {
	if accessTTL == 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL == 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &JWTManager{
		issuer:        issuer,
		audience:      audience,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (m *JWTManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *JWTManager) RefreshTTL() time.Duration { return m.refreshTTL }

// RefreshTokenExpiry is the absolute expiry of a refresh token minted now.
func (m *JWTManager) RefreshTokenExpiry() time.Time {
	return m.now().UTC().Add(m.refreshTTL)
}

func (m *JWTManager) SignAccessToken(sub TokenSubject) (string, error) {
	return m.sign(sub, tokenTypeAccess, m.accessSecret, m.accessTTL)
}

func (m *JWTManager) SignRefreshToken(sub TokenSubject) (string, error) {
	return m.sign(sub, tokenTypeRefresh, m.refreshSecret, m.refreshTTL)
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	return m.parse(raw, m.accessSecret, tokenTypeAccess)
}

func (m *JWTManager) ParseRefreshToken(raw string) (*Claims, error) {
	return m.parse(raw, m.refreshSecret, tokenTypeRefresh)
}

func (m *JWTManager) sign(sub TokenSubject, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	if sub.UserID == 0 {
		return "", fmt.Errorf("sign %s token: missing subject", tokenType)
	}
	jti := sub.TokenID
	if jti == "" {
		jti = uuid.NewString()
	}
	now := m.now()
	claims := Claims{
		TokenType: tokenType,
		RoleID:    sub.RoleID,
		SessionID: sub.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatUint(uint64(sub.UserID), 10),
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *JWTManager) parse(raw string, secret []byte, tokenType string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience), jwt.WithTimeFunc(m.now))
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenType || claims.SessionID == 0 {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
