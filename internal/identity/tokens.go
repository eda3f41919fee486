// Package identity handles external sign-in and the API's bearer tokens.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	Issuer   = "rentonmap-api"
	Audience = "rentonmap-client"

	stateAudience = "rentonmap-oauth-state"
	stateTTL      = 10 * time.Minute
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrInvalidState = errors.New("invalid oauth state")
)

// Claims are the verified contents of an access token.
type Claims struct {
	UserID    uint
	JTI       string
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies HS256 access and OAuth state tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. ttl applies to access tokens.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue creates a signed access token for the user.
func (t *TokenIssuer) Issue(userID uint) (string, *Claims, error) {
	if len(t.secret) == 0 {
		return "", nil, fmt.Errorf("JWT secret not configured")
	}

	now := t.now()
	claims := &Claims{
		UserID:    userID,
		JTI:       uuid.NewString(),
		ExpiresAt: now.Add(t.ttl),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    Issuer,
		Audience:  jwt.ClaimStrings{Audience},
		ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        claims.JTI,
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return signed, claims, nil
}

// Verify parses an access token and checks signature, expiry, issuer and audience.
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	var registered jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &registered, t.keyFunc,
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := strconv.ParseUint(registered.Subject, 10, 32)
	if err != nil || userID == 0 {
		return nil, fmt.Errorf("%w: invalid subject", ErrInvalidToken)
	}

	claims := &Claims{UserID: uint(userID), JTI: registered.ID}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}

// IssueState creates a short-lived signed value for the OAuth state parameter.
func (t *TokenIssuer) IssueState() (string, error) {
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    Issuer,
		Audience:  jwt.ClaimStrings{stateAudience},
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	})
	return token.SignedString(t.secret)
}

// VerifyState checks a state value produced by IssueState.
func (t *TokenIssuer) VerifyState(state string) error {
	_, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, t.keyFunc,
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return nil
}

func (t *TokenIssuer) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
	return t.secret, nil
}
