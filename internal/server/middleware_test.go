package server

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"rentonmap/internal/identity"
	"rentonmap/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_ProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, nil)
	u := testutil.CreateUser(t, env.db, "Asha")

	forge := func(issuer, audience string, exp time.Duration) string {
		claims := jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(u.ID), 10),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(exp)),
		}
		str, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return str
	}

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"valid", env.token(t, u.ID), http.StatusOK},
		{"hand-signed with expected claims", forge(identity.Issuer, identity.Audience, time.Hour), http.StatusOK},
		{"expired", forge(identity.Issuer, identity.Audience, -time.Hour), http.StatusUnauthorized},
		{"wrong issuer", forge("someone-else", identity.Audience, time.Hour), http.StatusUnauthorized},
		{"wrong audience", forge(identity.Issuer, "other-client", time.Hour), http.StatusUnauthorized},
		{"garbage", "not-a-jwt", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodGet, "/api/user/profile", tt.token, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, "UNAUTHORIZED", body["code"])
			}
		})
	}
}

func TestServer_RevokedTokenRejected(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := newTestEnv(t, rdb)
	u := testutil.CreateUser(t, env.db, "Asha")
	tok := env.token(t, u.ID)

	resp, _ := env.do(t, http.MethodPost, "/api/auth/logout", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, "/api/user/profile", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Token has been revoked", body["error"])

	// Revocation lookups that fail do not lock users out.
	mr.Close()
	resp, _ = env.do(t, http.MethodGet, "/api/user/profile", env.token(t, u.ID), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
