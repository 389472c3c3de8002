package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-blinds/internal/common"
)

func newTestTokens(t *testing.T) *Tokens {
	t.Helper()
	tokens, err := NewTokens(Config{Secret: "super-secret-signing-key", Issuer: "backend-blinds", Audience: "blinds-web"})
	require.NoError(t, err)
	return tokens
}

func TestIssueAndVerify(t *testing.T) {
	tokens := newTestTokens(t)
	raw, err := tokens.Issue("user-1", RoleAdmin, time.Minute)
	require.NoError(t, err)

	claims, err := tokens.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, Claims{UserID: "user-1", Role: RoleAdmin}, claims)
}

func TestVerifyDefaultsRoleToCustomer(t *testing.T) {
	tokens := newTestTokens(t)
	raw, err := tokens.Issue("user-2", "", time.Minute)
	require.NoError(t, err)
	claims, err := tokens.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, RoleCustomer, claims.Role)
}

func TestVerifyRejects(t *testing.T) {
	tokens := newTestTokens(t)
	now := time.Now()

	expired, err := tokens.WithNow(func() time.Time { return now.Add(-time.Hour) }).Issue("user-1", "", time.Minute)
	require.NoError(t, err)
	tokens.WithNow(time.Now)

	other, err := NewTokens(Config{Secret: "super-secret-signing-key", Issuer: "someone-else", Audience: "blinds-web"})
	require.NoError(t, err)
	wrongIssuer, err := other.Issue("user-1", "", time.Minute)
	require.NoError(t, err)

	built, err := jwt.NewBuilder().Subject("user-1").Issuer("backend-blinds").Audience([]string{"blinds-web"}).Expiration(now.Add(time.Minute)).Build()
	require.NoError(t, err)
	hs384, err := jwt.Sign(built, jwt.WithKey(jwa.HS384, []byte("super-secret-signing-key")))
	require.NoError(t, err)

	forged, err := jwt.Sign(built, jwt.WithKey(jwa.HS256, []byte("a-different-secret-key")))
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"wrong alg":    string(hs384),
		"wrong secret": string(forged),
	}
	for name, raw := range cases {
		_, err := tokens.Verify(raw)
		require.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestNewTokensRejectsShortSecret(t *testing.T) {
	_, err := NewTokens(Config{Secret: "short"})
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	tokens := newTestTokens(t)
	mw := Middleware{Tokens: tokens, AccessCookie: "access_token"}

	var seenUser, seenRole string
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser, _ = common.UserID(r.Context())
		seenRole = common.Role(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	open := mw.Authenticate(final)
	admin := mw.Authenticate(RequireRole(RoleAdmin)(final))

	serve := func(h http.Handler, token string, cookie bool) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			if cookie {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
			} else {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	customer, err := tokens.Issue("user-9", RoleCustomer, time.Minute)
	require.NoError(t, err)
	adminTok, err := tokens.Issue("ops-1", RoleAdmin, time.Minute)
	require.NoError(t, err)

	require.Equal(t, http.StatusNoContent, serve(open, "", false))
	require.Empty(t, seenUser)

	require.Equal(t, http.StatusNoContent, serve(open, customer, true))
	require.Equal(t, "user-9", seenUser)
	require.Equal(t, RoleCustomer, seenRole)

	require.Equal(t, http.StatusUnauthorized, serve(open, "bogus", false))
	require.Equal(t, http.StatusUnauthorized, serve(admin, "", false))
	require.Equal(t, http.StatusForbidden, serve(admin, customer, false))
	require.Equal(t, http.StatusNoContent, serve(admin, adminTok, false))
	require.Equal(t, "ops-1", seenUser)
}
