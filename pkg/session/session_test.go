package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/devicelimit/pkg/account"
	"github.com/tendant/devicelimit/pkg/nonce"
)

func newTestRouter(issuer *Issuer) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(Verifier(issuer.JWTAuth()))
		r.Use(AuthUserMiddleware)
		r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
			u := FromContext(r.Context())
			w.Write([]byte(u.Username))
		})
		r.With(RequireCapability(account.CapabilityManageOptions)).Get("/admin", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

func TestIssuer_IssueSetsCookie(t *testing.T) {
	issuer := NewIssuer(Options{Secret: "secret", Issuer: "devicelimit", Expiry: time.Hour, Secure: true})
	a := account.Account{ID: uuid.New(), Username: "alice", Roles: []string{account.RoleSubscriber}}

	rec := httptest.NewRecorder()
	token, err := issuer.Issue(rec, a)
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, 3600, cookies[0].MaxAge)
}

func TestMiddleware(t *testing.T) {
	issuer := NewIssuer(Options{Secret: "secret"})
	router := newTestRouter(issuer)

	subscriber := account.Account{ID: uuid.New(), Username: "alice", Roles: []string{account.RoleSubscriber}}
	admin := account.Account{ID: uuid.New(), Username: "root", Roles: []string{account.RoleAdmin}}

	subToken, _, err := issuer.Token(subscriber)
	require.NoError(t, err)
	adminToken, _, err := issuer.Token(admin)
	require.NoError(t, err)

	t.Run("no token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("cookie token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: subToken})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", rec.Body.String())
	})

	t.Run("bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, "root", rec.Body.String())
	})

	t.Run("foreign secret", func(t *testing.T) {
		other, _, err := NewIssuer(Options{Secret: "other"}).Token(admin)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: other})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("subscriber forbidden on admin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: subToken})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: adminToken})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestMiddleware_RejectsNonSessionTokens(t *testing.T) {
	const secret = "shared-secret"
	router := newTestRouter(NewIssuer(Options{Secret: secret}))
	subject := uuid.NewString()

	sign := func(claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}
	exp := time.Now().Add(time.Hour).Unix()

	nonceToken, err := nonce.NewManager(secret).Issue(nonce.ActionVerifyDevice, subject)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"nonce from the same secret", nonceToken},
		{"action claim", sign(jwt.MapClaims{"sub": subject, "username": "alice", "act": nonce.ActionVerifyDevice, "exp": exp})},
		{"missing username", sign(jwt.MapClaims{"sub": subject, "exp": exp})},
		{"missing subject", sign(jwt.MapClaims{"username": "alice", "exp": exp})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireCapability_NoActor(t *testing.T) {
	h := RequireCapability(account.CapabilityManageOptions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthUser_HasCapability(t *testing.T) {
	var nilUser *AuthUser
	assert.False(t, nilUser.HasCapability(account.CapabilityManageOptions))
	assert.True(t, (&AuthUser{Roles: []string{account.RoleAdmin}}).HasCapability(account.CapabilityManageOptions))
	assert.False(t, (&AuthUser{Roles: []string{account.RoleSubscriber}}).HasCapability(account.CapabilityManageOptions))
}

func TestLoadAuthUser(t *testing.T) {
	issuer := NewIssuer(Options{Secret: "secret"})
	a := account.Account{ID: uuid.New(), Username: "alice"}
	token, _, err := issuer.Token(a)
	require.NoError(t, err)

	var seen *AuthUser
	h := Verifier(issuer.JWTAuth())(LoadAuthUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Nil(t, seen)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, seen)
	assert.Equal(t, a.ID.String(), seen.UserID)
}
