// Package session issues and verifies the signed login cookie.
//
// Tokens are HS256 JWTs signed with golang-jwt and verified with jwtauth, so the same
// secret backs both sides. AuthUserMiddleware turns verified claims into an AuthUser on
// the request context and RequireCapability guards administrative routes.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/devicelimit/pkg/account"
)

const (
	CookieName    = "devicelimit_session"
	DefaultExpiry = 24 * time.Hour
)

type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type Options struct {
	Secret   string
	Issuer   string
	Expiry   time.Duration
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
}

// Issuer signs session tokens and writes them as cookies.
type Issuer struct {
	opts Options
	now  func() time.Time
}

func NewIssuer(opts Options) *Issuer {
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultExpiry
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	return &Issuer{opts: opts, now: time.Now}
}

// JWTAuth returns the jwtauth verifier sharing this issuer's secret.
func (i *Issuer) JWTAuth() *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(i.opts.Secret), nil)
}

// Token signs a session token for a.
func (i *Issuer) Token(a account.Account) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.opts.Expiry)
	claims := Claims{
		Username: a.Username,
		Roles:    a.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			Issuer:    i.opts.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.opts.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Issue signs a session token for a, sets it as the session cookie and returns it.
func (i *Issuer) Issue(w http.ResponseWriter, a account.Account) (string, error) {
	token, expiresAt, err := i.Token(a)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     i.opts.Path,
		Domain:   i.opts.Domain,
		Expires:  expiresAt,
		MaxAge:   int(i.opts.Expiry.Seconds()),
		HttpOnly: true,
		Secure:   i.opts.Secure,
		SameSite: i.opts.SameSite,
	})
	slog.Info("Session issued", "userID", a.ID, "username", a.Username)
	return token, nil
}

// Clear expires the session cookie.
func (i *Issuer) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     i.opts.Path,
		Domain:   i.opts.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   i.opts.Secure,
		SameSite: i.opts.SameSite,
	})
}

func Verifier(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return jwtauth.Verify(ja, jwtauth.TokenFromHeader, TokenFromCookie)(next)
	}
}

func TokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// AuthUser is the authenticated actor of a request.
type AuthUser struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
}

func (u AuthUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user", u.UserID),
		slog.String("username", u.Username),
		slog.Any("roles", u.Roles),
	)
}

// HasCapability reports whether u holds capability through any of its roles.
func (u *AuthUser) HasCapability(capability string) bool {
	if u == nil {
		return false
	}
	return account.HasCapability(u.Roles, capability)
}

// ActorFromAccount builds the actor used by services for a loaded account.
func ActorFromAccount(a account.Account) *AuthUser {
	return &AuthUser{UserID: a.ID.String(), Username: a.Username, Roles: a.Roles}
}

type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "devicelimit context value " + k.name
}

var AuthUserKey = &contextKey{"AuthUser"}

func WithAuthUser(ctx context.Context, u *AuthUser) context.Context {
	return context.WithValue(ctx, AuthUserKey, u)
}

// FromContext returns the actor stored by AuthUserMiddleware, or nil.
func FromContext(ctx context.Context) *AuthUser {
	u, _ := ctx.Value(AuthUserKey).(*AuthUser)
	return u
}

// AuthUserMiddleware requires a verified token and stores its AuthUser in the request context.
func AuthUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		u, err := authUserFromClaims(claims)
		if err != nil {
			slog.Warn("invalid session claims", "error", err)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		slog.Debug("authenticated user", "userID", u.UserID, "roles", u.Roles)
		next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), u)))
	})
}

// LoadAuthUser stores the AuthUser when a valid token was verified and passes every
// request through. Handlers then decide how to report a missing actor.
func LoadAuthUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err == nil && token != nil {
			if u, err := authUserFromClaims(claims); err == nil {
				r = r.WithContext(WithAuthUser(r.Context(), u))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// authUserFromClaims accepts only claims shaped like a session token: a subject and a
// username, and no action claim.
func authUserFromClaims(claims map[string]interface{}) (*AuthUser, error) {
	if _, ok := claims["act"]; ok {
		return nil, fmt.Errorf("token carries an action claim")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("missing subject")
	}
	username, _ := claims["username"].(string)
	if username == "" {
		return nil, fmt.Errorf("missing username")
	}
	u := &AuthUser{UserID: sub, Username: username}
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if role, ok := r.(string); ok {
				u.Roles = append(u.Roles, role)
			}
		}
	}
	return u, nil
}

// RequireCapability fails closed: 401 without an actor, 403 without the capability.
func RequireCapability(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := FromContext(r.Context())
			if u == nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if !u.HasCapability(capability) {
				slog.Warn("capability check failed", "user", u, "capability", capability)
				writeError(w, http.StatusForbidden, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"status":"error","message":%q}`, message)
}
