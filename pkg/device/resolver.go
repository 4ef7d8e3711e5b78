package device

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultCookieName = "spdll_device_id"
	DefaultCookieTTL  = 365 * 24 * time.Hour
)

type ResolverOptions struct {
	CookieName string
	Domain     string
	Path       string
	TTL        time.Duration
	// Secure forces the Secure attribute. Requests served over TLS always get it.
	Secure bool
}

// Resolver maps a request to a persistent device identifier backed by a cookie.
type Resolver struct {
	opts ResolverOptions
	now  func() time.Time
}

func NewResolver(opts ResolverOptions) *Resolver {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultCookieTTL
	}
	return &Resolver{opts: opts, now: time.Now}
}

// CookieName returns the name of the device cookie.
func (r *Resolver) CookieName() string {
	return r.opts.CookieName
}

// Resolve returns the identifier presented by the client, minting and setting a new one
// when none is present.
func (r *Resolver) Resolve(w http.ResponseWriter, req *http.Request) string {
	if id := r.Lookup(req); id != "" {
		return id
	}

	id := NewDeviceID(req.UserAgent())
	http.SetCookie(w, &http.Cookie{
		Name:     r.opts.CookieName,
		Value:    id,
		Path:     r.opts.Path,
		Domain:   r.opts.Domain,
		Expires:  r.now().Add(r.opts.TTL),
		MaxAge:   int(r.opts.TTL.Seconds()),
		Secure:   r.opts.Secure || req.TLS != nil,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// Lookup returns the identifier presented by the client without minting one.
func (r *Resolver) Lookup(req *http.Request) string {
	cookie, err := req.Cookie(r.opts.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// NewDeviceID returns hex(sha256(uuid4 + userAgent)).
func NewDeviceID(userAgent string) string {
	sum := sha256.Sum256([]byte(uuid.NewString() + userAgent))
	return hex.EncodeToString(sum[:])
}
