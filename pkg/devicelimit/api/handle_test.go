package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/devicelimit/pkg/account"
	"github.com/tendant/devicelimit/pkg/challenge"
	"github.com/tendant/devicelimit/pkg/device"
	"github.com/tendant/devicelimit/pkg/devicelimit"
	"github.com/tendant/devicelimit/pkg/nonce"
	"github.com/tendant/devicelimit/pkg/notification"
	"github.com/tendant/devicelimit/pkg/ratelimit"
	"github.com/tendant/devicelimit/pkg/session"
	"github.com/tendant/devicelimit/pkg/settings"
)

// testSecret backs both sessions and nonces, as cmd/devicelimit does when NONCE_SECRET is unset.
const testSecret = "shared-secret"

type testEnv struct {
	router   http.Handler
	notifier *notification.MockNotifier
	registry *device.RegistryService
	sessions *session.Issuer
	user     account.Account
	admin    account.Account
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	ctx := context.Background()

	accounts := account.NewService(account.NewInMemRepository())
	user, err := accounts.Create(ctx, account.CreateParams{Username: "alice", Email: "alice@example.com", Password: "pw"})
	require.NoError(t, err)
	admin, err := accounts.Create(ctx, account.CreateParams{Username: "root", Email: "root@example.com", Password: "pw", Roles: []string{account.RoleAdmin}})
	require.NoError(t, err)

	mock := &notification.MockNotifier{}
	nm, err := notification.NewNotificationManager(
		notification.WithNotifier(notification.EmailSystem, mock),
		notification.WithDefaultTemplates(),
	)
	require.NoError(t, err)

	registry := device.NewRegistryService(device.NewInMemRegistryRepository())
	svc, err := devicelimit.NewService(
		registry,
		challenge.NewInMemRepository(),
		settings.NewService(settings.NewInMemRepository(), 3),
		accounts,
		nm,
		nonce.NewManager(testSecret),
	)
	require.NoError(t, err)

	sessions := session.NewIssuer(session.Options{Secret: testSecret, Expiry: time.Hour})
	h := NewHandle(svc, accounts, device.NewResolver(device.ResolverOptions{}), sessions, opts...)

	return &testEnv{
		router:   Handler(h, sessions.JWTAuth()),
		notifier: mock,
		registry: registry,
		sessions: sessions,
		user:     user,
		admin:    admin,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:5555"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) verifyFrom(t *testing.T, remote, forwardedFor string, body VerifyRequest) int {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remote
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec.Code
}

func (e *testEnv) sessionCookie(t *testing.T, a account.Account) *http.Cookie {
	t.Helper()
	token, _, err := e.sessions.Token(a)
	require.NoError(t, err)
	return &http.Cookie{Name: session.CookieName, Value: token}
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestLoginVerifyFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/login", LoginRequest{Username: "alice", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[LoginResponse](t, rec)
	assert.Equal(t, "verify", login.Status)
	assert.Equal(t, "/verify?log=alice", login.Redirect)
	assert.Nil(t, cookieNamed(rec, session.CookieName))

	deviceCookie := cookieNamed(rec, device.DefaultCookieName)
	require.NotNil(t, deviceCookie)
	deviceCookie = &http.Cookie{Name: deviceCookie.Name, Value: deviceCookie.Value}

	rec = env.do(t, http.MethodGet, "/verify?log=alice", nil, deviceCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[VerifyPageResponse](t, rec)
	assert.Equal(t, "alice", page.Username)
	assert.InDelta(t, 600, page.RemainingSeconds, 2)

	sent := env.notifier.Sent()
	require.Len(t, sent, 1)
	code := sent[0].Data.Data["Code"]

	rec = env.do(t, http.MethodPost, "/verify", VerifyRequest{Log: "alice", OTP: "bogus", Nonce: page.Nonce}, deviceCookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired code.", decode[ErrorResponse](t, rec).Message)

	rec = env.do(t, http.MethodPost, "/verify", VerifyRequest{Log: "alice", OTP: code, Nonce: "forged"}, deviceCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/verify", VerifyRequest{Log: "alice", OTP: code, Nonce: page.Nonce}, deviceCookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/admin", decode[VerifyResponse](t, rec).Redirect)
	sessionCookie := cookieNamed(rec, session.CookieName)
	require.NotNil(t, sessionCookie)

	rec = env.do(t, http.MethodGet, "/me/devices", nil, &http.Cookie{Name: session.CookieName, Value: sessionCookie.Value})
	require.Equal(t, http.StatusOK, rec.Code)
	devices := decode[ListDevicesResponse](t, rec).Devices
	require.Len(t, devices, 1)
	assert.Equal(t, deviceCookie.Value, devices[0].ID)
	assert.Equal(t, "approved", devices[0].Status)
	assert.Equal(t, "203.0.113.9", devices[0].IP)

	t.Run("known device logs straight in", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/login", LoginRequest{Username: "alice", Password: "pw"}, deviceCookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "success", decode[LoginResponse](t, rec).Status)
		assert.NotNil(t, cookieNamed(rec, session.CookieName))
	})

	t.Run("verify page redirects approved device", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/verify?log=alice", nil, deviceCookie)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/admin", rec.Header().Get("Location"))
	})
}

func TestLogin_Errors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/login", LoginRequest{Username: "alice", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPost, "/login", LoginRequest{Username: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, id := range []string{"a", "b", "c"} {
		_, err := env.registry.Approve(context.Background(), env.user.ID.String(), device.DeviceRecord{ID: id}, 0)
		require.NoError(t, err)
	}
	rec = env.do(t, http.MethodPost, "/login", LoginRequest{Username: "alice", Password: "pw"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Device limit reached. Contact administrator.", resp.Message)
	assert.Equal(t, "DEVICE_LIMIT_REACHED", resp.Error)
}

func TestLogin_EmailFailure(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.SetErr(assert.AnError)

	rec := env.do(t, http.MethodPost, "/login", LoginRequest{Username: "alice", Password: "pw"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "EMAIL_DELIVERY_FAILED", decode[ErrorResponse](t, rec).Error)
}

func TestLogin_RateLimited(t *testing.T) {
	env := newTestEnv(t, WithRateLimits(ratelimit.NewMiddleware("login", 1, 1.0/60.0, 0), nil))

	rec := env.do(t, http.MethodPost, "/login", LoginRequest{Username: "alice", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(t, http.MethodPost, "/login", LoginRequest{Username: "alice", Password: "nope"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestVerifyPageNonceIsNotASession(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.registry.Approve(context.Background(), env.user.ID.String(), device.DeviceRecord{ID: "dev-secret", IP: "198.51.100.7"}, 0)
	require.NoError(t, err)

	for _, subject := range []string{env.user.ID.String(), env.admin.ID.String(), "alice"} {
		t.Run(subject, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/verify?log="+subject, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			token := decode[VerifyPageResponse](t, rec).Nonce
			require.NotEmpty(t, token)

			req := httptest.NewRequest(http.MethodGet, "/me/devices", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			out := httptest.NewRecorder()
			env.router.ServeHTTP(out, req)
			assert.Equal(t, http.StatusUnauthorized, out.Code)
			assert.NotContains(t, out.Body.String(), "dev-secret")

			rec = env.do(t, http.MethodGet, "/me/devices", nil, &http.Cookie{Name: session.CookieName, Value: token})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			rec = env.do(t, http.MethodGet, "/admin/settings", nil, &http.Cookie{Name: session.CookieName, Value: token})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestVerify_RateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	env := newTestEnv(t, WithRateLimits(nil, ratelimit.NewMiddleware("verify", 1, 0.0001, 0)))

	codes := map[int]int{}
	for i := 0; i < 20; i++ {
		code := env.verifyFrom(t, "198.51.100.9:4000", fmt.Sprintf("203.0.113.%d", i+1), VerifyRequest{Log: "alice", OTP: "000000", Nonce: "x"})
		codes[code]++
	}
	assert.Equal(t, 19, codes[http.StatusTooManyRequests], codes)
}

func TestVerify_RateLimitTrustedProxy(t *testing.T) {
	extractor, err := device.NewIPExtractor([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	verify := ratelimit.NewMiddleware("verify", 1, 0.0001, 0).WithKeyFunc(ratelimit.IPKey(extractor))
	env := newTestEnv(t, WithIPExtractor(extractor), WithRateLimits(nil, verify))

	body := VerifyRequest{Log: "alice", OTP: "000000", Nonce: "x"}
	assert.NotEqual(t, http.StatusTooManyRequests, env.verifyFrom(t, "10.0.0.2:1234", "203.0.113.7", body))
	assert.Equal(t, http.StatusTooManyRequests, env.verifyFrom(t, "10.0.0.2:1234", "1.2.3.4, 203.0.113.7", body))
	assert.NotEqual(t, http.StatusTooManyRequests, env.verifyFrom(t, "10.0.0.2:1234", "203.0.113.8", body))
}

func TestVerify_RateLimitPerUsername(t *testing.T) {
	env := newTestEnv(t, WithVerifyUserLimit(ratelimit.NewMiddleware("verify_user", 2, 0.0001, 0)))

	codes := map[int]int{}
	for i := 0; i < 10; i++ {
		code := env.verifyFrom(t, fmt.Sprintf("198.51.100.%d:4000", i+1), "", VerifyRequest{Log: "alice", OTP: "000000", Nonce: "x"})
		codes[code]++
	}
	assert.Equal(t, 8, codes[http.StatusTooManyRequests], codes)

	code := env.verifyFrom(t, "198.51.100.1:4000", "", VerifyRequest{Log: " ALICE ", OTP: "000000", Nonce: "x"})
	assert.Equal(t, http.StatusTooManyRequests, code)

	code = env.verifyFrom(t, "198.51.100.1:4000", "", VerifyRequest{Log: "root", OTP: "000000", Nonce: "x"})
	assert.Equal(t, http.StatusForbidden, code, "the body must still reach the handler")
}

func TestVerifyUsernameKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewBufferString(`{"log":" Alice ","otp":"1","nonce":"n"}`))
	assert.Equal(t, "alice", VerifyUsernameKey(req))

	var got VerifyRequest
	require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
	assert.Equal(t, "n", got.Nonce)

	req = httptest.NewRequest(http.MethodPost, "/verify", bytes.NewBufferString(`not json`))
	assert.Equal(t, "", VerifyUsernameKey(req))
}

func TestDeleteDevice(t *testing.T) {
	env := newTestEnv(t)
	userID := env.user.ID.String()
	_, err := env.registry.Approve(context.Background(), userID, device.DeviceRecord{ID: "laptop"}, 0)
	require.NoError(t, err)

	adminCookie := env.sessionCookie(t, env.admin)
	rec := env.do(t, http.MethodGet, "/admin/nonce/delete_device", nil, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode[NonceResponse](t, rec).Nonce

	tests := []struct {
		name    string
		body    DeleteDeviceRequest
		cookie  *http.Cookie
		status  int
		success bool
		message string
	}{
		{"no session", DeleteDeviceRequest{UserID: userID, DeviceID: "laptop", Nonce: token}, nil, http.StatusUnauthorized, false, "Unauthorized"},
		{"not an admin", DeleteDeviceRequest{UserID: userID, DeviceID: "laptop", Nonce: token}, env.sessionCookie(t, env.user), http.StatusForbidden, false, "Unauthorized"},
		{"bad nonce", DeleteDeviceRequest{UserID: userID, DeviceID: "laptop", Nonce: "x"}, adminCookie, http.StatusForbidden, false, "Invalid nonce"},
		{"missing data", DeleteDeviceRequest{UserID: userID, Nonce: token}, adminCookie, http.StatusBadRequest, false, "Missing data"},
		{"deletes", DeleteDeviceRequest{UserID: userID, DeviceID: "laptop", Nonce: token}, adminCookie, http.StatusOK, true, "Device deleted successfully"},
		{"unknown device is fine", DeleteDeviceRequest{UserID: userID, DeviceID: "laptop", Nonce: token}, adminCookie, http.StatusOK, true, "Device deleted successfully"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cookies []*http.Cookie
			if tt.cookie != nil {
				cookies = append(cookies, tt.cookie)
			}
			rec := env.do(t, http.MethodPost, "/admin/devices/delete", tt.body, cookies...)
			assert.Equal(t, tt.status, rec.Code)
			resp := decode[AjaxResponse](t, rec)
			assert.Equal(t, tt.success, resp.Success)
			assert.Equal(t, tt.message, resp.Data.Message)
		})
	}

	count, err := env.registry.Count(context.Background(), userID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAdminSettings(t *testing.T) {
	env := newTestEnv(t)
	adminCookie := env.sessionCookie(t, env.admin)

	rec := env.do(t, http.MethodGet, "/admin/settings", nil, env.sessionCookie(t, env.user))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/settings", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/settings", nil, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[SettingsResponse](t, rec).DeviceLimit)

	rec = env.do(t, http.MethodGet, "/admin/nonce/update_settings", nil, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode[NonceResponse](t, rec).Nonce

	rec = env.do(t, http.MethodPut, "/admin/settings", UpdateSettingsRequest{DeviceLimit: 0, Nonce: token}, adminCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/admin/settings", UpdateSettingsRequest{DeviceLimit: 5, Nonce: "bad"}, adminCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/admin/settings", UpdateSettingsRequest{DeviceLimit: 5, Nonce: token}, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/settings", nil, adminCookie)
	assert.Equal(t, 5, decode[SettingsResponse](t, rec).DeviceLimit)

	rec = env.do(t, http.MethodGet, "/admin/nonce/drop_tables", nil, adminCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminResetAndActivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	adminCookie := env.sessionCookie(t, env.admin)
	userID := env.user.ID.String()

	nonceFor := func(action string) string {
		rec := env.do(t, http.MethodGet, "/admin/nonce/"+action, nil, adminCookie)
		require.Equal(t, http.StatusOK, rec.Code)
		return decode[NonceResponse](t, rec).Nonce
	}

	_, err := env.registry.Approve(ctx, userID, device.DeviceRecord{ID: "a"}, 0)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/admin/users/"+userID+"/reset", NonceRequest{Nonce: nonceFor(nonce.ActionResetDevices)}, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	count, _ := env.registry.Count(ctx, userID)
	assert.Zero(t, count)

	rec = env.do(t, http.MethodPost, "/admin/activate", NonceRequest{Nonce: nonceFor(nonce.ActionActivate)}, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[ActivateResponse](t, rec).DeviceApproved)
	count, _ = env.registry.Count(ctx, env.admin.ID.String())
	assert.Equal(t, 1, count)

	rec = env.do(t, http.MethodGet, "/admin/users/"+env.admin.ID.String()+"/devices", nil, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ListDevicesResponse](t, rec).Devices, 1)

	rec = env.do(t, http.MethodPost, "/admin/uninstall", NonceRequest{Nonce: nonceFor(nonce.ActionUninstall)}, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	count, _ = env.registry.Count(ctx, env.admin.ID.String())
	assert.Zero(t, count)
}
