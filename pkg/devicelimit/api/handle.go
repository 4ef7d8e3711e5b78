package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"
	"github.com/tendant/devicelimit/pkg/account"
	"github.com/tendant/devicelimit/pkg/device"
	"github.com/tendant/devicelimit/pkg/devicelimit"
	dlerrors "github.com/tendant/devicelimit/pkg/errors"
	"github.com/tendant/devicelimit/pkg/nonce"
	"github.com/tendant/devicelimit/pkg/ratelimit"
	"github.com/tendant/devicelimit/pkg/session"
)

type Handle struct {
	service           *devicelimit.Service
	accounts          *account.Service
	resolver          *device.Resolver
	sessions          *session.Issuer
	ips               *device.IPExtractor
	loginLimiter      *ratelimit.Middleware
	verifyLimiter     *ratelimit.Middleware
	verifyUserLimiter *ratelimit.Middleware
}

type Option func(*Handle)

const maxVerifyBody = 16 << 10

// WithRateLimits throttles POST /login and POST /verify. Either may be nil.
func WithRateLimits(login, verify *ratelimit.Middleware) Option {
	return func(h *Handle) {
		h.loginLimiter = login
		h.verifyLimiter = verify
	}
}

// WithVerifyUserLimit throttles POST /verify per submitted username, whatever address
// the attempts come from.
func WithVerifyUserLimit(m *ratelimit.Middleware) Option {
	return func(h *Handle) {
		if m != nil {
			h.verifyUserLimiter = m.WithKeyFunc(VerifyUsernameKey)
		}
	}
}

// WithIPExtractor sets how client addresses are resolved for login records.
func WithIPExtractor(e *device.IPExtractor) Option {
	return func(h *Handle) { h.ips = e }
}

func NewHandle(service *devicelimit.Service, accounts *account.Service, resolver *device.Resolver, sessions *session.Issuer, opts ...Option) *Handle {
	h := &Handle{
		service:  service,
		accounts: accounts,
		resolver: resolver,
		sessions: sessions,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handle) loginContext(w http.ResponseWriter, r *http.Request) devicelimit.LoginContext {
	return devicelimit.LoginContext{
		DeviceID:  h.resolver.Resolve(w, r),
		UserAgent: r.UserAgent(),
		IP:        h.ips.ClientIP(r),
	}
}

// Login checks the password and then runs the device gate.
func (h *Handle) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		renderErrorResponse(w, r, http.StatusBadRequest, dlerrors.MsgMissingData, "username and password are required")
		return
	}

	acct, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		slog.Info("Login failed", "username", req.Username, "error", err)
		renderServiceError(w, r, err)
		return
	}

	decision, err := h.service.Gate(r.Context(), acct, h.loginContext(w, r))
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	if decision.Outcome == devicelimit.OutcomeVerify {
		render.Status(r, http.StatusOK)
		render.JSON(w, r, LoginResponse{Status: "verify", Outcome: string(decision.Outcome), Redirect: decision.RedirectURL})
		return
	}

	if _, err := h.sessions.Issue(w, acct); err != nil {
		slog.Error("Failed to issue session", "error", err)
		renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to issue session", err.Error())
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, LoginResponse{Status: "success", Outcome: string(decision.Outcome), Redirect: h.service.Config().DashboardPath})
}

func (h *Handle) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Status: "success", Message: "Logged out"})
}

// VerifyPage returns what the code entry form needs, or redirects when the device is
// already approved.
func (h *Handle) VerifyPage(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("log")
	page, err := h.service.VerificationPage(r.Context(), username, h.resolver.Lookup(r))
	if err != nil {
		renderServiceError(w, r, err)
		return
	}
	if page.AlreadyApproved {
		http.Redirect(w, r, page.RedirectURL, http.StatusFound)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, VerifyPageResponse{
		Username:         page.Username,
		Nonce:            page.Nonce,
		RemainingSeconds: page.RemainingSeconds,
	})
}

func (h *Handle) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body", "error", err)
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.Log == "" {
		renderErrorResponse(w, r, http.StatusBadRequest, dlerrors.MsgMissingData, "log is required")
		return
	}

	result, err := h.service.Verify(r.Context(), req.Log, req.OTP, req.Nonce)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	if _, err := h.sessions.Issue(w, result.Account); err != nil {
		slog.Error("Failed to issue session", "error", err)
		renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to issue session", err.Error())
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, VerifyResponse{Status: "success", Redirect: result.RedirectURL})
}

func (h *Handle) ListOwnDevices(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListOwnDevices(r.Context(), session.FromContext(r.Context()))
	if err != nil {
		renderServiceError(w, r, err)
		return
	}
	renderDevices(w, r, records)
}

func (h *Handle) ListUserDevices(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListDevices(r.Context(), session.FromContext(r.Context()), chi.URLParam(r, "user_id"))
	if err != nil {
		renderServiceError(w, r, err)
		return
	}
	renderDevices(w, r, records)
}

func renderDevices(w http.ResponseWriter, r *http.Request, records []device.DeviceRecord) {
	devices := make([]DeviceResponse, 0, len(records))
	if err := copier.Copy(&devices, &records); err != nil {
		slog.Error("Failed to map devices", "error", err)
		renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to map devices", err.Error())
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, ListDevicesResponse{Status: "success", Devices: devices})
}

func (h *Handle) GetSettings(w http.ResponseWriter, r *http.Request) {
	limit, err := h.service.GetDeviceLimit(r.Context(), session.FromContext(r.Context()))
	if err != nil {
		renderServiceError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, SettingsResponse{Status: "success", DeviceLimit: limit})
}

func (h *Handle) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	actor := session.FromContext(r.Context())
	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.service.CheckNonce(actor, nonce.ActionUpdateSettings, req.Nonce); err != nil {
		renderServiceError(w, r, err)
		return
	}
	if err := h.service.UpdateDeviceLimit(r.Context(), actor, req.DeviceLimit); err != nil {
		renderServiceError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, SettingsResponse{Status: "success", DeviceLimit: req.DeviceLimit})
}

// IssueNonce hands the admin UI a token for one of the administrative actions.
func (h *Handle) IssueNonce(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	if !slices.Contains(nonce.AdminActions, action) {
		renderErrorResponse(w, r, http.StatusBadRequest, "Unknown action", action)
		return
	}
	token, err := h.service.IssueNonce(session.FromContext(r.Context()), action)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, NonceResponse{Status: "success", Action: action, Nonce: token})
}

// DeleteDevice answers in the {success, data} envelope. Checks run in order: session,
// capability, nonce, input.
func (h *Handle) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	actor := session.FromContext(r.Context())
	if actor == nil {
		renderAjax(w, r, http.StatusUnauthorized, false, dlerrors.MsgUnauthorized)
		return
	}
	if !actor.HasCapability(account.CapabilityManageOptions) {
		renderAjax(w, r, http.StatusForbidden, false, dlerrors.MsgUnauthorized)
		return
	}

	var req DeleteDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Failed to decode delete request", "error", err)
	}
	if err := h.service.CheckNonce(actor, nonce.ActionDeleteDevice, req.Nonce); err != nil {
		renderAjax(w, r, http.StatusForbidden, false, dlerrors.MsgInvalidNonce)
		return
	}
	if req.UserID == "" || req.DeviceID == "" {
		renderAjax(w, r, http.StatusBadRequest, false, dlerrors.MsgMissingData)
		return
	}

	if _, err := h.service.RemoveDevice(r.Context(), actor, req.UserID, req.DeviceID); err != nil {
		slog.Error("Failed to delete device", "userID", req.UserID, "deviceID", req.DeviceID, "error", err)
		renderAjax(w, r, dlerrors.MapErrorCodeToHTTPStatus(dlerrors.GetCode(err)), false, dlerrors.GetMessage(err, "Failed to delete device"))
		return
	}
	renderAjax(w, r, http.StatusOK, true, "Device deleted successfully")
}

func (h *Handle) ResetDevices(w http.ResponseWriter, r *http.Request) {
	actor := session.FromContext(r.Context())
	if !h.checkNonceBody(w, r, actor, nonce.ActionResetDevices) {
		return
	}
	if err := h.service.ResetAll(r.Context(), actor, chi.URLParam(r, "user_id")); err != nil {
		renderServiceError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Status: "success", Message: "Devices reset"})
}

func (h *Handle) Activate(w http.ResponseWriter, r *http.Request) {
	actor := session.FromContext(r.Context())
	if !h.checkNonceBody(w, r, actor, nonce.ActionActivate) {
		return
	}
	result, err := h.service.Activate(r.Context(), actor, h.loginContext(w, r))
	if err != nil {
		renderServiceError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, ActivateResponse{Status: "success", Message: "Test email sent", DeviceApproved: result.DeviceApproved})
}

func (h *Handle) Uninstall(w http.ResponseWriter, r *http.Request) {
	actor := session.FromContext(r.Context())
	if !h.checkNonceBody(w, r, actor, nonce.ActionUninstall) {
		return
	}
	if err := h.service.Uninstall(r.Context(), actor); err != nil {
		renderServiceError(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Status: "success", Message: "All device data removed"})
}

func (h *Handle) checkNonceBody(w http.ResponseWriter, r *http.Request, actor *session.AuthUser, action string) bool {
	var req NonceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	if err := h.service.CheckNonce(actor, action, req.Nonce); err != nil {
		renderServiceError(w, r, err)
		return false
	}
	return true
}

func throttle(m *ratelimit.Middleware) func(http.Handler) http.Handler {
	if m == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return m.Handler
}

// VerifyUsernameKey keys POST /verify on the lower-cased "log" field of the JSON body.
// The body is restored for the handler.
func VerifyUsernameKey(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxVerifyBody))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var req VerifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(req.Log))
}

// Handler returns the device limit API. Session tokens are verified with ja.
func Handler(h *Handle, ja *jwtauth.JWTAuth) http.Handler {
	r := chi.NewRouter()

	r.With(throttle(h.loginLimiter)).Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Get("/verify", h.VerifyPage)
	r.With(throttle(h.verifyLimiter), throttle(h.verifyUserLimiter)).Post("/verify", h.Verify)

	r.Group(func(r chi.Router) {
		r.Use(session.Verifier(ja))
		r.Use(session.AuthUserMiddleware)
		r.Get("/me/devices", h.ListOwnDevices)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(session.Verifier(ja))

		r.With(session.LoadAuthUser).Post("/devices/delete", h.DeleteDevice)

		r.Group(func(r chi.Router) {
			r.Use(session.AuthUserMiddleware)
			r.Use(session.RequireCapability(account.CapabilityManageOptions))

			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)
			r.Get("/nonce/{action}", h.IssueNonce)
			r.Get("/users/{user_id}/devices", h.ListUserDevices)
			r.Post("/users/{user_id}/reset", h.ResetDevices)
			r.Post("/activate", h.Activate)
			r.Post("/uninstall", h.Uninstall)
		})
	})

	return r
}

func renderAjax(w http.ResponseWriter, r *http.Request, statusCode int, success bool, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, AjaxResponse{Success: success, Data: AjaxData{Message: message}})
}

// renderServiceError maps a structured error to its status code and message.
func renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := dlerrors.GetCode(err)
	status := dlerrors.MapErrorCodeToHTTPStatus(code)
	message := dlerrors.GetMessage(err, "Internal server error")
	if status >= http.StatusInternalServerError && code == dlerrors.ErrCodeInternal {
		slog.Error("Request failed", "path", r.URL.Path, "error", err)
		message = "Internal server error"
	}
	renderErrorResponse(w, r, status, message, string(code))
}

// renderErrorResponse renders an error response with the given status code and message
func renderErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message, errorDetail string) {
	response := ErrorResponse{
		Status:  "error",
		Message: message,
	}

	if errorDetail != "" {
		response.Error = errorDetail
	}

	render.Status(r, statusCode)
	render.JSON(w, r, response)
}
