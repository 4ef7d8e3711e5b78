package api

import "time"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Status   string `json:"status"`
	Outcome  string `json:"outcome"`
	Redirect string `json:"redirect,omitempty"`
}

type VerifyPageResponse struct {
	Username         string `json:"username"`
	Nonce            string `json:"nonce"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type VerifyRequest struct {
	Log   string `json:"log"`
	OTP   string `json:"otp"`
	Nonce string `json:"nonce"`
}

type VerifyResponse struct {
	Status   string `json:"status"`
	Redirect string `json:"redirect"`
}

// DeviceResponse is a registry entry as returned to clients.
type DeviceResponse struct {
	ID          string    `json:"id"`
	UserAgent   string    `json:"user_agent"`
	IP          string    `json:"ip_address"`
	FirstSeen   time.Time `json:"first_seen"`
	DeviceClass string    `json:"device_type"`
	Status      string    `json:"status"`
	Country     string    `json:"country,omitempty"`
}

type ListDevicesResponse struct {
	Status  string           `json:"status"`
	Devices []DeviceResponse `json:"devices"`
}

type SettingsResponse struct {
	Status      string `json:"status"`
	DeviceLimit int    `json:"device_limit"`
}

type UpdateSettingsRequest struct {
	DeviceLimit int    `json:"device_limit"`
	Nonce       string `json:"nonce"`
}

type NonceRequest struct {
	Nonce string `json:"nonce"`
}

type NonceResponse struct {
	Status string `json:"status"`
	Action string `json:"action"`
	Nonce  string `json:"nonce"`
}

type DeleteDeviceRequest struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
	Nonce    string `json:"nonce"`
}

// AjaxResponse is the {success, data:{message}} envelope used by the device delete endpoint.
type AjaxResponse struct {
	Success bool     `json:"success"`
	Data    AjaxData `json:"data"`
}

type AjaxData struct {
	Message string `json:"message"`
}

type ActivateResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	DeviceApproved bool   `json:"device_approved"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
