package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"campus-auth-service/internal/login"
	"campus-auth-service/internal/secondfactor"
	"campus-auth-service/internal/service"
	"campus-auth-service/internal/util"
)

// AuthHandler handles the login flow endpoints.
type AuthHandler struct {
	authService *service.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(message string) Response {
	return Response{
		Success: false,
		Error:   message,
	}
}

// User-facing failure messages. Deliberately generic: the same text covers
// unknown identifier and wrong password, and the same text covers wrong,
// reused, and expired codes.
const (
	msgInvalidCredentials = "invalid email or password"
	msgInvalidCode        = "invalid or expired code"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type verifyRequest struct {
	PendingUserID string `json:"pending_user_id"`
	Code          string `json:"code"`
}

type pendingRequest struct {
	PendingUserID string `json:"pending_user_id"`
}

// RegisterRoutes registers the public login endpoints.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/verify", h.VerifySecondFactor)
		r.Post("/resend", h.ResendCode)
		r.Post("/cancel", h.CancelLogin)
	})
}

// RegisterAdminRoutes registers endpoints that require an admin session.
func (h *AuthHandler) RegisterAdminRoutes(router chi.Router) {
	router.Route("/admin", func(r chi.Router) {
		r.Post("/users/{userID}/totp", h.ProvisionTOTP)
		r.Get("/users/{userID}/login-failures", h.LoginFailures)
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}
	if req.Identifier == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("identifier and password are required"))
		return
	}

	res, err := h.authService.Login(r.Context(), req.Identifier, req.Password, clientIP(r))
	if err != nil {
		if errors.Is(err, login.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, errorResponse(msgInvalidCredentials))
			return
		}
		h.logger.Error("Login failed", util.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse("login failed"))
		return
	}

	if res.SecondFactorRequired {
		writeJSON(w, http.StatusOK, successResponse(res, "second factor required"))
		return
	}
	writeJSON(w, http.StatusOK, successResponse(res, "authenticated"))
}

func (h *AuthHandler) VerifySecondFactor(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}
	if req.PendingUserID == "" || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("pending_user_id and code are required"))
		return
	}

	res, err := h.authService.VerifySecondFactor(r.Context(), req.PendingUserID, req.Code, clientIP(r))
	if err != nil {
		if errors.Is(err, login.ErrInvalidOrExpiredCode) {
			writeJSON(w, http.StatusUnauthorized, errorResponse(msgInvalidCode))
			return
		}
		h.logger.Error("Second-factor verification failed", util.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse("verification failed"))
		return
	}

	writeJSON(w, http.StatusOK, successResponse(res, "authenticated"))
}

func (h *AuthHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req pendingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}
	if req.PendingUserID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("pending_user_id is required"))
		return
	}

	desc, err := h.authService.ResendCode(r.Context(), req.PendingUserID, clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, secondfactor.ErrUnsupportedResend):
			writeJSON(w, http.StatusBadRequest, errorResponse("resend is not available for this sign-in"))
		case errors.Is(err, login.ErrNoPendingLogin):
			writeJSON(w, http.StatusUnauthorized, errorResponse(msgInvalidCode))
		default:
			h.logger.Error("Resend failed", util.ErrorField(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse("resend failed"))
		}
		return
	}

	writeJSON(w, http.StatusOK, successResponse(desc, "code sent"))
}

func (h *AuthHandler) CancelLogin(w http.ResponseWriter, r *http.Request) {
	var req pendingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}

	// A missing attempt and a canceled attempt end the same way.
	_ = h.authService.CancelLogin(r.Context(), req.PendingUserID, clientIP(r))
	writeJSON(w, http.StatusOK, successResponse(nil, "login canceled"))
}

func (h *AuthHandler) ProvisionTOTP(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("user id is required"))
		return
	}

	provisioned, err := h.authService.ProvisionTOTP(r.Context(), userID)
	if err != nil {
		if errors.Is(err, login.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse("user not found"))
			return
		}
		h.logger.Error("TOTP provisioning failed",
			util.String("user_id", userID),
			util.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse("provisioning failed"))
		return
	}

	writeJSON(w, http.StatusOK, successResponse(provisioned, "scan the QR code, then sign in with a TOTP code"))
}

func (h *AuthHandler) LoginFailures(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("user id is required"))
		return
	}

	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			window = d
		}
	}

	events, err := h.authService.RecentLoginFailures(r.Context(), userID, window)
	if err != nil {
		h.logger.Error("Failed to query login failures",
			util.String("user_id", userID),
			util.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse("query failed"))
		return
	}

	writeJSON(w, http.StatusOK, successResponse(events, ""))
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func clientIP(r *http.Request) string {
	// middleware.RealIP has already rewritten RemoteAddr when the proxy
	// headers are present.
	return r.RemoteAddr
}
