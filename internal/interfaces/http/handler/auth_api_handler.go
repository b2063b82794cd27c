package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dreschagin/mainnet-dashboard/internal/interfaces/http/middleware"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
)

const authCookieMaxAge = 12 * 60 * 60

// AuthAPIHandler выдает и снимает cookie с токеном для браузера: дашборд и /ws не могут слать Authorization header
type AuthAPIHandler struct {
	authConfig middleware.AuthConfig
	counter    middleware.RejectionCounter
	logger     *logger.Logger
}

type authLoginRequest struct {
	Token string `json:"token"`
}

func NewAuthAPIHandler(authConfig middleware.AuthConfig, counter middleware.RejectionCounter, log *logger.Logger) *AuthAPIHandler {
	return &AuthAPIHandler{
		authConfig: authConfig,
		counter:    counter,
		logger:     log,
	}
}

func (h *AuthAPIHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.authConfig.Enabled {
		middleware.WriteJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"auth_enabled": false,
		})
		return
	}

	defer r.Body.Close()
	var req authLoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" || token != h.authConfig.BearerToken {
		if h.counter != nil {
			h.counter.AuthFailed()
		}
		h.logger.Warn("Auth login failed", "remote_addr", r.RemoteAddr, "request_id", middleware.RequestIDFrom(r))
		middleware.WriteError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	middleware.WriteAuthCookie(w, token, r.TLS != nil, authCookieMaxAge)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"auth_enabled": true,
	})
}

func (h *AuthAPIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearAuthCookie(w, r.TLS != nil)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
	})
}

func (h *AuthAPIHandler) Status(w http.ResponseWriter, r *http.Request) {
	err := middleware.ValidateRequestAuth(r, h.authConfig)
	_, cookieErr := r.Cookie(middleware.AuthCookieName)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"auth_enabled":   h.authConfig.Enabled,
		"authenticated":  err == nil,
		"cookie_present": cookieErr == nil,
	})
}
