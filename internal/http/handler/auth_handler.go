package handler

import (
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/http/middleware"
	"github.com/sandeepkv93/clinical-records-service/internal/http/response"
	"github.com/sandeepkv93/clinical-records-service/internal/security"
	"github.com/sandeepkv93/clinical-records-service/internal/service"
)

type AuthHandler struct {
	auth       *service.AuthService
	resets     *service.PasswordResetService
	users      *service.UserService
	cookies    *security.CookieManager
	refreshTTL time.Duration
	logger     *slog.Logger
}

func NewAuthHandler(
	auth *service.AuthService,
	resets *service.PasswordResetService,
	users *service.UserService,
	cookies *security.CookieManager,
	tokens *service.TokenService,
	logger *slog.Logger,
) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		auth:       auth,
		resets:     resets,
		users:      users,
		cookies:    cookies,
		refreshTTL: tokens.RefreshTTL(),
		logger:     logger,
	}
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (r passwordResetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(service.MinPasswordLength, security.MaxPasswordBytes)),
	)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (r changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(service.MinPasswordLength, security.MaxPasswordBytes)),
	)
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.FromError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		response.FromError(w, r, validationError(err))
		return
	}
	result, err := h.auth.Login(r.Context(), service.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	h.cookies.SetRefreshToken(w, result.Tokens.RefreshToken, result.Tokens.RememberMe, h.refreshTTL)
	response.JSON(w, r, http.StatusOK, result.Tokens)
}

// Refresh takes the refresh token from the cookie, falling back to the body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := security.GetCookie(r, security.RefreshTokenCookie)
	if raw == "" {
		var req refreshRequest
		if err := decodeJSON(r, &req, true); err != nil {
			response.FromError(w, r, err)
			return
		}
		raw = req.RefreshToken
	}
	if raw == "" {
		response.FromError(w, r, apperr.Unauthorized(apperr.CodeRefreshTokenMissing, "refresh token is required"))
		return
	}
	result, err := h.auth.Refresh(r.Context(), raw)
	if err != nil {
		if !apperr.IsKind(err, apperr.KindValidation) {
			h.cookies.Clear(w, security.RefreshTokenCookie)
		}
		response.FromError(w, r, err)
		return
	}
	h.cookies.SetRefreshToken(w, result.Tokens.RefreshToken, result.Tokens.RememberMe, h.refreshTTL)
	response.JSON(w, r, http.StatusOK, result.Tokens)
}

// Logout always acknowledges and clears both token cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	rawAccess, _ := middleware.AccessTokenFromRequest(r)
	rawRefresh := security.GetCookie(r, security.RefreshTokenCookie)
	if err := h.auth.Logout(r.Context(), rawAccess, rawRefresh); err != nil {
		h.logger.WarnContext(r.Context(), "logout cleanup failed", "error", err)
	}
	h.cookies.Clear(w, security.RefreshTokenCookie, security.AccessTokenCookie)
	response.JSON(w, r, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.FromError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		response.FromError(w, r, validationError(err))
		return
	}
	if err := h.resets.Request(r.Context(), req.Email); err != nil {
		h.logger.ErrorContext(r.Context(), "password reset request failed", "error", err)
	}
	response.JSON(w, r, http.StatusOK, messageResponse{Message: service.PasswordResetRequestedMessage})
}

func (h *AuthHandler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		response.FromError(w, r, apperr.Missing(apperr.CodeTokenRequired, "token query parameter is required"))
		return
	}
	status, err := h.resets.Validate(r.Context(), token)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.FromError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		response.FromError(w, r, validationError(err))
		return
	}
	user, err := h.resets.Reset(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.FromError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		response.FromError(w, r, validationError(err))
		return
	}
	if err := h.users.ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, messageResponse{Message: "password changed"})
}
