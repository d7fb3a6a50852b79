package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"otc-service/internal/models"
	"otc-service/internal/repository"
	"otc-service/internal/service"
	"otc-service/internal/util"
)

const maxBodyBytes = 1 << 20

const (
	msgInvalidOrExpired = "Invalid or expired code"
	msgTooManyAttempts  = "Too many attempts, request a new code"
)

// OTPHandler handles the signup and password-reset code endpoints
type OTPHandler struct {
	accounts *service.AccountService
	cooldown time.Duration
	logger   *zap.Logger
	limiter  repository.RateLimiter
}

func NewOTPHandler(accounts *service.AccountService, cooldown time.Duration, logger *zap.Logger) *OTPHandler {
	return &OTPHandler{
		accounts: accounts,
		cooldown: cooldown,
		logger:   logger,
	}
}

// WithRateLimiter throttles the endpoints that send a code.
func (h *OTPHandler) WithRateLimiter(limiter repository.RateLimiter) *OTPHandler {
	h.limiter = limiter
	return h
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

func errorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error:   code,
		Message: message,
	}
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type signupVerifyData struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      *models.Account `json:"user"`
}

func (h *OTPHandler) RegisterRoutes(router chi.Router) {
	throttle := RateLimit(h.limiter, h.logger)

	router.Route("/signup-otp", func(r chi.Router) {
		r.With(throttle).Post("/send", h.SendSignupCode)
		r.Post("/verify", h.VerifySignupCode)
		r.With(throttle).Post("/resend", h.ResendSignupCode)
	})
	router.Route("/password/otp", func(r chi.Router) {
		r.With(throttle).Post("/send", h.SendPasswordResetCode)
		r.Post("/verify", h.VerifyPasswordResetCode)
	})
}

// SendSignupCode handles POST /signup-otp/send
func (h *OTPHandler) SendSignupCode(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.accounts.StartSignup(r.Context(), req); err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Verification code sent to your email"))
}

// VerifySignupCode handles POST /signup-otp/verify
func (h *OTPHandler) VerifySignupCode(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req verifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.accounts.VerifySignup(r.Context(), req.Email, req.Code)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(signupVerifyData{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      result.Account,
	}, "Email verified, account created"))
	h.logger.Info("Signup verified via HTTP",
		util.String("account_id", result.Account.ID),
		util.Duration("duration", time.Since(start)))
}

// ResendSignupCode handles POST /signup-otp/resend
func (h *OTPHandler) ResendSignupCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.accounts.ResendSignup(r.Context(), req.Email); err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "A new verification code has been sent"))
}

// SendPasswordResetCode handles POST /password/otp/send. The answer is the same whether
// or not the email is registered.
func (h *OTPHandler) SendPasswordResetCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.accounts.StartPasswordReset(r.Context(), req.Email); err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "If an account exists for this email, a reset code has been sent"))
}

// VerifyPasswordResetCode handles POST /password/otp/verify
func (h *OTPHandler) VerifyPasswordResetCode(w http.ResponseWriter, r *http.Request) {
	var req service.PasswordResetRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.accounts.VerifyPasswordReset(r.Context(), req); err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Password updated successfully"))
}

func (h *OTPHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, errorResponse("invalid_body", "Invalid request body"))
		return false
	}
	return true
}

func (h *OTPHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *OTPHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, body Response) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("error", body.Error))
	h.respondWithJSON(w, statusCode, body)
}

// respondWithServiceError never echoes internal detail, except for validation errors the
// caller can fix.
func (h *OTPHandler) respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		h.respondWithError(w, http.StatusBadRequest, err, errorResponse("validation_error", err.Error()))
	case errors.Is(err, service.ErrNotFoundOrExpired):
		h.respondWithError(w, http.StatusBadRequest, err, errorResponse("invalid_or_expired_code", msgInvalidOrExpired))
	case errors.Is(err, service.ErrInvalidCode):
		h.respondWithError(w, http.StatusBadRequest, err, errorResponse("invalid_code", msgInvalidOrExpired))
	case errors.Is(err, service.ErrTooManyAttempts):
		h.respondWithError(w, http.StatusTooManyRequests, err, errorResponse("too_many_attempts", msgTooManyAttempts))
	case errors.Is(err, service.ErrResendTooSoon):
		if h.cooldown > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(h.cooldown.Seconds())))
		}
		h.respondWithError(w, http.StatusTooManyRequests, err, errorResponse("resend_too_soon", "Please wait before requesting another code"))
	case errors.Is(err, service.ErrDispatchFailed):
		h.respondWithError(w, http.StatusBadGateway, err, errorResponse("dispatch_failed", "We could not send the code, please try again"))
	case errors.Is(err, service.ErrAccountExists):
		h.respondWithError(w, http.StatusConflict, err, errorResponse("account_exists", "An account with this email already exists"))
	default:
		h.logger.Error("Unhandled service error", util.ErrorField(err))
		h.respondWithJSON(w, http.StatusInternalServerError, errorResponse("internal_error", "Something went wrong, please try again"))
	}
}
