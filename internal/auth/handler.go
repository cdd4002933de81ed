package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"todo-serverless/internal/observability"
	"todo-serverless/internal/user"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !decodeAndValidate(w, r, &body) {
		return
	}

	tokens, err := h.service.SignUp(r.Context(), body.Username, body.Password)
	if err != nil {
		h.writeServiceError(w, r, "sign_up_failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, tokens)
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !decodeAndValidate(w, r, &body) {
		return
	}

	tokens, err := h.service.SignIn(r.Context(), body.Username, body.Password)
	if err != nil {
		h.writeServiceError(w, r, "sign_in_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// Refresh takes the refresh token from a bearer header or, failing that,
// from a JSON body.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if raw, err := bearerToken(r); err == nil {
		body.RefreshToken = raw
	} else if !decodeAndValidate(w, r, &body) {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), strings.TrimSpace(body.RefreshToken))
	if err != nil {
		h.writeServiceError(w, r, "refresh_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	u, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, "profile_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	var body changePasswordRequest
	if !decodeAndValidate(w, r, &body) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, body.OldPassword, body.NewPassword); err != nil {
		h.writeServiceError(w, r, "change_password_failed", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, event string, err error) {
	switch {
	case errors.Is(err, ErrUserAlreadyExists):
		writeError(w, http.StatusConflict, "user already exists")
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case isTokenError(err):
		writeError(w, http.StatusUnauthorized, tokenErrorMessage(err))
	case errors.Is(err, user.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	default:
		observability.CaptureError(h.logger, event, err, map[string]any{"path": r.URL.Path})
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

type validatable interface {
	Validate() error
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	if err := dst.Validate(); err != nil {
		var fields validation.Errors
		if errors.As(err, &fields) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": fields})
			return false
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
