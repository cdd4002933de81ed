package todo

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"

	"todo-serverless/internal/auth"
	"todo-serverless/internal/observability"
	"todo-serverless/internal/repository"
	"todo-serverless/internal/user"
)

const (
	maxJSONBodyBytes = 1 << 20
	minNameLength    = 5
	maxNameLength    = 200
	defaultPageLimit = 10
	maxPageLimit     = 25
)

type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes expects auth.Middleware to have run.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Delete("/", h.DeleteMany)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/", h.Rename)
		r.Delete("/", h.Delete)
		r.Post("/complete", h.Complete)
		r.Post("/revert", h.Revert)
	})
}

type nameRequest struct {
	Name string `json:"name"`
}

func (r nameRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(minNameLength, maxNameLength)),
	)
}

type listRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (r listRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Limit, validation.Required, validation.Min(1), validation.Max(maxPageLimit)),
		validation.Field(&r.Offset, validation.Min(0)),
	)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	completed, err := parseCompleted(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := listRequest{Limit: defaultPageLimit}
	if page.Limit, err = queryInt(r, "limit", page.Limit); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if page.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !validate(w, page) {
		return
	}

	result, err := h.service.List(r.Context(), userID, ListQuery{Completed: completed, Limit: page.Limit, Offset: page.Offset})
	if err != nil {
		h.writeServiceError(w, r, "list_todos_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var body nameRequest
	if !decode(w, r, &body) || !validate(w, body) {
		return
	}

	created, err := h.service.Create(r.Context(), userID, body.Name)
	if err != nil {
		h.writeServiceError(w, r, "create_todo_failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}

	found, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		h.writeServiceError(w, r, "get_todo_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, found)
}

func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}

	var body nameRequest
	if !decode(w, r, &body) || !validate(w, body) {
		return
	}

	renamed, err := h.service.Rename(r.Context(), userID, id, body.Name)
	if err != nil {
		h.writeServiceError(w, r, "rename_todo_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, renamed)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}

	completed, err := h.service.Complete(r.Context(), userID, id)
	if err != nil {
		h.writeServiceError(w, r, "complete_todo_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, completed)
}

func (h *Handler) Revert(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}

	reverted, err := h.service.Revert(r.Context(), userID, id)
	if err != nil {
		h.writeServiceError(w, r, "revert_todo_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, reverted)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		h.writeServiceError(w, r, "delete_todo_failed", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	completed, err := parseCompleted(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := h.service.DeleteMany(r.Context(), userID, completed)
	if err != nil {
		h.writeServiceError(w, r, "delete_todos_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
	}
	return userID, ok
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := h.caller(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid todo id")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, event string, err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "todo not found")
	case errors.Is(err, user.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	default:
		fields := map[string]any{"path": r.URL.Path}
		if errors.Is(err, repository.ErrQueryBuild) {
			fields["fatal"] = true
		}
		observability.CaptureError(h.logger, event, err, fields)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func parseCompleted(r *http.Request) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("completed"))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.New("completed must be true or false")
	}
	return &value, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return value, nil
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func validate(w http.ResponseWriter, v validation.Validatable) bool {
	err := v.Validate()
	if err == nil {
		return true
	}

	var fields validation.Errors
	if errors.As(err, &fields) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": fields})
		return false
	}
	writeError(w, http.StatusUnprocessableEntity, err.Error())
	return false
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
