package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/studyshelf/apiserver/internal/auth"
	"github.com/studyshelf/apiserver/internal/services"
	"github.com/studyshelf/apiserver/internal/store"
)

// UserHandler provides the teacher-only user administration endpoints.
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler constructs a handler with the provided service.
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers user administration routes. Every route goes through
// the engine's teacher-only rule; no code path skips the check.
func UserRouter(r chi.Router, userService *services.UserService) {
	handler := NewUserHandler(userService)

	r.With(Require(auth.ActionListUsers)).Get("/", handler.ListUsers)
	r.With(Require(auth.ActionApproveUser)).Patch("/{userID}/approve", handler.ApproveUser)
	r.With(Require(auth.ActionRevokeUser)).Patch("/{userID}/revoke", handler.RevokeUser)
	r.With(Require(auth.ActionDismissUser)).Delete("/{userID}", handler.DismissUser)
}

// UserActionResponse reports the outcome of an approval-state change.
type UserActionResponse struct {
	Detail string `json:"detail"`
	ID     int    `json:"id"`
}

// ListUsers returns every account, pending and approved alike.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// ApproveUser marks an account as approved.
func (h *UserHandler) ApproveUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.userService.Approve(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to approve user")
		return
	}
	writeJSON(w, http.StatusOK, UserActionResponse{Detail: fmt.Sprintf("user %d approved", id), ID: id})
}

// RevokeUser withdraws an account's approval. Already-issued tokens keep
// working until they expire.
func (h *UserHandler) RevokeUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.userService.Revoke(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to revoke user")
		return
	}
	writeJSON(w, http.StatusOK, UserActionResponse{Detail: fmt.Sprintf("user %d approval revoked", id), ID: id})
}

// DismissUser deletes an account. Dismissal is refused while the account
// still owns materials.
func (h *UserHandler) DismissUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.userService.Dismiss(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, services.ErrUserHasMaterials):
			writeError(w, http.StatusConflict, "user still owns materials")
		default:
			writeError(w, http.StatusInternalServerError, "failed to dismiss user")
		}
		return
	}
	writeJSON(w, http.StatusOK, UserActionResponse{Detail: fmt.Sprintf("user %d dismissed", id), ID: id})
}

func parseUserID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid user id")
	}
	return id, nil
}
