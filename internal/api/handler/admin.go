package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mcoot/lazysignup-go/internal/api/response"
	"github.com/mcoot/lazysignup-go/internal/model"
	"github.com/mcoot/lazysignup-go/internal/services/auth"
	"github.com/mcoot/lazysignup-go/internal/services/lazy"
)

// AdminHandler handles lazy user maintenance endpoints
type AdminHandler struct {
	authService *auth.Service
	lazyService *lazy.Service
	lazyTTL     time.Duration
	logger      *slog.Logger
}

// NewAdminHandler creates a new admin handler. lazyTTL is the default age
// for the older_than parameter.
func NewAdminHandler(authService *auth.Service, lazyService *lazy.Service, lazyTTL time.Duration, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		authService: authService,
		lazyService: lazyService,
		lazyTTL:     lazyTTL,
		logger:      logger,
	}
}

// ListLazy handles GET /api/v1/admin/lazy
func (h *AdminHandler) ListLazy(w http.ResponseWriter, r *http.Request) {
	olderThan, ok := h.olderThan(w, r)
	if !ok {
		return
	}

	markers, err := h.lazyService.StaleLazyUsers(r.Context(), olderThan)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.LazyUsersFromModel(olderThan, markers))
}

// Cleanup handles POST /api/v1/admin/lazy/cleanup.
// Each stale user is deleted only if it is still lazy at delete time; users
// converted or removed since the listing are skipped.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	olderThan, ok := h.olderThan(w, r)
	if !ok {
		return
	}

	markers, err := h.lazyService.StaleLazyUsers(r.Context(), olderThan)
	if err != nil {
		WriteError(w, err)
		return
	}

	resp := response.CleanupResponse{UserIDs: make([]string, 0, len(markers))}
	for _, m := range markers {
		deleted, err := h.lazyService.DeleteIfLazy(r.Context(), m.UserID)
		if err != nil {
			WriteError(w, err)
			return
		}
		if !deleted {
			continue
		}
		h.authService.DropSessions(m.UserID)
		resp.Deleted++
		resp.UserIDs = append(resp.UserIDs, string(m.UserID))
	}

	h.logger.Info("stale lazy users removed",
		slog.Int("deleted", resp.Deleted),
		slog.Duration("older_than", olderThan),
	)
	response.JSON(w, http.StatusOK, resp)
}

// DeleteUser handles DELETE /api/v1/admin/users/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := model.UserID(mux.Vars(r)["id"])
	if err := h.authService.DeleteUser(r.Context(), id); err != nil {
		WriteError(w, err)
		return
	}
	response.NoContent(w)
}

func (h *AdminHandler) olderThan(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	raw := r.URL.Query().Get("older_than")
	if raw == "" {
		return h.lazyTTL, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		WriteError(w, NewInvalidRequestError("older_than must be a non-negative duration"))
		return 0, false
	}
	return d, true
}
