package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	respond "github.com/chandrahoro/reading-service/internal/api/respond"
	"github.com/chandrahoro/reading-service/internal/invalidation"
	"github.com/chandrahoro/reading-service/internal/model"
	"github.com/chandrahoro/reading-service/internal/services"
)

// AdminHandler exposes the cache administration surface. These endpoints
// are operational tooling and sit under /api/admin.
type AdminHandler struct {
	inval    *invalidation.Service
	readings *services.ReadingService
}

func NewAdminHandler(inv *invalidation.Service, rs *services.ReadingService) *AdminHandler {
	return &AdminHandler{inval: inv, readings: rs}
}

func dryRun(r *http.Request) bool { return r.URL.Query().Get("dryRun") == "true" }

// InvalidatePattern POST /api/admin/cache/invalidate
func (h *AdminHandler) InvalidatePattern(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if req.Pattern == "" {
		respond.WriteBadRequest(w, "pattern is required")
		return
	}
	rep, err := h.inval.InvalidateByPattern(r.Context(), req.Pattern, dryRun(r))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, rep)
}

// InvalidateUser POST /api/admin/cache/users/{userId}/invalidate
func (h *AdminHandler) InvalidateUser(w http.ResponseWriter, r *http.Request) {
	class := invalidation.Class(r.URL.Query().Get("class"))
	if class == "" {
		class = invalidation.ClassAll
	}
	switch class {
	case invalidation.ClassReading, invalidation.ClassList, invalidation.ClassLatest, invalidation.ClassAll:
	default:
		respond.WriteBadRequest(w, "class must be one of reading, list, latest, all")
		return
	}
	rep, err := h.inval.InvalidateUserCache(r.Context(), mux.Vars(r)["userId"], class)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, rep)
}

// Cleanup POST /api/admin/cache/cleanup
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	maxAge := 30
	if v, err := strconv.Atoi(r.URL.Query().Get("maxAgeDays")); err == nil && v > 0 {
		maxAge = v
	}
	rep, err := h.inval.CleanupOldEntries(r.Context(), maxAge, dryRun(r))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, rep)
}

// Warm POST /api/admin/cache/users/{userId}/warm
func (h *AdminHandler) Warm(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && v > 0 {
		days = v
	}
	rep, err := h.inval.WarmUserCache(r.Context(), mux.Vars(r)["userId"], days, model.ReadingTypeDaily)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, rep)
}

// Flush POST /api/admin/cache/flush
// Requires confirm=true; refuses to touch the store otherwise.
func (h *AdminHandler) Flush(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern string `json:"pattern"`
		Confirm bool   `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	rep, err := h.inval.EmergencyFlush(r.Context(), req.Pattern, req.Confirm)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, rep)
}

// Refresh POST /api/admin/cache/users/{userId}/refresh/{date}
func (h *AdminHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	force := r.URL.Query().Get("force") == "true"
	rep, err := h.inval.RefreshCache(r.Context(), vars["userId"], vars["date"], force)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, rep)
}

// CacheHealth GET /api/admin/cache/health
func (h *AdminHandler) CacheHealth(w http.ResponseWriter, r *http.Request) {
	rep, err := h.inval.CacheHealth(r.Context())
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, rep)
}

// CacheStats GET /api/admin/cache/stats
func (h *AdminHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, h.readings.CacheStats())
}
