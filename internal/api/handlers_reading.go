package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	respond "github.com/chandrahoro/reading-service/internal/api/respond"
	"github.com/chandrahoro/reading-service/internal/model"
	"github.com/chandrahoro/reading-service/internal/services"
)

// ReadingHandler is a thin HTTP transport over ReadingService.
type ReadingHandler struct {
	svc *services.ReadingService
}

func NewReadingHandler(svc *services.ReadingService) *ReadingHandler {
	return &ReadingHandler{svc: svc}
}

// GetDaily GET /api/users/{userId}/readings/daily/{date}
// Serves from cache or repository, generating on a full miss.
func (h *ReadingHandler) GetDaily(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	date := vars["date"]
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		respond.WriteBadRequest(w, "date must be YYYY-MM-DD")
		return
	}
	out, err := h.svc.GetOrGenerate(r.Context(), vars["userId"], date)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// GetToday GET /api/users/{userId}/readings/today
func (h *ReadingHandler) GetToday(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	out, err := h.svc.GetOrGenerate(r.Context(), userID, time.Now().UTC().Format(model.DateLayout))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// GetLatest GET /api/users/{userId}/readings/latest
func (h *ReadingHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.GetLatest(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

func parseFilters(r *http.Request) model.ReadingFilters {
	q := r.URL.Query()
	f := model.ReadingFilters{
		ReadingType: q.Get("type"),
		From:        q.Get("from"),
		To:          q.Get("to"),
	}
	if q.Get("saved") == "true" {
		f.SavedOnly = true
	}
	if v := q.Get("read"); v != "" {
		b := v == "true"
		f.IsRead = &b
	}
	if v := q.Get("feedback"); v != "" {
		b := v == "true"
		f.HasFeedback = &b
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		f.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		f.Offset = v
	}
	return f
}

// ListReadings GET /api/users/{userId}/readings
func (h *ReadingHandler) ListReadings(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListReadings(r.Context(), mux.Vars(r)["userId"], parseFilters(r))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"readings": page.Readings,
		"count":    len(page.Readings),
		"hasMore":  page.HasMore,
	})
}

// MarkRead POST /api/readings/{readingId}/read
func (h *ReadingHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.MarkRead(r.Context(), mux.Vars(r)["readingId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// ToggleSaved POST /api/readings/{readingId}/save
func (h *ReadingHandler) ToggleSaved(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ToggleSaved(r.Context(), mux.Vars(r)["readingId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// AddFeedback POST /api/readings/{readingId}/feedback
func (h *ReadingHandler) AddFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Feedback string `json:"feedback"`
		Rating   *int   `json:"rating,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		respond.WriteBadRequest(w, "rating must be between 1 and 5")
		return
	}
	out, err := h.svc.AddFeedback(r.Context(), mux.Vars(r)["readingId"], req.Feedback, req.Rating)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// DeleteReading DELETE /api/readings/{readingId}
func (h *ReadingHandler) DeleteReading(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteReading(r.Context(), mux.Vars(r)["readingId"]); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats GET /api/users/{userId}/readings/stats
func (h *ReadingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Stats(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// PurgeUserReadings DELETE /api/users/{userId}/readings
func (h *ReadingHandler) PurgeUserReadings(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteAllForUser(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": n})
}
