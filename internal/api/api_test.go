package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/chandrahoro/reading-service/internal/cache"
	"github.com/chandrahoro/reading-service/internal/invalidation"
	"github.com/chandrahoro/reading-service/internal/model"
	"github.com/chandrahoro/reading-service/internal/services"
	"github.com/chandrahoro/reading-service/internal/store/sqlite"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, userID, date string) (*model.Reading, error) {
	return &model.Reading{
		UserID:      userID,
		ReadingDate: date,
		ReadingType: model.ReadingTypeDaily,
		Guidance:    model.Guidance{Work: "favorable"},
	}, nil
}

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.EnsureSchema(context.Background(), db))

	repo := sqlite.NewWithDB(db)
	kv := cache.NewMemoryStore()
	rc := cache.NewReadingCache(kv, cache.NewStatsSink(), zerolog.Nop())
	readings := services.NewReadingService(repo, rc, stubGenerator{}, time.Minute, zerolog.Nop())
	users := services.NewUserService(repo, rc, zerolog.Nop())
	inval := invalidation.NewService(kv, rc, repo, 100, 0, zerolog.Nop())

	r := mux.NewRouter()
	userHandler := NewUserHandler(users)
	r.HandleFunc("/api/users", userHandler.CreateUser).Methods("POST")
	r.HandleFunc("/api/users/{userId}", userHandler.GetUser).Methods("GET")
	r.HandleFunc("/api/users/{userId}", userHandler.DeleteUser).Methods("DELETE")

	reading := NewReadingHandler(readings)
	r.HandleFunc("/api/users/{userId}/readings", reading.ListReadings).Methods("GET")
	r.HandleFunc("/api/users/{userId}/readings/daily/{date}", reading.GetDaily).Methods("GET")
	r.HandleFunc("/api/users/{userId}/readings/latest", reading.GetLatest).Methods("GET")
	r.HandleFunc("/api/readings/{readingId}/feedback", reading.AddFeedback).Methods("POST")

	admin := NewAdminHandler(inval, readings)
	r.HandleFunc("/api/admin/cache/flush", admin.Flush).Methods("POST")
	r.HandleFunc("/api/admin/cache/stats", admin.CacheStats).Methods("GET")

	h := NewHealthHandler(func() bool { return true })
	r.HandleFunc("/api/health", h.CheckHealth).Methods("GET")
	return r
}

func doJSON(t *testing.T, r *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func createUser(t *testing.T, r *mux.Router) string {
	t.Helper()
	rr := doJSON(t, r, "POST", "/api/users", map[string]interface{}{
		"email":      "test@chandrahoro.example",
		"dailyQuota": 10,
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var u model.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u))
	require.NotEmpty(t, u.UserID)
	return u.UserID
}

func TestUserLifecycle(t *testing.T) {
	r := newTestRouter(t)
	id := createUser(t, r)

	rr := doJSON(t, r, "GET", "/api/users/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, r, "DELETE", "/api/users/"+id, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, r, "GET", "/api/users/"+id, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateUserValidation(t *testing.T) {
	r := newTestRouter(t)

	rr := doJSON(t, r, "POST", "/api/users", map[string]interface{}{"timeZone": "UTC"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetDailyReading(t *testing.T) {
	r := newTestRouter(t)
	id := createUser(t, r)

	rr := doJSON(t, r, "GET", "/api/users/"+id+"/readings/daily/2025-03-14", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var out model.Reading
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, "2025-03-14", out.ReadingDate)
	require.NotEmpty(t, out.ReadingID)
}

func TestGetDailyReadingBadDate(t *testing.T) {
	r := newTestRouter(t)
	id := createUser(t, r)

	rr := doJSON(t, r, "GET", "/api/users/"+id+"/readings/daily/14-03-2025", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLatestNotFound(t *testing.T) {
	r := newTestRouter(t)
	id := createUser(t, r)

	rr := doJSON(t, r, "GET", "/api/users/"+id+"/readings/latest", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFeedbackValidation(t *testing.T) {
	r := newTestRouter(t)

	rr := doJSON(t, r, "POST", "/api/readings/r1/feedback", map[string]interface{}{
		"feedback": "ok",
		"rating":   9,
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFlushRequiresConfirm(t *testing.T) {
	r := newTestRouter(t)

	rr := doJSON(t, r, "POST", "/api/admin/cache/flush", map[string]interface{}{
		"pattern": "reading:*",
		"confirm": false,
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCacheStatsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	id := createUser(t, r)

	// One full miss then one hit.
	_ = doJSON(t, r, "GET", "/api/users/"+id+"/readings/daily/2025-03-14", nil)
	_ = doJSON(t, r, "GET", "/api/users/"+id+"/readings/daily/2025-03-14", nil)

	rr := doJSON(t, r, "GET", "/api/admin/cache/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var stats model.CacheStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)

	rr := doJSON(t, r, "GET", "/api/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "healthy")
}
