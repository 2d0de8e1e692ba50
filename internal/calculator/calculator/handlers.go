package calculator

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Vodeneev/crashwatch/internal/pkg/models"
	"github.com/Vodeneev/crashwatch/internal/pkg/storage"
)

// API exposes the signal trigger and advisory reads.
type API struct {
	scheduler  *Scheduler
	advisories storage.AdvisoryStorage
	apiKey     string
}

func NewAPI(scheduler *Scheduler, advisories storage.AdvisoryStorage, apiKey string) *API {
	return &API{scheduler: scheduler, advisories: advisories, apiKey: apiKey}
}

// RegisterRoutes registers signal endpoints onto r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/signals", func(r chi.Router) {
		r.With(a.requireKey).Post("/run", a.handleRun)
		r.Get("/last", a.handleLast)
		r.Get("/active", a.handleActive)
	})
}

// requireKey accepts "Authorization: Bearer <key>" or "X-Cron-Key: <key>".
func (a *API) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.apiKey == "" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "signal trigger is disabled: api key not configured"})
			return
		}
		key := r.Header.Get("X-Cron-Key")
		if auth := r.Header.Get("Authorization"); key == "" && strings.HasPrefix(auth, "Bearer ") {
			key = strings.TrimPrefix(auth, "Bearer ")
		}
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleRun triggers a run and answers 200 when every platform succeeded, 207 otherwise.
func (a *API) handleRun(w http.ResponseWriter, r *http.Request) {
	// the run outlives a client that hangs up
	rep := a.scheduler.RunAll(context.WithoutCancel(r.Context()))

	status := http.StatusOK
	if !rep.AllSucceeded() {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, rep)
}

func (a *API) handleLast(w http.ResponseWriter, r *http.Request) {
	rep, ok := a.scheduler.LastReport()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no runs yet"})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) handleActive(w http.ResponseWriter, r *http.Request) {
	platform := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("platform")))
	if platform == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "platform is required"})
		return
	}
	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if n > 50 {
				n = 50
			}
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	list, err := a.advisories.GetActiveAdvisories(ctx, platform, time.Now(), limit)
	if err != nil {
		slog.Error("Failed to load active advisories", "platform", platform, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "advisory store unavailable"})
		return
	}
	if list == nil {
		list = []models.Advisory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"platform": platform, "advisories": list})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
