package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// RoundCounter is the part of the history store the rounds endpoint needs.
type RoundCounter interface {
	CountRoundsByPlatform(ctx context.Context) (map[string]int64, error)
}

// RoundsHandler returns stored round counts per platform.
func RoundsHandler(store RoundCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		counts, err := store.CountRoundsByPlatform(ctx)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			slog.Error("Failed to count rounds", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "history store unavailable"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"rounds": counts})
	}
}
