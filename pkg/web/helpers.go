package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

func RespondJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	// Handle nil payload
	if payload == nil {
		w.WriteHeader(status)
		return
	}

	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Error encoding response to JSON", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	RespondJSON(w, logger, status, map[string]string{"error": message})
}

// ParseID extracts the product ID from the request path. Returns the ID and a boolean indicating success.
func ParseID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		RespondError(w, logger, http.StatusBadRequest, "Invalid ID: empty")
		return "", false
	}
	return id, true
}

// ParseOptionalTime reads an RFC 3339 timestamp or a plain YYYY-MM-DD date from the query.
// A missing parameter yields nil. A plain date as an upper bound ("to") covers the whole day.
func ParseOptionalTime(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string) (*time.Time, bool) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, true
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid %s date: %s", key, value))
		return nil, false
	}
	if key == "to" {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, true
}
