package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"quest-session-service/internal/app"
	"quest-session-service/internal/domain"
)

// RateLimitChecker is the server-side rate limit remote procedure.
type RateLimitChecker interface {
	Check(ctx context.Context, email string) (domain.RateLimitResult, error)
}

// PathHandler exposes the learning path resolver to map and dashboard
// surfaces, plus the login rate-limit check.
type PathHandler struct {
	resolver  *app.PathResolver
	rateLimit RateLimitChecker
}

func NewPathHandler(resolver *app.PathResolver, rateLimit RateLimitChecker) *PathHandler {
	return &PathHandler{resolver: resolver, rateLimit: rateLimit}
}

// ServePath handles GET /path?userId=...&grade=...
func (h *PathHandler) ServePath(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	grade := r.URL.Query().Get("grade")
	if userID == "" || grade == "" {
		http.Error(w, "missing userId or grade", http.StatusBadRequest)
		return
	}

	result, err := h.resolver.Generate(r.Context(), userID, grade)
	if err != nil {
		if domain.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		log.Printf("path generation for %s failed: %v", userID, err)
		http.Error(w, "could not generate learning path", http.StatusBadGateway)
		return
	}
	writeJSON(w, result)
}

// ServeRateLimit handles GET /ratelimit?email=...
func (h *PathHandler) ServeRateLimit(w http.ResponseWriter, r *http.Request) {
	if h.rateLimit == nil {
		http.Error(w, "rate limit check not configured", http.StatusNotImplemented)
		return
	}
	email := r.URL.Query().Get("email")
	if email == "" {
		http.Error(w, "missing email", http.StatusBadRequest)
		return
	}
	result, err := h.rateLimit.Check(r.Context(), email)
	if err != nil {
		log.Printf("rate limit check failed: %v", err)
		http.Error(w, "rate limit check failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
