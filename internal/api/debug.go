package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"hgsolve/internal/buildinfo"
)

// DebugJSON reports build info and the effective environment switches.
// Admin only; secrets never appear here, only presence flags.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	pr := s.getPrincipal(r)
	if !pr.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                 os.Getenv("PORT"),
			"AUTH_MODE":            os.Getenv("AUTH_MODE"),
			"CONFIG_PATH":          os.Getenv("CONFIG_PATH"),
			"SOLVE_RATE_RPS":       os.Getenv("SOLVE_RATE_RPS"),
			"SOLVE_RATE_BURST":     os.Getenv("SOLVE_RATE_BURST"),
			"WEBHOOK_MAX_ATTEMPTS": os.Getenv("WEBHOOK_MAX_ATTEMPTS"),
			"HAS_DATABASE_URL":     os.Getenv("DATABASE_URL") != "",
			"HAS_REDIS_URL":        os.Getenv("REDIS_URL") != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
