package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rtaudio-pipeline/internal/auth"
	"rtaudio-pipeline/internal/database"
	"rtaudio-pipeline/internal/pipeline"
)

func sendJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// originChecker accepts the listed origins, or every origin when none are
// configured.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		log.Println("WARNING: ALLOWED_ORIGINS not set - allowing all origins (development mode)")
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		for _, a := range allowed {
			if a == origin {
				return true
			}
		}
		log.Printf("Rejected WebSocket connection from unauthorized origin: %s", origin)
		return false
	}
}

type api struct {
	reg      *pipeline.Registry
	verifier auth.Verifier
	role     string
	timeout  time.Duration
}

func (a *api) authorize(w http.ResponseWriter, r *http.Request) bool {
	if err := auth.Authenticate(a.verifier, a.role, r); err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrForbidden) {
			status = http.StatusForbidden
		}
		sendJSONError(w, status, err.Error())
		return false
	}
	return true
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "ok",
		"pipelines": len(a.reg.List()),
		"database":  "disabled",
	}
	if database.Enabled() {
		resp["database"] = "ok"
		if err := database.HealthCheck(); err != nil {
			resp["database"] = err.Error()
		}
	}
	writeJSON(w, resp)
}

func (a *api) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !a.authorize(w, r) {
		return
	}
	infos := make([]pipeline.Info, 0)
	for _, p := range a.reg.List() {
		infos = append(infos, p.Info())
	}
	writeJSON(w, map[string]interface{}{
		"success":   true,
		"pipelines": infos,
	})
}

// handlePipeline serves /api/pipelines/{id}/dump, /api/pipelines/{id}/state
// and /api/pipelines/{id}/faults.
func (a *api) handlePipeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !a.authorize(w, r) {
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/pipelines/"), "/"), "/")
	if len(parts) != 2 {
		sendJSONError(w, http.StatusNotFound, "Not found")
		return
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, "Invalid pipeline id")
		return
	}

	if parts[1] == "faults" {
		a.handleFaults(w, r, id)
		return
	}

	p, err := a.reg.Get(id)
	if err != nil {
		sendJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	var kind pipeline.Kind
	switch parts[1] {
	case "dump":
		kind = pipeline.Dump
	case "state":
		kind = pipeline.Snapshot
	default:
		sendJSONError(w, http.StatusNotFound, "Not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()
	res, err := p.Exec(ctx, pipeline.Command{Kind: kind})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrBusy) {
			status = http.StatusServiceUnavailable
		}
		sendJSONError(w, status, err.Error())
		return
	}

	if kind == pipeline.Snapshot {
		writeJSON(w, res.Snapshot)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(res.Text))
}

func (a *api) handleFaults(w http.ResponseWriter, r *http.Request, id int) {
	if !database.Enabled() {
		sendJSONError(w, http.StatusServiceUnavailable, "Diagnostics database disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	faults, err := database.RecentFaults(id, limit)
	if err != nil {
		log.Printf("Failed to load faults: %v", err)
		sendJSONError(w, http.StatusInternalServerError, "Failed to load faults")
		return
	}
	writeJSON(w, map[string]interface{}{
		"success": true,
		"faults":  faults,
	})
}
