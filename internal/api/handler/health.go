package handler

import (
	"context"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/kiranshivaraju/agrismart/internal/api/response"
)

const serviceName = "agrismart-api"

const readyTimeout = 2 * time.Second

// Pinger is a dependency that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain readiness check to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Artifact is a file the server needs at analysis time.
type Artifact struct {
	Name string
	Path string
}

// NewHealthHandler returns the liveness handler for GET /api/v1/health.
func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, map[string]string{
			"status":  "ok",
			"service": serviceName,
		})
	}
}

// NewReadyHandler returns the readiness handler for GET /api/v1/ready. Each
// named dependency is pinged; any failure yields 503 DEGRADED.
func NewReadyHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		degraded := false
		for name, dep := range deps {
			checks[name] = "ok"
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "degraded"
				degraded = true
			}
		}

		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}

type checkResponse struct {
	OK     bool              `json:"ok"`
	Checks map[string]bool   `json:"checks"`
	Paths  map[string]string `json:"paths,omitempty"`
}

// NewCheckHandler returns the handler for GET /api/v1/check. It reports
// whether each artifact exists without loading any of them, and lists the
// configured paths when one is missing.
func NewCheckHandler(artifacts []Artifact) http.HandlerFunc {
	sorted := append([]Artifact(nil), artifacts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	return func(w http.ResponseWriter, _ *http.Request) {
		out := checkResponse{OK: true, Checks: make(map[string]bool, len(sorted))}
		for _, a := range sorted {
			_, err := os.Stat(a.Path)
			out.Checks[a.Name] = err == nil
			if err != nil {
				out.OK = false
			}
		}
		if !out.OK {
			out.Paths = make(map[string]string, len(sorted))
			for _, a := range sorted {
				out.Paths[a.Name] = a.Path
			}
		}
		response.JSON(w, out)
	}
}
