package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Timestamp  string            `json:"timestamp"`
}

// HealthCheck probes one dependency. Optional dependencies only degrade the
// service when they fail; a required one makes it unhealthy.
type HealthCheck struct {
	Name     string
	Required bool
	Check    func(ctx context.Context) error
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
func NewHealthHandler(checks ...HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		response := HealthResponse{
			Status:     "healthy",
			Components: make(map[string]string, len(checks)),
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}
		code := http.StatusOK

		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				response.Components[c.Name] = "unavailable"
				if c.Required {
					response.Status = "unhealthy"
					code = http.StatusServiceUnavailable
				} else if response.Status == "healthy" {
					response.Status = "degraded"
				}
				continue
			}
			response.Components[c.Name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(response)
	}
}
