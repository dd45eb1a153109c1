package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds one readiness probe.
const checkTimeout = 5 * time.Second

// response is the JSON body of a health endpoint.
type response struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Handler returns a mux serving /health/live, /health/ready and
// /health/version.
func (c *Checker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", c.handleLive)
	mux.HandleFunc("/health/ready", c.handleReady)
	mux.HandleFunc("/health/version", c.handleVersion)
	return mux
}

// handleLive answers liveness. A draining process is still alive.
func (c *Checker) handleLive(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, response{Status: "ok"})
}

// handleReady answers readiness: draining or any failed check is 503.
func (c *Checker) handleReady(w http.ResponseWriter, r *http.Request) {
	if c.Draining() {
		writeResponse(w, http.StatusServiceUnavailable, response{Status: "draining"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	status := http.StatusOK
	body := response{Status: "ok"}

	results := c.Run(ctx)
	if len(results) > 0 {
		body.Checks = make(map[string]string, len(results))
		for name, err := range results {
			if err != nil {
				status = http.StatusServiceUnavailable
				body.Status = "degraded"
				body.Checks[name] = err.Error()
			} else {
				body.Checks[name] = "ok"
			}
		}
	}

	writeResponse(w, status, body)
}

// handleVersion reports the build version.
func (c *Checker) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, response{Status: "ok", Version: c.Version()})
}

func writeResponse(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
