// Package health serves the liveness and readiness probes.
//
//   - /api/health — liveness; a process that can answer HTTP is alive.
//   - /api/ready  — readiness; passes only when every registered probe
//     (storage, providers) reports healthy.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds one readiness probe.
const probeTimeout = 5 * time.Second

// Probe is a named dependency check. Probe functions must respect context
// cancellation and return nil when the dependency is usable.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type report struct {
	Status string            `json:"status"`
	Probes map[string]string `json:"probes,omitempty"`
}

// Handler answers the health endpoints. The probe list is fixed at
// construction; Handler is safe for concurrent use.
type Handler struct {
	probes []Probe
}

// New creates a Handler evaluating the given probes in order on each
// readiness request.
func New(probes ...Probe) *Handler {
	p := make([]Probe, len(probes))
	copy(p, probes)
	return &Handler{probes: p}
}

// Live always answers 200.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Ready answers 200 only when every probe passes, 503 otherwise. Each probe
// runs under its own deadline derived from the request context.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	probes := make(map[string]string, len(h.probes))
	healthy := true

	for _, p := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Check(ctx)
		cancel()

		if err != nil {
			probes[p.Name] = "fail: " + err.Error()
			healthy = false
		} else {
			probes[p.Name] = "ok"
		}
	}

	rep := report{Status: "ok", Probes: probes}
	status := http.StatusOK
	if !healthy {
		rep.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.Live)
	mux.HandleFunc("GET /api/ready", h.Ready)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
