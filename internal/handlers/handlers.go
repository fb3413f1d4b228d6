// Package handlers serves the example order endpoints guarded by admission
// control, plus the node health report.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"quotagate/internal/common/distributed"
	"quotagate/internal/common/logging"
)

// healthTimeout bounds the whole health report
const healthTimeout = 5 * time.Second

// Check is one dependency probed by HealthCheck
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type Handlers struct {
	orders  *OrderBook
	checks  []Check
	elector distributed.Elector
	nodeID  string
	logger  logging.Logger
}

func New(nodeID string, elector distributed.Elector, checks ...Check) *Handlers {
	return &Handlers{
		orders:  NewOrderBook(),
		checks:  checks,
		elector: elector,
		nodeID:  nodeID,
		logger:  logging.Component("handlers"),
	}
}

// HealthCheck probes every configured dependency and answers 503 when any
// of them fails.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Probe(ctx); err != nil {
			h.logger.WithContext(r.Context()).Warn("Health check failed",
				logging.String("component", c.Name),
				logging.Err(err),
			)
			components[c.Name] = err.Error()
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		components[c.Name] = "ok"
	}

	health := map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"node_id":    h.nodeID,
		"components": components,
	}
	if h.elector != nil {
		health["leader"] = h.elector.IsLeader(ctx)
		health["leader_ip"] = h.elector.LeaderIP(ctx)
	}

	writeJSON(w, code, health)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
