package server

import (
	"encoding/json"
	"net/http"

	"github.com/rathix/devproxy/internal/health"
	"github.com/rathix/devproxy/internal/proxy"
)

// StatusEndpoint reports the proxy table and backend reachability.
const StatusEndpoint = "/__devproxy/status"

// BackendStatus provides the latest backend probe results.
type BackendStatus interface {
	Snapshot() []health.TargetState
}

type statusRule struct {
	Prefix string `json:"prefix"`
	Target string `json:"target"`
}

type statusPayload struct {
	Version    string               `json:"version"`
	Rules      []statusRule         `json:"rules"`
	Backends   []health.TargetState `json:"backends"`
	LiveReload bool                 `json:"liveReload"`
	Clients    int                  `json:"clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := statusPayload{
		Version:  s.cfg.Version,
		Rules:    rulesPayload(s.cfg.Table),
		Backends: []health.TargetState{},
	}
	if s.cfg.Backends != nil {
		payload.Backends = s.cfg.Backends.Snapshot()
	}
	if s.cfg.LiveReload != nil {
		payload.LiveReload = true
		payload.Clients = s.cfg.LiveReload.Count()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("failed to write status", "error", err)
	}
}

func rulesPayload(t *proxy.Table) []statusRule {
	rules := t.Rules()
	out := make([]statusRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, statusRule{Prefix: r.Prefix, Target: r.Target.String()})
	}
	return out
}
