package gateway

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"polybot/pkg/dispatch"
)

type statusResponse struct {
	Status            string         `json:"status"`
	UptimeSeconds     int64          `json:"uptime_seconds"`
	WebhookRegistered bool           `json:"webhook_registered"`
	Updates           updateCounters `json:"updates"`
}

type updateCounters struct {
	Dropped    uint64 `json:"dropped"`
	Ignored    uint64 `json:"ignored"`
	Dispatched uint64 `json:"dispatched"`
	Failed     uint64 `json:"failed"`
}

// stats tracks what happened to acknowledged deliveries.
type stats struct {
	startedAt  time.Time
	registered atomic.Bool

	dropped    atomic.Uint64
	ignored    atomic.Uint64
	dispatched atomic.Uint64
	failed     atomic.Uint64
}

func (st *stats) record(outcome dispatch.Outcome) {
	switch outcome {
	case dispatch.OutcomeIgnored:
		st.ignored.Add(1)
	case dispatch.OutcomeDispatched:
		st.dispatched.Add(1)
	case dispatch.OutcomeFailed:
		st.failed.Add(1)
	}
}

func (st *stats) snapshot() updateCounters {
	return updateCounters{
		Dropped:    st.dropped.Load(),
		Ignored:    st.ignored.Load(),
		Dispatched: st.dispatched.Load(),
		Failed:     st.failed.Load(),
	}
}

// MarkRegistered flips readiness once Telegram has accepted the webhook URL.
func (s *Server) MarkRegistered() {
	s.stats.registered.Store(true)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.stats.registered.Load() {
		s.respondStatus(w, http.StatusServiceUnavailable, "not_ready")
		return
	}

	s.respondStatus(w, http.StatusOK, "ready")
}

func (s *Server) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := statusResponse{
		Status:            status,
		UptimeSeconds:     int64(time.Since(s.stats.startedAt).Seconds()),
		WebhookRegistered: s.stats.registered.Load(),
		Updates:           s.stats.snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}
