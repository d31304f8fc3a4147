// Package httpapi exposes the dashboard-facing HTTP/WebSocket surface
// named in spec.md §6: read endpoints over the Event Store, two admin
// actions (attack rehearsal, manual restore), and a liveness probe.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"guardian-amm/internal/attacksim"
	"guardian-amm/internal/domain"
	"guardian-amm/internal/eventstore"
	"guardian-amm/internal/restore"
)

// defaultPriceHours/maxPriceHours bound GET /api/prices?hours=H per
// spec.md §6 ("defaulted, capped").
const (
	defaultPriceHours = 24
	maxPriceHours     = 24 * 14
)

// Attacker is the subset of internal/attacksim.Simulator the server
// depends on.
type Attacker interface {
	RunWithFraction(ctx context.Context, fractionPct decimal.Decimal) attacksim.Result
}

// Restorer is the subset of internal/restore.Scheduler the server
// depends on for the manual admin reset.
type Restorer interface {
	FireNow(ctx context.Context, wethReserve, usdcReserve, oraclePrice decimal.Decimal) restore.Result
}

// Server wires the Event Store and admin actions into an http.Handler.
type Server struct {
	events    *eventstore.Store
	attacker  Attacker
	restorer  Restorer
	logger    zerolog.Logger
	startedAt time.Time
	mux       *http.ServeMux
}

// New builds a Server and registers its routes. attacker/restorer may
// be nil, in which case the corresponding admin endpoint reports a 503
// rather than panicking — a deployment can run the monitor without the
// rehearsal routine wired in.
func New(events *eventstore.Store, attacker Attacker, restorer Restorer, logger zerolog.Logger) *Server {
	s := &Server{
		events:    events,
		attacker:  attacker,
		restorer:  restorer,
		logger:    logger.With().Str("component", "httpapi").Logger(),
		startedAt: time.Now().UTC(),
	}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/events/threats", s.handleThreats)
	s.mux.HandleFunc("GET /api/events/actions", s.handleActions)
	s.mux.HandleFunc("GET /api/prices", s.handlePrices)
	s.mux.HandleFunc("POST /api/admin/simulate-attack", s.handleSimulateAttack)
	s.mux.HandleFunc("POST /api/admin/reset-amm", s.handleResetAMM)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP satisfies http.Handler, making Server mountable directly
// under http.ListenAndServe or behind middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// the header is already written; nothing left to do but drop it.
		return
	}
}

// writeError emits spec.md §7's structured error shape.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"kind": kind, "message": message},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"uptime_sec": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) latestSnapshot() (domain.Snapshot, bool) {
	recent := s.events.ByKind([]domain.EventKind{domain.EventObservation}, 1)
	if len(recent) == 0 || recent[0].Observation == nil {
		return domain.Snapshot{}, false
	}
	return recent[0].Observation.Snapshot, true
}
