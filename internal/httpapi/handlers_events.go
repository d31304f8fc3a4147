package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"guardian-amm/internal/domain"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
)

func parseLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultEventsLimit, maxEventsLimit)
	writeJSON(w, http.StatusOK, toWireEvents(s.events.Recent(limit)))
}

func (s *Server) handleThreats(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultEventsLimit, maxEventsLimit)
	all := s.events.ByKind([]domain.EventKind{domain.EventReasoning}, 0)
	threats := make([]domain.Event, 0, len(all))
	for _, e := range all {
		if e.Reasoning != nil && e.Reasoning.Classification.Kind != domain.KindNatural {
			threats = append(threats, e)
			if len(threats) >= limit {
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, toWireEvents(threats))
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultEventsLimit, maxEventsLimit)
	writeJSON(w, http.StatusOK, toWireEvents(s.events.ByKind([]domain.EventKind{domain.EventAction}, limit)))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.latestSnapshot()

	threats := s.events.ByKind([]domain.EventKind{domain.EventReasoning}, 0)
	threatsDetected := 0
	for _, e := range threats {
		if e.Reasoning != nil && e.Reasoning.Classification.Kind != domain.KindNatural {
			threatsDetected++
		}
	}

	actions := s.events.ByKind([]domain.EventKind{domain.EventAction}, 0)
	actionsTaken := 0
	for _, e := range actions {
		if e.Action != nil && e.Action.Record.Success && e.Action.Record.Intent.Action != domain.ActionNone {
			actionsTaken++
		}
	}

	stats := map[string]interface{}{
		"total_events":     s.events.TotalAppended(),
		"threats_detected": threatsDetected,
		"actions_taken":    actionsTaken,
	}
	if ok {
		stats["current_oracle_price"] = snap.OraclePrice.String()
		stats["current_amm_price"] = snap.AMMPrice.String()
		stats["price_deviation"] = snap.DeviationPct().String()
		stats["amm_paused"] = snap.Flags.AMMPaused
		stats["vault_paused"] = snap.Flags.VaultPaused
		stats["liquidations_blocked"] = snap.Flags.LiquidationsBlocked
		stats["last_update_iso"] = snap.Timestamp.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	hours := defaultPriceHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			hours = n
		}
	}
	if hours > maxPriceHours {
		hours = maxPriceHours
	}

	now := time.Now().UTC()
	from := now.Add(-time.Duration(hours) * time.Hour)
	observations := s.events.ByTimeRange(from, now, 0)

	type pricePoint struct {
		Timestamp   string `json:"timestamp"`
		Block       uint64 `json:"block"`
		OraclePrice string `json:"oracle_price"`
		AMMPrice    string `json:"amm_price"`
		DeviationPc string `json:"price_deviation_pct"`
	}

	points := make([]pricePoint, 0, len(observations))
	for _, e := range observations {
		if e.Kind != domain.EventObservation || e.Observation == nil {
			continue
		}
		snap := e.Observation.Snapshot
		points = append(points, pricePoint{
			Timestamp:   snap.Timestamp.UTC().Format(time.RFC3339),
			Block:       snap.BlockNumber,
			OraclePrice: snap.OraclePrice.String(),
			AMMPrice:    snap.AMMPrice.String(),
			DeviationPc: snap.DeviationPct().String(),
		})
	}
	writeJSON(w, http.StatusOK, points)
}
