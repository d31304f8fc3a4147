package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// simulateAttackRequest optionally overrides the rehearsal's swap size.
// An empty body is valid: the simulator falls back to its configured
// default.
type simulateAttackRequest struct {
	SwapFractionPct float64 `json:"swap_fraction_pct" validate:"omitempty,gt=0,lte=90"`
}

func (s *Server) handleSimulateAttack(w http.ResponseWriter, r *http.Request) {
	if s.attacker == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "attack rehearsal routine is not configured")
		return
	}

	var req simulateAttackRequest
	if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	fractionPct := decimal.Zero
	if req.SwapFractionPct > 0 {
		fractionPct = decimal.NewFromFloat(req.SwapFractionPct)
	}
	result := s.attacker.RunWithFraction(r.Context(), fractionPct)
	resp := map[string]interface{}{
		"success": result.Success,
		"blocked": result.Blocked,
		"message": result.Message,
	}
	if result.TxHash != "" {
		resp["tx_hash"] = result.TxHash
	}
	if !result.PriceBefore.IsZero() {
		resp["price_before"] = result.PriceBefore.String()
	}
	if !result.PriceAfter.IsZero() {
		resp["price_after"] = result.PriceAfter.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResetAMM(w http.ResponseWriter, r *http.Request) {
	if s.restorer == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "restore scheduler is not configured")
		return
	}

	snap, ok := s.latestSnapshot()
	if !ok {
		writeError(w, http.StatusConflict, "no_snapshot", "no observation has been recorded yet")
		return
	}

	target := snap.OraclePrice
	if target.IsZero() {
		target = decimal.NewFromInt(1)
	}
	result := s.restorer.FireNow(r.Context(), snap.WETHReserve, snap.USDCReserve, target)

	message := "restore sequence completed"
	status := http.StatusOK
	if !result.Success {
		message = result.FailureReason
		status = http.StatusInternalServerError
	}

	resp := map[string]interface{}{
		"success": result.Success,
		"message": message,
	}
	if result.Success {
		resp["new_price"] = result.NewPrice.String()
		resp["tx_hash"] = result.TxHash
	}
	writeJSON(w, status, resp)
}
