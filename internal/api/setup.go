package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/gray-logic-litterbox/internal/cloud"
	"github.com/nerrad567/gray-logic-litterbox/internal/litterbox"
)

// discoverRequest is the body of POST /setup/discover.
type discoverRequest struct {
	Country  string `json:"country"`
	Account  string `json:"account"`
	Password string `json:"password"`
}

// discoveredDevice is one litter box in the discovery response.
type discoveredDevice struct {
	IoTID       string `json:"iot_id"`
	Name        string `json:"name"`
	ProductKey  string `json:"product_key"`
	ProductName string `json:"product_name,omitempty"`
	Online      bool   `json:"online"`
}

// handleDiscover validates account credentials against the vendor cloud and
// lists the litter boxes bound to the account.
//
// Outcomes:
//   - ok / no_devices: 200
//   - authentication_failed: 422 (the submitted cloud credentials are wrong)
//   - cannot_connect: 502
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if s.discover == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "discovery is not enabled")
		return
	}

	var req discoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Country == "" || req.Account == "" || req.Password == "" {
		writeBadRequest(w, "country, account and password are required")
		return
	}

	creds := cloud.Credentials{Country: req.Country, Account: req.Account, Password: req.Password}
	devices, outcome, err := s.discover(r.Context(), creds)

	switch outcome {
	case litterbox.OutcomeOK, litterbox.OutcomeNoDevices:
		out := make([]discoveredDevice, 0, len(devices))
		for _, d := range devices {
			out = append(out, discoveredDevice{
				IoTID:       d.IoTID,
				Name:        d.DisplayName(),
				ProductKey:  d.ProductKey,
				ProductName: d.ProductName,
				Online:      d.Status == 1,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome, "devices": out})
	case litterbox.OutcomeAuthenticationFailed:
		s.logger.Info("discovery authentication failed", "account", req.Account, "error", err)
		writeError(w, http.StatusUnprocessableEntity, string(outcome), "the vendor cloud rejected the account credentials")
	default:
		s.logger.Warn("discovery could not reach the vendor cloud", "error", err)
		writeError(w, http.StatusBadGateway, string(litterbox.OutcomeCannotConnect), "cannot connect to the vendor cloud")
	}
}
