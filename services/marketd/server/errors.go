package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"swapmarket/native/marketplace"
)

// errorKinds maps each marketplace error kind onto its metric label and HTTP
// status.
var errorKinds = []struct {
	err    error
	label  string
	status int
}{
	{marketplace.ErrUnauthorized, "unauthorized", http.StatusForbidden},
	{marketplace.ErrInvalidAmount, "invalid_amount", http.StatusBadRequest},
	{marketplace.ErrNotFound, "not_found", http.StatusNotFound},
	{marketplace.ErrNotAllowed, "not_allowed", http.StatusConflict},
	{marketplace.ErrPaymentMismatch, "payment_mismatch", http.StatusPaymentRequired},
	{marketplace.ErrInsufficientEscrow, "insufficient_escrow", http.StatusUnprocessableEntity},
}

func classify(err error) (string, int) {
	if err == nil {
		return "success", http.StatusOK
	}
	for _, kind := range errorKinds {
		if errors.Is(err, kind.err) {
			return kind.label, kind.status
		}
	}
	return "error", http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeOperationError reports a failed marketplace call. Internal failures do
// not leak their message.
func writeOperationError(w http.ResponseWriter, err error) {
	kind, status := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}
