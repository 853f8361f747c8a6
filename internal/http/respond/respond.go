// Package respond writes JSON API responses.
package respond

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the error envelope. Reason is set for scheduling rejections
// and carries their stable wire value.
type ErrorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

func Rejection(w http.ResponseWriter, status int, reason, message string) {
	JSON(w, status, ErrorBody{Error: message, Reason: reason})
}

// Decode reads a JSON body, rejecting unknown fields.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
