package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/benvon/membership-api/internal/actions"
)

// envelope is the body of every JSON response.
type envelope struct {
	Status    actions.Status `json:"status"`
	Message   string         `json:"message"`
	Data      any            `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondState writes an action result. successStatus overrides 200 for successful
// creates.
func respondState(w http.ResponseWriter, state actions.State, successStatus int) {
	status := state.HTTPStatus()
	if state.OK() && successStatus != 0 {
		status = successStatus
	}
	writeEnvelope(w, status, envelope{Status: state.Status, Message: state.Message, Data: state.Data})
}

// respondJSON sends a successful response carrying data.
func respondJSON(w http.ResponseWriter, status int, message string, data any) {
	writeEnvelope(w, status, envelope{Status: actions.StatusSuccess, Message: message, Data: data})
}

// respondJSONError sends an error response. message must be safe to show to clients.
func respondJSONError(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, envelope{Status: actions.StatusError, Message: message})
}

// decodeJSON decodes a single JSON object from r, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// respondDecodeError reports a decodeJSON failure, separating oversized bodies from
// malformed ones.
func respondDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondJSONError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	respondJSONError(w, http.StatusBadRequest, "Invalid request body")
}
