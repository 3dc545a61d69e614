// Package actions exposes user operations as uniformly shaped results for the
// presentation layer. Callers branch on Status; storage error details never leave
// this package except through Err, which is not serialized.
package actions

import (
	"errors"
	"net/http"

	"github.com/benvon/membership-api/internal/database"
)

// Status is the outcome flag of an action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrInvalidInput marks requests rejected before reaching storage.
var ErrInvalidInput = errors.New("invalid input")

// State is the result of an action. Data is only set on success.
type State struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Err     error  `json:"-"`
}

// OK reports whether the action succeeded.
func (s State) OK() bool { return s.Status == StatusSuccess }

// HTTPStatus maps the outcome to a response code.
func (s State) HTTPStatus() int {
	switch {
	case s.OK():
		return http.StatusOK
	case errors.Is(s.Err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(s.Err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(s.Err, database.ErrConstraintViolation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func success(message string, data any) State {
	return State{Status: StatusSuccess, Message: message, Data: data}
}

func failure(message string, err error) State {
	return State{Status: StatusError, Message: message, Err: err}
}
