package handler

import (
	"errors"
	"net/http"

	"github.com/skylane/utm/internal/api/response"
	"github.com/skylane/utm/internal/control"
)

// controlError maps an error returned by the control center onto a problem
// response.
func controlError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, control.ErrValidation):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, control.ErrVehicleNotFound):
		response.NotFound(w, r, err.Error())
	case errors.Is(err, control.ErrState):
		response.Conflict(w, r, err.Error())
	default:
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
