package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// bindAndValidate binds the JSON body into out and runs the struct rules.
// On failure it writes a 400 and returns the error so the handler can stop.
func (r *Router) bindAndValidate(c *gin.Context, out interface{}) error {
	if err := c.ShouldBindJSON(out); err != nil {
		r.abort(c, NewError(http.StatusBadRequest, "invalid_request_body", err))
		return err
	}
	if err := r.validate.Struct(out); err != nil {
		r.abort(c, NewError(http.StatusBadRequest, "validation_failed", err))
		return err
	}
	return nil
}
