package handler

import (
	"net/http"

	"clawpos/internal/apierror"
	"clawpos/internal/dto"

	"github.com/gin-gonic/gin"
)

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if !bindJSON(c, req) {
		return false
	}
	return validate(c, req)
}

// bindJSON only decodes; used where the service validates itself.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid JSON: "+err.Error()))
		return false
	}
	return true
}

func validate(c *gin.Context, req interface{}) bool {
	if err := dto.Validate.Struct(req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(dto.FieldErrors(err)))
		return false
	}
	return true
}
