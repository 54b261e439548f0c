package validation

import (
	"fmt"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/hideyau28/hk-marketplace-sub002/internal/apperr"
)

// BindAndValidate binds the JSON body into `out` and runs validation.
// It never writes a response; the handler maps the returned *apperr.Error
// into the envelope so the error surface stays in one place.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		return apperr.Validation("invalid request body").WithDetails(map[string]interface{}{
			"reason": err.Error(),
		})
	}

	if err := v.Struct(out); err != nil {
		return apperr.Validation("validation failed").WithDetails(map[string]interface{}{
			"fields": validationErrorsToMap(err),
		})
	}
	return nil
}

// BindQuery binds query parameters and validates range constraints.
func BindQuery(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindQuery(out); err != nil {
		return apperr.Validation("invalid query parameters").WithDetails(map[string]interface{}{
			"reason": err.Error(),
		})
	}
	if err := v.Struct(out); err != nil {
		return apperr.Validation("validation failed").WithDetails(map[string]interface{}{
			"fields": validationErrorsToMap(err),
		})
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.StructNamespace()] = fmt.Sprintf("failed %q constraint", fe.Tag())
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}
