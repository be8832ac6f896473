package validation

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate decodes the JSON body into out and validates it. On failure
// it has already written a 400 and the handler only needs to return.
//
// Error codes: empty_request_body, invalid_request_body, validation_failed.
// validation_failed carries a "fields" map of JSON path to failed tag.
func BindAndValidate(c *gin.Context, out any, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		if errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty_request_body"})
			return err
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "detail": err.Error()})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": FieldErrors(err)})
		return err
	}
	return nil
}

// FieldErrors flattens validator errors to "product.unit_price" -> "gte".
// The root struct name is dropped from each path.
func FieldErrors(err error) map[string]string {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return map[string]string{"_": err.Error()}
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		_, path, found := strings.Cut(fe.Namespace(), ".")
		if !found {
			path = fe.Field()
		}
		out[path] = fe.Tag()
	}
	return out
}
