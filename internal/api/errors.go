package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/property-scanner/internal/errors"
	"github.com/property-scanner/internal/logging"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error *apperrors.ServiceError `json:"error"`
}

// respondError writes err in the API error shape with its category's status.
// Internal and store errors are logged and their detail is hidden from the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)
	body := catErr.ToServiceError()

	if catErr.StatusCode >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).WithField("code", catErr.Code).Error("Request failed")
		if catErr.Category == apperrors.CategorySystem || catErr.Category == apperrors.CategoryStore {
			body = &apperrors.ServiceError{Code: catErr.Code, Message: "An internal error occurred"}
		}
	}

	respondJSON(w, catErr.StatusCode, ErrorResponse{Error: body})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data) // nolint:errcheck // response already committed
	}
}

// parseJSONBody decodes the request body, rejecting unknown fields.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return apperrors.NewValidationError("body", err.Error())
	}
	return nil
}

// parseOptionalJSONBody is parseJSONBody that accepts an empty body
func parseOptionalJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.NewValidationError("body", err.Error())
	}
	return nil
}

// newValidator reports struct fields by their json names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError converts the first validator failure into a ValidationError
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		return apperrors.NewValidationError(fe.Field(), "failed "+reason)
	}
	return apperrors.NewValidationError("body", err.Error())
}
