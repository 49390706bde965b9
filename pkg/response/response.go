package response

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var EmptyRequestBodyResponse = Response{
	Status:  StatusError,
	Error:   "Empty Request Body",
	Message: "Request body is empty. Please provide necessary data.",
}

var BadRequestResponse = Response{
	Status:  StatusError,
	Error:   "Bad Request",
	Message: "The request body is malformed.",
}

var ResourceNotFoundResponse = Response{
	Status:  StatusError,
	Error:   "Resource Not Found",
	Message: "The requested resource was not found.",
}

var LinkExpiredResponse = Response{
	Status:  StatusError,
	Error:   "Link Expired",
	Message: "This link has expired.",
}

var CodeAlreadyExistsResponse = Response{
	Status:  StatusError,
	Error:   "Code Already Exists",
	Message: "The requested short code is already in use. Please choose another one.",
}

var UnauthorizedResponse = Response{
	Status:  StatusError,
	Error:   "Unauthorized",
	Message: "Request authentication failed.",
}

var ServerErrorResponse = Response{
	Status:  StatusError,
	Error:   "Server Error",
	Message: "An internal server error occurred. Please try again later.",
}

type Response struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
	Details []any  `json:"details,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func SuccessResponse(msg string, data ...any) Response {
	resp := Response{
		Status:  StatusSuccess,
		Message: msg,
	}

	if len(data) > 0 {
		resp.Data = data[0]
	}

	return resp
}

type validationError struct {
	Field string `json:"field,omitempty"`
	Value any    `json:"value"`
	Issue string `json:"issue"`
}

func getValidationErrors(err error) []validationError {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return nil
	}

	var details []validationError
	for _, fieldErr := range validationErrs {
		detail := validationError{
			Field: fieldErr.Field(),
			Value: fieldErr.Value(),
		}

		switch fieldErr.Tag() {
		case "required":
			detail.Issue = "This field is required."
		case "url", "startswith":
			detail.Issue = "Invalid url."
		case "alphanum":
			detail.Issue = "Only letters and digits are allowed."
		case "min":
			detail.Issue = "Value is too short."
		case "max":
			detail.Issue = "Value is too long."
		default:
			detail.Issue = "Invalid value."
		}

		details = append(details, detail)
	}

	return details
}

// ValidationErrorResponse converts validator errors into a response with
// per-field details. Non-validator errors produce a generic message.
func ValidationErrorResponse(err error) Response {
	resp := Response{
		Status:  StatusError,
		Error:   "Validation Failed",
		Message: "The request contains invalid fields.",
	}

	for _, detail := range getValidationErrors(err) {
		resp.Details = append(resp.Details, detail)
	}

	return resp
}
