package server

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/clinicdesk/internal/audit/domain"
	billingdomain "github.com/smallbiznis/clinicdesk/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/clinicdesk/internal/catalog/domain"
	partydomain "github.com/smallbiznis/clinicdesk/internal/party/domain"
	"github.com/smallbiznis/clinicdesk/pkg/db/option"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
	ErrPaymentInProgress  = errors.New("payment_in_progress")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// fieldValidationErrors turns per-field messages from the bill service
// into the response shape, sorted by field for stable output.
func fieldValidationErrors(fields map[string]string) *ValidationErrors {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &ValidationErrors{Errors: make([]ValidationError, 0, len(keys))}
	for _, k := range keys {
		out.Errors = append(out.Errors, ValidationError{
			Field:   k,
			Code:    "invalid_" + fieldCode(k),
			Message: fields[k],
		})
	}
	return out
}

// fieldCode reduces "items[0].unit_charge" to "unit_charge".
func fieldCode(field string) string {
	if idx := strings.LastIndex(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	if idx := strings.Index(field, "["); idx >= 0 {
		field = field[:idx]
	}
	return field
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var fieldErr *billingdomain.ValidationError
	if errors.As(err, &fieldErr) && fieldErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fieldValidationErrors(fieldErr.Fields).Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests, retry shortly",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog gives the request logger a type and code without
// writing the response.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError {
		return "server_error", code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, option.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return true
	case isBillValidationError(err),
		isCatalogValidationError(err),
		isPartyValidationError(err):
		return true
	default:
		return false
	}
}

func isBillValidationError(err error) bool {
	switch {
	case errors.Is(err, billingdomain.ErrInvalidID),
		errors.Is(err, billingdomain.ErrInvalidPatient),
		errors.Is(err, billingdomain.ErrInvalidDoctor),
		errors.Is(err, billingdomain.ErrInvalidBillDate),
		errors.Is(err, billingdomain.ErrInvalidBillType),
		errors.Is(err, billingdomain.ErrInvalidItems),
		errors.Is(err, billingdomain.ErrInvalidQuantity),
		errors.Is(err, billingdomain.ErrInvalidUnitCharge),
		errors.Is(err, billingdomain.ErrInvalidDiscount),
		errors.Is(err, billingdomain.ErrInvalidAmount),
		errors.Is(err, billingdomain.ErrInvalidPaymentMode),
		errors.Is(err, billingdomain.ErrInvalidProcedure),
		errors.Is(err, billingdomain.ErrInvalidStatus):
		return true
	default:
		return false
	}
}

func isCatalogValidationError(err error) bool {
	switch {
	case errors.Is(err, catalogdomain.ErrInvalidName),
		errors.Is(err, catalogdomain.ErrInvalidCode),
		errors.Is(err, catalogdomain.ErrInvalidUnitCharge):
		return true
	default:
		return false
	}
}

func isPartyValidationError(err error) bool {
	switch {
	case errors.Is(err, partydomain.ErrInvalidName),
		errors.Is(err, partydomain.ErrInvalidMRN),
		errors.Is(err, partydomain.ErrInvalidRegNo),
		errors.Is(err, partydomain.ErrInvalidKind),
		errors.Is(err, partydomain.ErrInactiveDoctor):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, ErrPaymentInProgress),
		errors.Is(err, billingdomain.ErrPartyImmutable),
		errors.Is(err, catalogdomain.ErrDuplicateCode),
		errors.Is(err, partydomain.ErrDuplicate),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, ErrPaymentInProgress):
		return "another payment on this bill is being recorded"
	case errors.Is(err, billingdomain.ErrPartyImmutable):
		return "patient and doctor cannot be changed on a saved bill"
	case errors.Is(err, catalogdomain.ErrDuplicateCode):
		return "a procedure with this code already exists"
	case errors.Is(err, partydomain.ErrDuplicate):
		return "a record with this identifier already exists"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, billingdomain.ErrNotFound),
		errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, partydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, option.ErrInvalidPageToken):
		return "invalid_page_token"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_id":
		return "id"
	case "invalid_payment_status":
		return "payment_status"
	case "inactive_doctor":
		return "doctor_id"
	case "invalid_patient":
		return "patient_id"
	case "invalid_doctor":
		return "doctor_id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_patient":
		return "patient not found"
	case "invalid_doctor", "inactive_doctor":
		return "doctor not found or inactive"
	case "invalid_procedure":
		return "an item references an unknown procedure"
	case "invalid_payment_mode":
		return "payment mode is not accepted"
	case "invalid_page_token":
		return "invalid page token"
	default:
		return "invalid value"
	}
}
