package service

import (
	"errors"
	"net/http"
)

// GateKind classifies why the access gate refused a request.
type GateKind string

const (
	GateInvalidKey     GateKind = "INVALID_KEY"
	GateKeyNotActive   GateKind = "KEY_NOT_ACTIVE"
	GateAccountBlocked GateKind = "ACCOUNT_BLOCKED"
	GateQuotaExceeded  GateKind = "QUOTA_EXCEEDED"
)

// GateError is returned by AccessGate.AuthorizeAndConsume. Remaining and
// Limit describe the caller's quota after the attempt.
type GateError struct {
	Kind      GateKind
	Status    int
	Message   string
	Remaining int
	Limit     int
}

func (e *GateError) Error() string {
	return e.Message
}

func newGateError(kind GateKind, status int, message string) *GateError {
	return &GateError{Kind: kind, Status: status, Message: message}
}

// AppError is a client-facing failure from the billing and account services.
// Two AppErrors match under errors.Is when their codes match.
type AppError struct {
	Code    string
	Status  int
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{Code: e.Code, Status: e.Status, Message: message}
}

var (
	ErrInvalidInvoiceInput  = &AppError{Code: "INVALID_INVOICE_INPUT", Status: http.StatusBadRequest, Message: "Invalid invoice input"}
	ErrInvoiceNotFound      = &AppError{Code: "INVOICE_NOT_FOUND", Status: http.StatusNotFound, Message: "Invoice not found"}
	ErrInvalidTransition    = &AppError{Code: "INVALID_TRANSITION", Status: http.StatusConflict, Message: "Invoice status transition not allowed"}
	ErrConcurrentUpdate     = &AppError{Code: "CONCURRENT_UPDATE", Status: http.StatusConflict, Message: "Record was modified concurrently, reload and retry"}
	ErrSubscriptionConflict = &AppError{Code: "SUBSCRIPTION_CONFLICT", Status: http.StatusConflict, Message: "Subscription state conflict"}
	ErrSubscriptionNotFound = &AppError{Code: "SUBSCRIPTION_NOT_FOUND", Status: http.StatusNotFound, Message: "Subscription not found"}
	ErrPlanAlreadyHeld      = &AppError{Code: "PLAN_ALREADY_HELD", Status: http.StatusConflict, Message: "You already hold this plan or a higher one"}
	ErrUserNotFound         = &AppError{Code: "USER_NOT_FOUND", Status: http.StatusNotFound, Message: "User not found"}
	ErrKeyNotFound          = &AppError{Code: "KEY_NOT_FOUND", Status: http.StatusNotFound, Message: "API key not found"}
	ErrInvalidInput         = &AppError{Code: "INVALID_INPUT", Status: http.StatusBadRequest, Message: "Invalid input"}
	ErrJustificationMissing = &AppError{Code: "JUSTIFICATION_REQUIRED", Status: http.StatusBadRequest, Message: "A justification of at least 8 characters is required"}
	ErrInvalidCredentials   = &AppError{Code: "INVALID_CREDENTIALS", Status: http.StatusUnauthorized, Message: "Invalid credentials"}
	ErrEmailTaken           = &AppError{Code: "EMAIL_TAKEN", Status: http.StatusConflict, Message: "User with this email already exists"}
	ErrAccountBlocked       = &AppError{Code: "ACCOUNT_BLOCKED", Status: http.StatusForbidden, Message: "Account is blocked"}
	ErrForbidden            = &AppError{Code: "FORBIDDEN", Status: http.StatusForbidden, Message: "Forbidden"}
	ErrProofStoreDisabled   = &AppError{Code: "PROOF_STORE_DISABLED", Status: http.StatusServiceUnavailable, Message: "Payment proof storage is not configured"}
)

// HTTPStatus maps any error to the status and message of the error envelope.
// Errors outside the taxonomy become a generic 500.
func HTTPStatus(err error) (int, string) {
	var gateErr *GateError
	if errors.As(err, &gateErr) {
		return gateErr.Status, gateErr.Message
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Message
	}

	return http.StatusInternalServerError, "Internal server error"
}
