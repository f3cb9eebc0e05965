package domain

import (
	"errors"
	"fmt"
)

// ErrorKind tags every error the payment core surfaces.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindGateway
	KindConflict
	KindNotFound
	KindValidation
	KindWebhookAuth
	KindMalformedPayload
)

func (k ErrorKind) String() string {
	switch k {
	case KindGateway:
		return "gateway"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindWebhookAuth:
		return "webhook_auth"
	case KindMalformedPayload:
		return "malformed_payload"
	default:
		return "internal"
	}
}

// Domain errors - one sentinel per kind so errors.Is keeps working through wrapping.
var (
	// ErrGateway is a non-2xx, malformed or timed out gateway response.
	ErrGateway = errors.New("payment gateway error")

	// ErrConflict is returned when a user already holds an active subscription.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned for lookups that miss.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed caller input.
	ErrValidation = errors.New("invalid request")

	// ErrWebhookAuth is returned when a webhook token or signature is wrong or missing.
	ErrWebhookAuth = errors.New("webhook authentication failed")

	// ErrMalformedPayload is returned when a webhook body cannot be parsed.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

var kindSentinels = map[ErrorKind]error{
	KindGateway:          ErrGateway,
	KindConflict:         ErrConflict,
	KindNotFound:         ErrNotFound,
	KindValidation:       ErrValidation,
	KindWebhookAuth:      ErrWebhookAuth,
	KindMalformedPayload: ErrMalformedPayload,
}

// ServiceError wraps errors with a kind and additional context.
// StatusCode and RawBody are only set for gateway errors.
type ServiceError struct {
	Kind       ErrorKind
	Err        error
	Message    string
	Code       string
	StatusCode int
	RawBody    string
}

func (e *ServiceError) Error() string {
	if e.Message != "" && e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError of the given kind.
func NewServiceError(kind ErrorKind, err error, message, code string) *ServiceError {
	if err == nil {
		err = kindSentinels[kind]
	}
	return &ServiceError{Kind: kind, Err: err, Message: message, Code: code}
}

// NewGatewayError builds the error for a non-2xx gateway response.
func NewGatewayError(statusCode int, rawBody string) *ServiceError {
	return &ServiceError{
		Kind:       KindGateway,
		Err:        ErrGateway,
		Message:    fmt.Sprintf("gateway returned status %d", statusCode),
		Code:       "GATEWAY_ERROR",
		StatusCode: statusCode,
		RawBody:    rawBody,
	}
}

// WrapGatewayError tags a transport, timeout or decoding failure as a gateway error.
func WrapGatewayError(err error, message string) *ServiceError {
	return &ServiceError{
		Kind:    KindGateway,
		Err:     fmt.Errorf("%w: %v", ErrGateway, err),
		Message: message,
		Code:    "GATEWAY_ERROR",
	}
}

func NewConflictError(message string) *ServiceError {
	return NewServiceError(KindConflict, ErrConflict, message, "CONFLICT")
}

func NewNotFoundError(message string) *ServiceError {
	return NewServiceError(KindNotFound, ErrNotFound, message, "NOT_FOUND")
}

func NewValidationError(message string) *ServiceError {
	return NewServiceError(KindValidation, ErrValidation, message, "VALIDATION_ERROR")
}

func NewWebhookAuthError(message string) *ServiceError {
	return NewServiceError(KindWebhookAuth, ErrWebhookAuth, message, "WEBHOOK_UNAUTHORIZED")
}

func NewMalformedPayloadError(message string) *ServiceError {
	return NewServiceError(KindMalformedPayload, ErrMalformedPayload, message, "MALFORMED_PAYLOAD")
}

// KindOf returns the kind of err, or KindInternal for untagged errors.
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}
