// Package errors provides standardized error handling for the wish data service.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code for the wish data service.
type ErrorCode string

const (
	// Validation errors
	WISH_VALIDATION    ErrorCode = "WISH_VALIDATION"    // General validation error
	WISH_SCHEMA_REJECT ErrorCode = "WISH_SCHEMA_REJECT" // Envelope schema validation failed
	WISH_BAD_REQUEST   ErrorCode = "WISH_BAD_REQUEST"   // Bad request
	WISH_ID_INVALID    ErrorCode = "WISH_ID_INVALID"    // Malformed wish identifier

	// Wallet/chain errors
	WISH_NOT_CONNECTED  ErrorCode = "WISH_NOT_CONNECTED"  // No active wallet session
	WISH_WALLET_DENIED  ErrorCode = "WISH_WALLET_DENIED"  // Wallet refused the request
	WISH_WRONG_NETWORK  ErrorCode = "WISH_WRONG_NETWORK"  // Session is on an unexpected chain
	WISH_CHAIN_UNAVAIL  ErrorCode = "WISH_CHAIN_UNAVAIL"  // Chain RPC unreachable
	WISH_TX_REVERTED    ErrorCode = "WISH_TX_REVERTED"    // Transaction reverted on-chain
	WISH_DECODE_FAILED  ErrorCode = "WISH_DECODE_FAILED"  // Record payload could not be decoded

	// Resource errors
	WISH_NOT_FOUND  ErrorCode = "WISH_NOT_FOUND"  // Resource not found
	WISH_CONFLICT   ErrorCode = "WISH_CONFLICT"   // Resource conflict
	WISH_MEDIA_SIZE ErrorCode = "WISH_MEDIA_SIZE" // Media size limit exceeded
	WISH_MEDIA_TYPE ErrorCode = "WISH_MEDIA_TYPE" // Media type not allowed
	WISH_MEDIA_NAME ErrorCode = "WISH_MEDIA_NAME" // Media file name rejected

	// Rate limiting
	WISH_RATE_LIMIT ErrorCode = "WISH_RATE_LIMIT" // Rate limit exceeded

	// Server errors
	WISH_INTERNAL        ErrorCode = "WISH_INTERNAL"        // Internal server error
	WISH_UNAVAILABLE     ErrorCode = "WISH_UNAVAILABLE"     // Service unavailable
	WISH_NOT_IMPLEMENTED ErrorCode = "WISH_NOT_IMPLEMENTED" // Not implemented
)

// Error represents a standardized error response.
type Error struct {
	Code          ErrorCode   `json:"code"`
	Message       string      `json:"message"`
	CorrelationID string      `json:"correlationId"`
	Details       interface{} `json:"details,omitempty"`
	HTTPStatus    int         `json:"-"`
}

// New creates a new Error with the specified code and message.
func New(code ErrorCode, message string, correlationID string) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// NewWithDetails creates a new Error with the specified code, message, and details.
func NewWithDetails(code ErrorCode, message string, correlationID string, details interface{}) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		Details:       details,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// httpStatusCodeForCode maps error codes to HTTP status codes.
func httpStatusCodeForCode(code ErrorCode) int {
	switch code {
	case WISH_VALIDATION, WISH_SCHEMA_REJECT, WISH_BAD_REQUEST, WISH_ID_INVALID:
		return http.StatusBadRequest
	case WISH_NOT_CONNECTED, WISH_WALLET_DENIED:
		return http.StatusUnauthorized
	case WISH_WRONG_NETWORK:
		return http.StatusConflict
	case WISH_NOT_FOUND:
		return http.StatusNotFound
	case WISH_CONFLICT:
		return http.StatusConflict
	case WISH_MEDIA_SIZE, WISH_MEDIA_TYPE, WISH_MEDIA_NAME:
		return http.StatusBadRequest
	case WISH_DECODE_FAILED:
		return http.StatusUnprocessableEntity
	case WISH_TX_REVERTED:
		return http.StatusBadGateway
	case WISH_RATE_LIMIT:
		return http.StatusTooManyRequests
	case WISH_CHAIN_UNAVAIL, WISH_UNAVAILABLE:
		return http.StatusServiceUnavailable
	case WISH_NOT_IMPLEMENTED:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
