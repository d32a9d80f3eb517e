package proxy

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is an OpenAI-compatible error body. Every error the gateway
// produces itself (as opposed to backend errors, which pass through verbatim)
// uses this shape so OpenAI SDKs keep working against the gateway.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error fields OpenAI clients expect.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Error type strings matching the OpenAI API specification.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeNotFound           = "not_found"
	ErrorTypeServerError        = "server_error"
	ErrorTypeBadGateway         = "bad_gateway"
	ErrorTypeServiceUnavailable = "service_unavailable"
	ErrorTypeGatewayTimeout     = "gateway_timeout"
)

// Machine-readable error codes.
const (
	CodeRouteNotFound      = "route_not_found"
	CodeMethodNotAllowed   = "method_not_allowed"
	CodeInvalidURL         = "invalid_url"
	CodeUnknownKind        = "unknown_kind"
	CodeInstanceNotFound   = "instance_not_found"
	CodeNoHealthyBackend   = "no_healthy_backend"
	CodeUpstreamError      = "upstream_error"
	CodeUpstreamTimeout    = "upstream_timeout"
	CodeInternalError      = "internal_error"
	CodeVerificationFailed = "verification_failed"
)

// NewErrorResponse builds an error body from its parts.
func NewErrorResponse(message, errType, code string) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{Message: message, Type: errType, Code: code}}
}

// HTTPStatusCode maps the error type to an HTTP status code.
func (e *ErrorDetail) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeBadGateway:
		return http.StatusBadGateway
	case ErrorTypeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an OpenAI-compatible error response, deriving the status
// code from the error type.
func WriteError(w http.ResponseWriter, errResp *ErrorResponse) {
	WriteJSON(w, errResp.Error.HTTPStatusCode(), errResp)
}

// WriteErrorStatus writes an OpenAI-compatible error response with an
// explicit status code (for 405 and other codes the type mapping does not
// cover).
func WriteErrorStatus(w http.ResponseWriter, statusCode int, errResp *ErrorResponse) {
	WriteJSON(w, statusCode, errResp)
}
