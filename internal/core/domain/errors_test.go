package domain

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "error with type and message",
			err:      &APIError{Type: ErrorTypeInvalidRequest, Message: "bad request"},
			expected: "invalid_request: bad request",
		},
		{
			name:     "error with type, code, and message",
			err:      &APIError{Type: ErrorTypeRateLimit, Code: ErrorCodeRateLimitExceeded, Message: "rate limited"},
			expected: "rate_limit (rate_limit_exceeded): rate limited",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected int
	}{
		{"invalid request", &APIError{Type: ErrorTypeInvalidRequest}, http.StatusBadRequest},
		{"authentication error", &APIError{Type: ErrorTypeAuthentication}, http.StatusUnauthorized},
		{"permission error", &APIError{Type: ErrorTypePermission}, http.StatusForbidden},
		{"not found error", &APIError{Type: ErrorTypeNotFound}, http.StatusNotFound},
		{"rate limit error", &APIError{Type: ErrorTypeRateLimit}, http.StatusTooManyRequests},
		{"overloaded error", &APIError{Type: ErrorTypeOverloaded}, http.StatusServiceUnavailable},
		{"timeout error", &APIError{Type: ErrorTypeTimeout}, http.StatusGatewayTimeout},
		{"server error", &APIError{Type: ErrorTypeServer}, http.StatusInternalServerError},
		{"context length error", &APIError{Type: ErrorTypeContextLength}, http.StatusBadRequest},
		{"unknown error type", &APIError{Type: ErrorType("unknown")}, http.StatusInternalServerError},
		{"explicit status code", &APIError{Type: ErrorTypeInvalidRequest, StatusCode: http.StatusConflict}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Chaining(t *testing.T) {
	err := NewAPIError(ErrorTypeInvalidRequest, "test").
		WithCode(ErrorCodeContextLengthExceeded).
		WithStatusCode(http.StatusBadRequest).
		WithSourceAPI(APITypeAnthropic)

	if err.Type != ErrorTypeInvalidRequest {
		t.Errorf("Type = %v, want %v", err.Type, ErrorTypeInvalidRequest)
	}
	if err.Code != ErrorCodeContextLengthExceeded {
		t.Errorf("Code = %v, want %v", err.Code, ErrorCodeContextLengthExceeded)
	}
	if err.SourceAPI != APITypeAnthropic {
		t.Errorf("SourceAPI = %v, want %v", err.SourceAPI, APITypeAnthropic)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", ErrRateLimit("slow down"), true},
		{"overloaded", ErrOverloaded("busy"), true},
		{"timeout", ErrTimeout("deadline"), true},
		{"wrapped server", fmt.Errorf("call: %w", ErrServer("boom")), true},
		{"auth", ErrAuthentication("bad key"), false},
		{"invalid", ErrInvalidRequest("bad"), false},
		{"plain error", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAgentNotFoundError(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", &AgentNotFoundError{ID: "team-42"})
	if !IsAgentNotFound(err) {
		t.Fatal("expected IsAgentNotFound to match wrapped error")
	}
	if got := (&AgentNotFoundError{ID: "team-42"}).Error(); got != `agent "team-42" is not registered` {
		t.Errorf("Error() = %q", got)
	}
	if IsAgentNotFound(ErrNotFound) {
		t.Error("ErrNotFound should not be an AgentNotFoundError")
	}
}
