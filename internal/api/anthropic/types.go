// Package anthropic is a minimal HTTP client for the Anthropic Messages API.
package anthropic

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

// MessagesRequest represents an Anthropic Messages API request.
type MessagesRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

// Message represents a message in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Metadata represents request metadata.
type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

// MessagesResponse represents an Anthropic Messages API response.
type MessagesResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []ResponseContent `json:"content"`
	Model      string            `json:"model"`
	StopReason string            `json:"stop_reason"`
	Usage      MessagesUsage     `json:"usage"`
}

// Text returns the concatenated text blocks of the response.
func (r *MessagesResponse) Text() string {
	var result string
	for _, part := range r.Content {
		if part.Type == "text" {
			result += part.Text
		}
	}
	return result
}

// ResponseContent represents content in a response.
type ResponseContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// MessagesUsage represents token usage in the response.
type MessagesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ErrorResponse represents an Anthropic API error.
type ErrorResponse struct {
	Type  string    `json:"type"`
	Error *APIError `json:"error"`
}

// APIError contains error details.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ToCanonical converts the Anthropic error to a canonical domain error.
func (e *APIError) ToCanonical(status int) *domain.APIError {
	var out *domain.APIError
	switch e.Type {
	case "invalid_request_error":
		out = domain.ErrInvalidRequest(e.Message)
	case "authentication_error":
		out = domain.ErrAuthentication(e.Message)
	case "permission_error":
		out = domain.NewAPIError(domain.ErrorTypePermission, e.Message)
	case "not_found_error":
		out = domain.NewAPIError(domain.ErrorTypeNotFound, e.Message)
	case "rate_limit_error":
		out = domain.ErrRateLimit(e.Message)
	case "overloaded_error":
		out = domain.ErrOverloaded(e.Message)
	case "timeout_error":
		out = domain.ErrTimeout(e.Message)
	default:
		out = domain.ErrServer(e.Message)
	}
	return out.WithStatusCode(status).WithSourceAPI(domain.APITypeAnthropic)
}

// ParseErrorResponse attempts to parse an error response from JSON.
func ParseErrorResponse(data []byte) (*APIError, error) {
	var errResp ErrorResponse
	if err := json.Unmarshal(data, &errResp); err != nil {
		return nil, err
	}
	if errResp.Error == nil {
		return nil, nil
	}
	return errResp.Error, nil
}

// statusError builds a canonical error from the HTTP status alone.
func statusError(status int, body []byte) *domain.APIError {
	msg := fmt.Sprintf("API error (status %d): %s", status, string(body))
	var out *domain.APIError
	switch {
	case status == http.StatusTooManyRequests:
		out = domain.ErrRateLimit(msg)
	case status == http.StatusUnauthorized:
		out = domain.ErrAuthentication(msg)
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		out = domain.ErrTimeout(msg)
	case status == 529 || status == http.StatusServiceUnavailable:
		out = domain.ErrOverloaded(msg)
	case status >= 500:
		out = domain.ErrServer(msg)
	default:
		out = domain.ErrInvalidRequest(msg)
	}
	return out.WithStatusCode(status).WithSourceAPI(domain.APITypeAnthropic)
}
