// Package openai is a minimal HTTP client for the OpenAI Chat Completions API.
package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

// ChatCompletionRequest represents an OpenAI chat completion request.
type ChatCompletionRequest struct {
	Model          string                  `json:"model"`
	Messages       []ChatCompletionMessage `json:"messages"`
	MaxTokens      int                     `json:"max_tokens,omitempty"`
	Temperature    *float64                `json:"temperature,omitempty"`
	User           string                  `json:"user,omitempty"`
	ResponseFormat *ResponseFormat         `json:"response_format,omitempty"`
}

// ChatCompletionMessage represents a message in the chat completion request/response.
type ChatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat specifies the format of the response.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletionResponse represents an OpenAI chat completion response.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice represents a completion choice.
type Choice struct {
	Index        int                   `json:"index"`
	Message      ChatCompletionMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

// Usage represents token usage information. Some compatible backends omit it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrorResponse represents an OpenAI API error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// APIError contains error details.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// ToCanonical converts the OpenAI API error to a canonical domain error.
func (e *APIError) ToCanonical(status int) *domain.APIError {
	errType, code := mapOpenAIErrorType(e.Type, e.Code, e.Message)
	return &domain.APIError{
		Type:       errType,
		Code:       code,
		Message:    e.Message,
		Param:      e.Param,
		StatusCode: status,
		SourceAPI:  domain.APITypeOpenAI,
	}
}

// mapOpenAIErrorType maps OpenAI error types/codes to domain error types.
func mapOpenAIErrorType(errType, errCode, message string) (domain.ErrorType, domain.ErrorCode) {
	switch errCode {
	case "context_length_exceeded":
		return domain.ErrorTypeContextLength, domain.ErrorCodeContextLengthExceeded
	case "rate_limit_exceeded":
		return domain.ErrorTypeRateLimit, domain.ErrorCodeRateLimitExceeded
	case "invalid_api_key":
		return domain.ErrorTypeAuthentication, domain.ErrorCodeInvalidAPIKey
	case "model_not_found":
		return domain.ErrorTypeNotFound, domain.ErrorCodeModelNotFound
	}

	msgLower := strings.ToLower(message)
	if strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "context window") {
		return domain.ErrorTypeContextLength, domain.ErrorCodeContextLengthExceeded
	}

	switch errType {
	case "invalid_request_error":
		return domain.ErrorTypeInvalidRequest, ""
	case "authentication_error":
		return domain.ErrorTypeAuthentication, domain.ErrorCodeInvalidAPIKey
	case "permission_denied":
		return domain.ErrorTypePermission, ""
	case "not_found":
		return domain.ErrorTypeNotFound, domain.ErrorCodeModelNotFound
	case "rate_limit_error", "rate_limit_exceeded":
		return domain.ErrorTypeRateLimit, domain.ErrorCodeRateLimitExceeded
	case "service_unavailable":
		return domain.ErrorTypeOverloaded, ""
	default:
		return domain.ErrorTypeServer, ""
	}
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
	case status == http.StatusServiceUnavailable:
		out = domain.ErrOverloaded(msg)
	case status >= 500:
		out = domain.ErrServer(msg)
	default:
		out = domain.ErrInvalidRequest(msg)
	}
	return out.WithStatusCode(status).WithSourceAPI(domain.APITypeOpenAI)
}
