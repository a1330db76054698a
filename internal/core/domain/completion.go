package domain

// ChatMessage is a role/content pair sent to the language model as history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the language-model gateway request.
// The gateway is stateless, so history travels with every call.
type CompletionRequest struct {
	// AgentID names the calling agent for tracing; it is not sent upstream.
	AgentID      AgentID       `json:"agent_id,omitempty"`
	SystemPrompt string        `json:"system_prompt"`
	UserMessage  string        `json:"user_message"`
	Model        string        `json:"model,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
	Temperature  *float64      `json:"temperature,omitempty"`
	History      []ChatMessage `json:"history,omitempty"`
}

// CompletionResponse is the language-model gateway response.
type CompletionResponse struct {
	Content     string `json:"content"`
	TokenInput  int    `json:"token_input"`
	TokenOutput int    `json:"token_output"`
	Model       string `json:"model"`
}
