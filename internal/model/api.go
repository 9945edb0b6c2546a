package model

import (
	"fmt"
	"time"
)

// MaxTurnTextLen bounds the utterance length accepted over HTTP and MCP.
// Voice transcriptions are short; anything larger is not a voice command.
const MaxTurnTextLen = 2048

// ValidateTurnText checks the utterance accepted from a caller.
func ValidateTurnText(text string) error {
	if text == "" {
		return fmt.Errorf("text is required")
	}
	if len(text) > MaxTurnTextLen {
		return fmt.Errorf("text exceeds maximum length of %d bytes", MaxTurnTextLen)
	}
	return nil
}

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeRoutingFailed = "ROUTING_FAILED"
)

// TurnRequest is the request body for POST /v1/turn.
type TurnRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
	Language       string `json:"language,omitempty"`
	Debug          string `json:"debug,omitempty"` // none | low | verbose
}

// TurnResponse is the response body for POST /v1/turn.
type TurnResponse struct {
	TurnID         string       `json:"turn_id"`
	ConversationID string       `json:"conversation_id"`
	Stage          Stage        `json:"stage"`
	Outcome        Outcome      `json:"outcome"`
	Response       string       `json:"response"`
	Executed       *ServiceCall `json:"executed,omitempty"`
	DurationMS     int64        `json:"duration_ms"`
}

// RefreshResponse is the response body for POST /v1/catalog/refresh.
type RefreshResponse struct {
	Entities  int       `json:"entities"`
	BuiltAt   time.Time `json:"built_at"`
	Refreshed bool      `json:"refreshed"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	CatalogEntities int    `json:"catalog_entities"`
	CatalogAge      string `json:"catalog_age,omitempty"`
	History         string `json:"history,omitempty"` // "ok" or "disabled"
	Uptime          int64  `json:"uptime_seconds"`
}
