package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hanashi-ai/hanashi/internal/model"
)

// perCallTimeout caps a single agent call. Separate from the router's turn
// context so one slow agent doesn't consume the whole turn budget.
const perCallTimeout = 30 * time.Second

// HTTPAgent forwards a turn to a conversation endpoint speaking the Home
// Assistant conversation API shape: POST {"text", "conversation_id",
// "language"} returning a speech payload.
type HTTPAgent struct {
	name       string
	url        string
	token      string
	httpClient *http.Client
}

// NewHTTPAgent creates an agent that posts turns to url. token, when set, is
// sent as a bearer token.
func NewHTTPAgent(name, url, token string) *HTTPAgent {
	return &HTTPAgent{
		name:  name,
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: perCallTimeout + 5*time.Second,
		},
	}
}

func (a *HTTPAgent) Name() string { return a.name }

type conversationRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
	Language       string `json:"language,omitempty"`
}

type conversationResponse struct {
	Response struct {
		ResponseType string `json:"response_type"`
		Speech       struct {
			Plain struct {
				Speech string `json:"speech"`
			} `json:"plain"`
		} `json:"speech"`
	} `json:"response"`
}

func (a *HTTPAgent) Process(ctx context.Context, turn model.Turn) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()

	body, err := json.Marshal(conversationRequest{
		Text:           turn.Text,
		ConversationID: turn.ConversationID.String(),
		Language:       turn.Language,
	})
	if err != nil {
		return "", fmt.Errorf("agent %s: marshal: %w", a.name, err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("agent %s: create request: %w", a.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent %s: %w: %v", a.name, model.ErrAgentUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("agent %s: %w: status %d: %s", a.name, model.ErrAgentUnavailable, resp.StatusCode, string(respBody))
	}

	var result conversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("agent %s: decode response: %w", a.name, err)
	}

	if result.Response.ResponseType == "error" {
		return "", fmt.Errorf("%w: agent %s returned error response", model.ErrAgentUnavailable, a.name)
	}

	speech := result.Response.Speech.Plain.Speech
	if err := CheckUsable(speech); err != nil {
		return "", fmt.Errorf("agent %s: %w", a.name, err)
	}
	return speech, nil
}
