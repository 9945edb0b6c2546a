package agents

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hanashi-ai/hanashi/internal/model"
)

// geminiSystemPrompt keeps answers short enough to speak aloud.
const geminiSystemPrompt = `You are a voice assistant for a smart home. ` +
	`Answer the user's request in one or two short spoken sentences. ` +
	`Do not use markdown, lists, or code blocks.`

// GeminiAgent answers turns with a Gemini model. Intended as the terminal
// fallback: it can answer free-form questions the deterministic layer and a
// device-focused primary agent both decline.
type GeminiAgent struct {
	client *genai.Client
	model  string
}

// NewGeminiAgent creates a Gemini-backed agent.
func NewGeminiAgent(ctx context.Context, apiKey, modelName string) (*GeminiAgent, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini agent: api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini agent: create client: %w", err)
	}
	return &GeminiAgent{client: client, model: modelName}, nil
}

func (a *GeminiAgent) Name() string { return "gemini" }

func (a *GeminiAgent) Process(ctx context.Context, turn model.Turn) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()

	prompt := geminiSystemPrompt + "\n\nUser: " + turn.Text
	content := genai.NewContentFromText(prompt, genai.RoleUser)

	resp, err := a.client.Models.GenerateContent(callCtx, a.model, []*genai.Content{content}, nil)
	if err != nil {
		return "", fmt.Errorf("agent gemini: %w: %v", model.ErrAgentUnavailable, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("agent gemini: %w: no candidates", model.ErrAgentUnavailable)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	answer := strings.TrimSpace(sb.String())
	if err := CheckUsable(answer); err != nil {
		return "", fmt.Errorf("agent gemini: %w", err)
	}
	return answer, nil
}
