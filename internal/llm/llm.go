package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/civicconnect/civic/internal/models"
)

// Client wraps the Anthropic API for category suggestion.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildPrompt constructs the system and user prompts for categorizing a report.
func buildPrompt(title, description string) (system string, user string) {
	names := make([]string, 0, len(models.Categories()))
	for _, c := range models.Categories() {
		names = append(names, fmt.Sprintf("%q", c))
	}

	system = `You triage citizen reports for a city's public works department. Given a report's title and description, return a JSON object with exactly two fields:

- "category": exactly one of ` + strings.Join(names, ", ") + `
- "reason": one short sentence explaining the choice

Rules:
- Pick the department that would fix the problem, not where it happened (a leaking pipe in a park is "Utilities")
- Use "Other" only when no category fits
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Report title: ")
	sb.WriteString(title)
	sb.WriteString("\n")
	if description != "" {
		sb.WriteString("\nDescription:\n")
		sb.WriteString(description)
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// Suggestion is the model's category pick.
type Suggestion struct {
	Category models.IssueCategory `json:"category"`
	Reason   string               `json:"reason"`
}

// parseResponse decodes the model reply, tolerating markdown fencing.
func parseResponse(text string) (*Suggestion, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var s Suggestion
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	if s.Category == "" {
		return nil, fmt.Errorf("LLM response has no category\nraw response: %s", text)
	}
	return &s, nil
}

// SuggestCategory asks the model which category fits the report.
func (c *Client) SuggestCategory(ctx context.Context, title, description string) (*Suggestion, error) {
	systemPrompt, userPrompt := buildPrompt(title, description)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 256,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return parseResponse(text)
}
