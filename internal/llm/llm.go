// Package llm is an external grader: it pops queued submissions, grades them
// with an OpenAI-compatible chat model and reports the score back through the
// submission's callback.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"math"

	"github.com/pavelanni/capagrader/internal/llm/prompts"
	"github.com/pavelanni/capagrader/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// GradeResult is the model's assessment of one submission.
type GradeResult struct {
	Correct  bool    `json:"correct"`
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	prompts *prompts.Set
	variant prompts.PromptVariant
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string, set *prompts.Set, variant prompts.PromptVariant) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		prompts: set,
		variant: variant,
	}
}

// Grade asks the model to score d and converts the reply into a score
// message.
func (c *Client) Grade(ctx context.Context, d model.ExternalGraderDetail) (model.ScoreMessage, error) {
	prompt, err := c.prompts.BuildGradePrompt(c.variant, d)
	if err != nil {
		return model.ScoreMessage{}, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return model.ScoreMessage{}, fmt.Errorf("LLM grading API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.ScoreMessage{}, fmt.Errorf("LLM returned no choices for grading")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "submission", d.UUID, "raw", raw)

	var result GradeResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return model.ScoreMessage{}, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}
	return toScoreMessage(result, d.PointsPossible), nil
}

// toScoreMessage clamps the score to [0, maxPoints] and escapes the feedback
// for display in the course page.
func toScoreMessage(r GradeResult, maxPoints float64) model.ScoreMessage {
	score := r.Score
	if math.IsNaN(score) || score < 0 {
		score = 0
	}
	if maxPoints > 0 && score > maxPoints {
		score = maxPoints
	}
	msg := ""
	if r.Feedback != "" {
		msg = "<p>" + html.EscapeString(r.Feedback) + "</p>"
	}
	return model.ScoreMessage{Correct: r.Correct, Score: score, Msg: msg}
}
