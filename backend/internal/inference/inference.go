// Package inference is the boundary to the relationship-inference
// collaborator. The inference algorithm itself is a black box behind an
// OpenAI-compatible chat endpoint; this package only shapes the request and
// parses the reply.
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"memograph/backend/internal/graph"
	"memograph/backend/pkg/logger"
)

const systemPrompt = `You are a relationship inference engine for a knowledge graph.
Given a list of entities, propose directed relationships between them.
Respond with a JSON array only. Each element:
{"from_id": "...", "from_type": "...", "to_id": "...", "to_type": "...", "type": "...", "properties": {}}
Valid relationship types: WORKS_ON, ATTENDED, DISCUSSED, USES, LOCATED_IN, MEMBER_OF, KNOWS, MANAGES, RELATED_TO.
Only propose relationships you are confident about.`

// Client calls the inference collaborator over an OpenAI-compatible API
type Client struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewClient creates an inference client
func NewClient(baseURL, apiKey, model string) *Client {
	// Gateways accept a dummy key when auth is handled upstream
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger.Get(),
	}
}

// InferRelationships proposes relationships between the given entities
func (c *Client) InferRelationships(ctx context.Context, entities []graph.Entity) ([]graph.CandidateRelationship, error) {
	if len(entities) < 2 {
		return nil, nil
	}

	payload, err := json.Marshal(entities)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entities: %w", err)
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
		Temperature: 0.2,
	}

	// Retry logic with backoff
	var resp openai.ChatCompletionResponse
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			c.logger.Warn("Retrying inference request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		c.logger.Error("Inference request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", c.model),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("inference failed after %d attempts: %w", maxRetries, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in inference response")
	}

	candidates, err := parseCandidates(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Relationships inferred",
		zap.Int("entities", len(entities)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// parseCandidates decodes the model's JSON array, tolerating code fences
func parseCandidates(content string) ([]graph.CandidateRelationship, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if content == "" {
		return nil, nil
	}

	var candidates []graph.CandidateRelationship
	if err := json.Unmarshal([]byte(content), &candidates); err != nil {
		return nil, fmt.Errorf("failed to parse inference response: %w", err)
	}
	return candidates, nil
}
