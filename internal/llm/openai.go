package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/agentra/factcheck/internal/model"
)

// OpenAIProvider implements Provider on the OpenAI Chat Completions API.
// A custom BaseURL makes it work against OpenAI-compatible endpoints
// (e.g. a local Ollama server).
type OpenAIProvider struct {
	client *openai.Client
	config model.LLMConfig
}

// NewOpenAIProvider creates an OpenAI-backed provider.
func NewOpenAIProvider(config model.LLMConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks the API with a lightweight call.
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

// ExtractClaims runs the planner prompt and validates its JSON output.
// A malformed response degrades to a single-claim plan rather than failing.
func (p *OpenAIProvider) ExtractClaims(ctx context.Context, text string) (*ClaimPlan, error) {
	raw, err := p.complete(ctx, "You are a careful fact-checking planner.", buildPlannerPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrReasoningUnavailable, err)
	}

	var plan ClaimPlan
	if err := decodeJSON(raw, &plan); err != nil || len(plan.Subclaims) == 0 {
		return fallbackPlan(text), nil
	}

	for i := range plan.Subclaims {
		if plan.Subclaims[i].ID == "" {
			plan.Subclaims[i].ID = fmt.Sprintf("C%d", i+1)
		}
	}
	if len(plan.Queries) == 0 {
		plan.Queries = []string{truncate(text, 120)}
	}
	return &plan, nil
}

// PlanQueries generates per-claim search queries.
func (p *OpenAIProvider) PlanQueries(ctx context.Context, claimText string, max int) ([]string, error) {
	raw, err := p.complete(ctx, "You generate precise web search queries.", buildQueryPrompt(claimText, max))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrReasoningUnavailable, err)
	}

	var out struct {
		Queries []string `json:"queries"`
	}
	if err := decodeJSON(raw, &out); err != nil || len(out.Queries) == 0 {
		return []string{truncate(claimText, 120)}, nil
	}
	if len(out.Queries) > max {
		out.Queries = out.Queries[:max]
	}
	return out.Queries, nil
}

// GenerateTurn produces one validated debate turn.
func (p *OpenAIProvider) GenerateTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	raw, err := p.complete(ctx, systemPrompt(req.Role), buildTurnPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrReasoningUnavailable, err)
	}

	var result TurnResult
	if err := decodeJSON(raw, &result); err != nil {
		return nil, fmt.Errorf("%s turn: %w", req.Role, err)
	}
	if req.Role == model.RoleJudge && result.Text == "" {
		result.Text = result.Rationale
	}
	if err := result.validate(req.Role); err != nil {
		return nil, err
	}
	return &result, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, system, prompt string) (string, error) {
	mdl := p.config.Model
	if mdl == "" {
		mdl = openai.GPT4oMini
	}

	maxTokens := p.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1200
	}

	timeout := time.Duration(p.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: mdl,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// fallbackPlan wraps the raw text as one subclaim when planning fails softly.
func fallbackPlan(text string) *ClaimPlan {
	return &ClaimPlan{
		Subclaims: []model.Subclaim{{ID: "C1", Text: truncate(text, 300)}},
		Queries:   []string{truncate(text, 120)},
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
