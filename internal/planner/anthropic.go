package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zjrosen/weave/internal/config"
	"github.com/zjrosen/weave/internal/log"
	"github.com/zjrosen/weave/internal/stories/domain"
)

// defaultModel is used when no planner model is configured.
const defaultModel = "claude-sonnet-4-5"

// plannerTemperature keeps decompositions deterministic.
const plannerTemperature = 0.2

const systemPrompt = `You are a software planning assistant. Decompose the given work item
into fine-grained developer stories (implementation, unit tests,
feature tests, documentation) with prerequisite dependencies between
them. Respond with a single JSON object and nothing else:

{
  "analysis": "<your reasoning>",
  "developerStories": [
    {"title": "...", "description": "...", "instructions": "...", "storyType": 0}
  ],
  "dependencies": [
    {"dependentStoryIndex": 1, "requiredStoryIndex": 0, "description": "..."}
  ]
}

storyType codes: 0=implementation, 1=unit tests, 2=feature tests,
3=documentation. Dependencies must be acyclic. Instructions are handed
verbatim to an autonomous coding agent, so make them self-contained.`

// AnthropicPlanner implements Planner on the Anthropic messages API.
type AnthropicPlanner struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// Ensure AnthropicPlanner implements Planner.
var _ Planner = (*AnthropicPlanner)(nil)

// NewAnthropicPlanner builds a planner from configuration.
// Fails with ErrConfig when no API key is available.
func NewAnthropicPlanner(cfg config.PlannerConfig) (*AnthropicPlanner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: planner API key not set", domain.ErrConfig)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := anthropic.Model(cfg.Model)
	if cfg.Model == "" {
		model = defaultModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &AnthropicPlanner{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Refine sends the work item to the model and parses the decomposition.
func (p *AnthropicPlanner) Refine(ctx context.Context, item *domain.WorkItem) (*Result, error) {
	prompt := buildPrompt(item)
	log.Debug(log.CatPlan, "refining work item", "id", item.ID, "model", p.model)

	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: anthropic.Float(plannerTemperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, classifyCallError(ctx, err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result, err := ParseResponse(text.String())
	if err != nil {
		return nil, err
	}
	log.Debug(log.CatPlan, "refined work item", "id", item.ID,
		"stories", len(result.Stories), "dependencies", len(result.Dependencies))
	return result, nil
}

// classifyCallError maps SDK and context failures onto the error taxonomy.
func classifyCallError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: planner call: %v", domain.ErrTimeout, err)
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: planner call: %v", domain.ErrCancelled, err)
	default:
		return fmt.Errorf("%w: planner call: %v", domain.ErrExternal, err)
	}
}

// buildPrompt renders the work item fields into the user message.
func buildPrompt(item *domain.WorkItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Work item type: %s\n", item.Type)
	fmt.Fprintf(&b, "Title: %s\n", item.Title)
	fmt.Fprintf(&b, "Priority: %d (1 is most urgent)\n\n", item.Priority)
	fmt.Fprintf(&b, "Description:\n%s\n", item.Description)
	if item.AcceptanceCriteria != "" {
		fmt.Fprintf(&b, "\nAcceptance criteria:\n%s\n", item.AcceptanceCriteria)
	}
	return b.String()
}
