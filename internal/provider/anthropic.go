package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscore/internal/cost"
	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/resilience"
	"github.com/sells-group/leadscore/pkg/anthropic"
)

// NameAnthropic identifies the Anthropic provider.
const NameAnthropic = "anthropic"

// Anthropic enriches contacts with a Claude model.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	costs     *cost.Calculator
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(client anthropic.Client, modelName string, maxTokens int64, costs *cost.Calculator) *Anthropic {
	if modelName == "" {
		modelName = anthropic.DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Anthropic{client: client, model: modelName, maxTokens: maxTokens, costs: costs}
}

// Name implements Provider.
func (a *Anthropic) Name() string { return NameAnthropic }

// Enrich implements Provider.
func (a *Anthropic) Enrich(ctx context.Context, c *model.Contact) (*Result, error) {
	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System: []anthropic.SystemBlock{{
			Text:         SystemPrompt,
			CacheControl: &anthropic.CacheControl{TTL: "5m"},
		}},
		Messages:    []anthropic.Message{{Role: "user", Content: BuildPrompt(c)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, classify(err, anthropic.StatusCode(err))
	}

	u := resp.Usage
	u.LogCost(a.model, c.ID)
	res := &Result{
		Provider: NameAnthropic,
		CostUSD:  a.costs.Claude(a.model, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens),
		Raw:      resp.Text(),
	}

	facts, err := ParseFacts(res.Raw)
	if err != nil {
		return res, eris.Wrap(err, "anthropic")
	}
	facts.Sources = []string{NameAnthropic}
	res.Facts = facts
	return res, nil
}

// classify marks errors with retryable HTTP statuses as transient. 529 is
// Anthropic's overloaded status.
func classify(err error, status int) error {
	if resilience.IsTransientHTTPStatus(status) || status == 529 {
		return resilience.NewTransientError(err, status)
	}
	return err
}
