package provider

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscore/internal/cost"
	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/pkg/perplexity"
)

// NamePerplexity identifies the Perplexity provider.
const NamePerplexity = "perplexity"

// Perplexity enriches contacts with a search-grounded Perplexity model.
type Perplexity struct {
	client perplexity.Client
	model  string
	costs  *cost.Calculator
}

// NewPerplexity creates a Perplexity provider. An empty model uses the
// client's default.
func NewPerplexity(client perplexity.Client, modelName string, costs *cost.Calculator) *Perplexity {
	return &Perplexity{client: client, model: modelName, costs: costs}
}

// Name implements Provider.
func (p *Perplexity) Name() string { return NamePerplexity }

// Enrich implements Provider.
func (p *Perplexity) Enrich(ctx context.Context, c *model.Contact) (*Result, error) {
	temp, maxTokens := 0.0, 1024
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: p.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: BuildPrompt(c)},
		},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		ResponseFormat: &perplexity.ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &perplexity.JSONSchema{Schema: FactsSchema()},
		},
	})
	if err != nil {
		var se *perplexity.StatusError
		if errors.As(err, &se) {
			return nil, classify(err, se.StatusCode)
		}
		return nil, err
	}

	res := &Result{
		Provider: NamePerplexity,
		CostUSD:  p.costs.Perplexity(int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens)),
		Raw:      resp.Text(),
	}

	facts, err := ParseFacts(res.Raw)
	if err != nil {
		return res, eris.Wrap(err, "perplexity")
	}
	if len(resp.Citations) > 0 {
		if data, err := json.Marshal(resp.Citations); err == nil {
			if facts.Extra == nil {
				facts.Extra = make(map[string]json.RawMessage)
			}
			facts.Extra["citations"] = data
		}
	}
	facts.Sources = []string{NamePerplexity}
	res.Facts = facts
	return res, nil
}
