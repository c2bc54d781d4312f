package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/leadscore/internal/cost"
	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/pkg/gemini"
)

// NameGemini identifies the Gemini provider.
const NameGemini = "gemini"

// Gemini enriches contacts with a Gemini model using schema-constrained output.
type Gemini struct {
	client gemini.Client
	model  string
	costs  *cost.Calculator
}

// NewGemini creates a Gemini provider.
func NewGemini(client gemini.Client, modelName string, costs *cost.Calculator) *Gemini {
	if modelName == "" {
		modelName = gemini.DefaultModel
	}
	return &Gemini{client: client, model: modelName, costs: costs}
}

// Name implements Provider.
func (g *Gemini) Name() string { return NameGemini }

// Enrich implements Provider.
func (g *Gemini) Enrich(ctx context.Context, c *model.Contact) (*Result, error) {
	resp, err := g.client.GenerateJSON(ctx, gemini.Request{
		Model:       g.model,
		System:      SystemPrompt,
		Prompt:      BuildPrompt(c),
		Schema:      factsGenaiSchema(),
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return nil, classify(err, gemini.StatusCode(err))
	}

	res := &Result{
		Provider: NameGemini,
		CostUSD:  g.costs.Gemini(g.model, resp.InputTokens, resp.OutputTokens),
		Raw:      resp.Text,
	}

	facts, err := ParseFacts(res.Raw)
	if err != nil {
		return res, eris.Wrap(err, "gemini")
	}
	facts.Sources = []string{NameGemini}
	res.Facts = facts
	return res, nil
}

func factsGenaiSchema() *genai.Schema {
	props := make(map[string]*genai.Schema, len(model.FactFields))
	for _, f := range model.FactFields {
		switch f {
		case model.FieldTalkingPoints, model.FieldRecentNews:
			props[f] = &genai.Schema{
				Type:     genai.TypeArray,
				Items:    &genai.Schema{Type: genai.TypeString},
				MaxItems: genai.Ptr[int64](MaxListItems),
			}
		default:
			props[f] = &genai.Schema{Type: genai.TypeString, Nullable: genai.Ptr(true)}
		}
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: props}
}
