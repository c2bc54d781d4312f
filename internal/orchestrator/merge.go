package orchestrator

import (
	"encoding/json"

	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/provider"
)

// Merge combines primary and secondary facts. Scalars prefer the primary
// value when it is non-empty. Lists are a case-insensitive union in primary
// order with secondary-only items appended, capped at provider.MaxListItems
// after de-duplication. Merge(f, nil) normalizes a single provider's facts.
// Either side may be nil; Merge returns nil only when both are.
func Merge(primary, secondary *model.EnrichmentFacts) *model.EnrichmentFacts {
	if primary == nil && secondary == nil {
		return nil
	}
	if primary == nil {
		primary = &model.EnrichmentFacts{}
	}
	if secondary == nil {
		secondary = &model.EnrichmentFacts{}
	}

	out := &model.EnrichmentFacts{}
	for _, name := range model.FactFields {
		if dst := out.Scalar(name); dst != nil {
			if v, ok := primary.Text(name); ok {
				*dst = model.String(v)
			} else if v, ok := secondary.Text(name); ok {
				*dst = model.String(v)
			}
			continue
		}
		if dst := out.List(name); dst != nil {
			*dst = provider.MergeLists(*primary.List(name), *secondary.List(name))
		}
	}

	if len(primary.Extra)+len(secondary.Extra) > 0 {
		out.Extra = make(map[string]json.RawMessage, len(primary.Extra)+len(secondary.Extra))
		for k, v := range secondary.Extra {
			out.Extra[k] = v
		}
		for k, v := range primary.Extra {
			out.Extra[k] = v
		}
	}
	out.Sources = provider.MergeLists(primary.Sources, secondary.Sources)
	return out
}
