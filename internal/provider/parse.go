package provider

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"

	"github.com/sells-group/leadscore/internal/model"
)

// MaxListItems caps talking_points and recent_news.
const MaxListItems = 5

// ErrNoFacts is returned when a response parses but carries no known facts.
var ErrNoFacts = eris.New("provider: response contained no facts")

// ParseFacts extracts a facts document from model output. Malformed JSON is
// repaired once before giving up. Unknown keys are kept in Extra.
func ParseFacts(text string) (*model.EnrichmentFacts, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("provider: empty response")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(cleaned)
		if rerr != nil {
			return nil, eris.Wrap(err, "provider: parse facts json")
		}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return nil, eris.Wrap(err, "provider: parse repaired facts json")
		}
	}

	facts := &model.EnrichmentFacts{}
	for _, k := range orderedKeys(raw) {
		v := raw[k]
		key := factKey(k)
		if p := facts.Scalar(key); p != nil {
			*p = model.String(scalarValue(v))
			continue
		}
		if l := facts.List(key); l != nil {
			*l = listValue(v)
			continue
		}
		if isNull(v) {
			continue
		}
		if facts.Extra == nil {
			facts.Extra = make(map[string]json.RawMessage)
		}
		facts.Extra[k] = v
	}

	if facts.Empty() {
		return nil, ErrNoFacts
	}
	return facts, nil
}

func factKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// orderedKeys sorts keys so spellings of the same fact are applied in a
// fixed order, with the exact lower-case key last so it wins.
func orderedKeys(raw map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ki, kj := factKey(keys[i]), factKey(keys[j])
		if ki != kj {
			return ki < kj
		}
		if ei, ej := keys[i] == ki, keys[j] == kj; ei != ej {
			return ej
		}
		return keys[i] < keys[j]
	})
	return keys
}

// cleanJSON strips markdown fences and surrounding prose from model output.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	switch {
	case start >= 0 && end > start:
		text = text[start : end+1]
	case start >= 0:
		// Truncated output; leave the tail for jsonrepair.
		text = text[start:]
	}
	return strings.TrimSpace(text)
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || string(bytes.TrimSpace(v)) == "null"
}

func scalarValue(v json.RawMessage) string {
	if isNull(v) {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		return strings.Join(list, ", ")
	}
	trimmed := bytes.TrimSpace(v)
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return ""
	}
	// Numbers and booleans keep their literal form.
	return string(trimmed)
}

func listValue(v json.RawMessage) []string {
	if isNull(v) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		if s := strings.TrimSpace(scalarValue(v)); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, scalarValue(it))
	}
	return MergeLists(out)
}

// MergeLists unions lists in order, comparing items case-insensitively and
// dropping blanks. The result is capped at MaxListItems after de-duplication.
func MergeLists(lists ...[]string) []string {
	fold := cases.Fold()
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, item := range list {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			key := fold.String(item)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, item)
			if len(out) == MaxListItems {
				return out
			}
		}
	}
	return out
}
