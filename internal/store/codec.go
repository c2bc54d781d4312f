package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscore/internal/model"
)

func marshalNullable(v any, isNil bool) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal json")
	}
	return data, nil
}

func encodeFacts(f *model.EnrichmentFacts) ([]byte, error) {
	return marshalNullable(f, f == nil)
}

func encodeScores(s []model.ScoreResult) ([]byte, error) {
	return marshalNullable(s, len(s) == 0)
}

func decodeFacts(data []byte) (*model.EnrichmentFacts, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var f model.EnrichmentFacts
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal facts")
	}
	return &f, nil
}

func decodeScores(data []byte) ([]model.ScoreResult, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var s []model.ScoreResult
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal scores")
	}
	return s, nil
}

func decodeICP(icp *model.ICP, criteria, weights []byte) error {
	if err := json.Unmarshal(criteria, &icp.Criteria); err != nil {
		return eris.Wrap(err, "store: unmarshal icp criteria")
	}
	if err := json.Unmarshal(weights, &icp.Weights); err != nil {
		return eris.Wrap(err, "store: unmarshal icp weights")
	}
	return nil
}
