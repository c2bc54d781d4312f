package enrichment

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscore/internal/apperr"
	"github.com/sells-group/leadscore/internal/icp"
	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/store"
)

// MatchResult lists the contacts that reached the minimum ICP score.
type MatchResult struct {
	TotalMatches int              `json:"total_matches"`
	Contacts     []model.ICPMatch `json:"contacts"`
}

// MatchICP scores contacts against an ICP and keeps those at or above
// minScore, best first. With no ids every contact of the tenant is
// considered. Ids that do not resolve to a contact are ignored.
func (s *Service) MatchICP(ctx context.Context, tenantID, icpID string, contactIDs []string, minScore int) (MatchResult, error) {
	if minScore < 0 || minScore > 100 {
		return MatchResult{}, apperr.Validation("min_score must be between 0 and 100")
	}

	p, err := s.store.GetICP(ctx, tenantID, icpID)
	if err != nil {
		return MatchResult{}, err
	}
	cfg, err := s.configs.Get(ctx, tenantID)
	if err != nil {
		return MatchResult{}, eris.Wrap(err, "enrichment: load scoring config")
	}

	filter := store.ContactFilter{TenantID: tenantID, IDs: dedupe(contactIDs), Limit: s.pageSize}
	res := MatchResult{Contacts: []model.ICPMatch{}}
	for {
		page, err := s.store.ListContacts(ctx, filter)
		if err != nil {
			return MatchResult{}, eris.Wrap(err, "enrichment: list contacts for icp match")
		}
		for i := range page {
			m := icp.MatchContact(&page[i], *p, cfg.Thresholds)
			if m.Score >= minScore {
				res.Contacts = append(res.Contacts, m)
			}
		}
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += len(page)
	}
	sort.SliceStable(res.Contacts, func(i, j int) bool {
		if res.Contacts[i].Score != res.Contacts[j].Score {
			return res.Contacts[i].Score > res.Contacts[j].Score
		}
		return res.Contacts[i].ContactID < res.Contacts[j].ContactID
	})
	res.TotalMatches = len(res.Contacts)
	return res, nil
}
