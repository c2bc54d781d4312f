package scoring

import "github.com/sells-group/leadscore/internal/model"

var (
	seniorityTiers = []KeywordTier{
		{Keywords: []string{"chief", "ceo", "cto", "cfo", "coo", "cmo", "founder", "owner", "c-level", "c-suite"}, Score: 100},
		{Keywords: []string{"vp", "vice president", "head of", "svp", "evp"}, Score: 85},
		{Keywords: []string{"director"}, Score: 70},
		{Keywords: []string{"manager", "lead"}, Score: 50},
		{Keywords: []string{"senior", "principal"}, Score: 40},
	}

	sizeBands = []SizeBand{
		{Min: 1, Max: 10, Score: 20},
		{Min: 11, Max: 50, Score: 40},
		{Min: 51, Max: 200, Score: 70},
		{Min: 201, Max: 1000, Score: 90},
		{Min: 1001, Score: 100},
	}

	painTiers = []KeywordTier{
		{Keywords: []string{"pain", "struggl", "challenge", "bottleneck", "inefficien", "manual process"}, Score: 100},
		{Keywords: []string{"growth", "scal", "moderniz", "migrat", "automat", "expan"}, Score: 70},
	}
)

// DefaultConfig returns the built-in scoring configuration.
func DefaultConfig() Config {
	return Config{
		Weights: map[model.Framework]Weights{
			model.FrameworkLeadScore: {
				"seniority":    30,
				"company_size": 25,
				"industry_fit": 20,
				"engagement":   15,
				"completeness": 10,
			},
			model.FrameworkQualification: {
				"money":          30,
				"decision_maker": 30,
				"champion":       20,
				"process":        20,
			},
			model.FrameworkBANT: {
				"budget":    25,
				"authority": 30,
				"need":      25,
				"timeline":  20,
			},
			model.FrameworkSPIN: {
				"situation":   20,
				"problem":     30,
				"implication": 25,
				"need_payoff": 25,
			},
		},
		Rules:      defaultRules(),
		Thresholds: model.DefaultThresholds(),
	}
}

func defaultRules() map[model.Framework]map[string]Rule {
	rules := map[model.Framework]map[string]Rule{
		model.FrameworkLeadScore: {
			"seniority": {
				Kind: RuleKeyword, Fields: []string{model.FieldSeniority, model.FieldTitle},
				Tiers: seniorityTiers, NoMatch: 20, Neutral: 30,
			},
			"company_size": {Kind: RuleSize, Bands: sizeBands, Neutral: 40},
			"industry_fit": {
				Kind: RuleKeyword, Fields: []string{model.FieldIndustry, model.FieldVertical},
				Tiers: []KeywordTier{
					{Keywords: []string{"software", "saas", "technology", "fintech", "cloud"}, Score: 100},
					{Keywords: []string{"financial", "healthcare", "manufacturing", "retail", "professional services"}, Score: 70},
				},
				NoMatch: 40, Neutral: 40,
			},
			"engagement":   {Kind: RuleRecency, FreshDays: 7, StaleDays: 90, Neutral: 30},
			"completeness": {Kind: RuleCompleteness},
		},
		model.FrameworkQualification: {
			"money": {Kind: RuleSize, Bands: sizeBands, Neutral: 40},
			"decision_maker": {
				Kind: RuleKeyword, Fields: []string{model.FieldPersonaType, model.FieldSeniority, model.FieldTitle},
				Tiers: []KeywordTier{
					{Keywords: []string{"decision-maker", "decision maker", "economic buyer", "chief", "vp", "vice president", "founder", "owner", "president"}, Score: 100},
					{Keywords: []string{"director", "head of"}, Score: 70},
					{Keywords: []string{"manager"}, Score: 40},
				},
				NoMatch: 15, Neutral: 30,
			},
			"champion": {
				Kind: RuleKeyword, Fields: []string{model.FieldPersonaType},
				Tiers: []KeywordTier{
					{Keywords: []string{"champion"}, Score: 100},
					{Keywords: []string{"influencer", "evaluator"}, Score: 70},
					{Keywords: []string{"end-user", "end user", "user"}, Score: 40},
					{Keywords: []string{"gatekeeper", "blocker"}, Score: 10},
				},
				NoMatch: 30, Neutral: 30,
			},
			"process": {Kind: RulePresence, Fields: []string{model.FieldRecommendedApproach}, Neutral: 20},
		},
		model.FrameworkBANT: {
			"budget": {Kind: RuleSize, Bands: sizeBands, Neutral: 40},
			"authority": {
				Kind: RuleKeyword, Fields: []string{model.FieldSeniority, model.FieldTitle},
				Tiers: seniorityTiers, NoMatch: 20, Neutral: 30,
			},
			"need": {
				Kind: RuleKeyword, Fields: []string{model.FieldSummary, model.FieldTalkingPoints},
				Tiers: painTiers, NoMatch: 35, Neutral: 30,
			},
			"timeline": {
				Kind: RuleKeyword, Fields: []string{model.FieldRecentNews},
				Tiers: []KeywordTier{
					{Keywords: []string{"funding", "raised", "series", "acquisition", "acquired", "launch", "expansion", "hiring", "new ceo", "appointed"}, Score: 100},
					{Keywords: []string{"partnership", "award", "announce"}, Score: 60},
				},
				NoMatch: 30, Neutral: 25,
			},
		},
		model.FrameworkSPIN: {
			"situation": {
				Kind: RulePresence, PerItem: 34,
				Fields:  []string{model.FieldSummary, model.FieldIndustry, model.FieldCompanySize},
				Neutral: 20,
			},
			"problem": {
				Kind: RuleKeyword, Fields: []string{model.FieldSummary, model.FieldTalkingPoints},
				Tiers: painTiers, NoMatch: 30, Neutral: 25,
			},
			"implication": {
				Kind: RuleKeyword, Fields: []string{model.FieldRecentNews, model.FieldSummary},
				Tiers: []KeywordTier{
					{Keywords: []string{"layoff", "decline", "churn", "regulat", "compliance", "risk", "competit", "pressure"}, Score: 100},
					{Keywords: []string{"growth", "expan", "hiring"}, Score: 60},
				},
				NoMatch: 30, Neutral: 25,
			},
			"need_payoff": {
				Kind: RulePresence, PerItem: 25,
				Fields:  []string{model.FieldRecommendedApproach, model.FieldTalkingPoints},
				Neutral: 20,
			},
		},
	}

	// Shared slices must not alias across rules.
	for fw, m := range rules {
		for k, r := range m {
			rules[fw][k] = r.clone()
		}
	}
	return rules
}
