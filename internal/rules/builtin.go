package rules

import "github.com/MkandawireChico/mobile-money-fraud-final/internal/domain"

func f(v float64) *float64 { return &v }

// BuiltinRules returns the default rule set seeded when the database
// has no rule configurations yet. Operators extend or replace these
// via the rules API.
func BuiltinRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          "late-night-cashout",
			Name:        "Late night cash out",
			Description: "Large cash out between 22:00 and 05:00",
			Version:     "1.0",
			Expression:  `tx_type == "cash_out" && amount > 50000.0 && (hour >= 22 || hour <= 5)`,
			Bands: []domain.RuleBand{
				{UpperLimit: f(1), SubRuleRef: domain.RuleOutcomePass, Reason: "within normal hours or size"},
				{LowerLimit: f(1), SubRuleRef: domain.RuleOutcomeFail, Reason: "Large late night cash out"},
			},
			Weight:  1.0,
			Enabled: true,
		},
		{
			ID:          "velocity-burst",
			Name:        "Transaction velocity burst",
			Description: "More than 20 transactions in the trailing hour",
			Version:     "1.0",
			Expression:  `velocity_count > 20`,
			Bands: []domain.RuleBand{
				{UpperLimit: f(1), SubRuleRef: domain.RuleOutcomePass, Reason: "velocity within limits"},
				{LowerLimit: f(1), SubRuleRef: domain.RuleOutcomeReview, Reason: "Unusually high transaction velocity"},
			},
			Weight:  0.8,
			Enabled: true,
		},
		{
			ID:          "new-device-large",
			Name:        "New device large transfer",
			Description: "First-seen device moving a large amount",
			Version:     "1.0",
			Expression:  `is_new_device && amount > 100000.0`,
			Bands: []domain.RuleBand{
				{UpperLimit: f(1), SubRuleRef: domain.RuleOutcomePass, Reason: "known device or modest amount"},
				{LowerLimit: f(1), SubRuleRef: domain.RuleOutcomeReview, Reason: "Large transfer from new device"},
			},
			Weight:  0.9,
			Enabled: true,
		},
	}
}
