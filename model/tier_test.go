package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func testTiers() []Tier {
	return []Tier{
		{PlanID: "starter", Amount: decimal.NewFromFloat(9.00), PermanentCredits: 100, BonusCredits: 20, BonusExpiresDays: 30},
		{PlanID: "creator", Amount: decimal.NewFromFloat(39.00), PermanentCredits: 500, BonusCredits: 150, BonusExpiresDays: 30},
		{PlanID: "studio", Amount: decimal.NewFromFloat(99.00), PermanentCredits: 1500, BonusCredits: 500, BonusExpiresDays: 60},
	}
}

func TestMatchTierExact(t *testing.T) {
	tier := MatchTier(decimal.NewFromFloat(39.00), testTiers())
	assert.NotNil(t, tier)
	assert.Equal(t, "creator", tier.PlanID)
}

func TestMatchTierWithinTolerance(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		plan   string
	}{
		{"fee drift above", 39.49, "creator"},
		{"fee drift below", 38.52, "creator"},
		{"starter upper edge", 9.50, "starter"},
		{"studio lower edge", 98.50, "studio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier := MatchTier(decimal.NewFromFloat(tt.amount), testTiers())
			assert.NotNil(t, tier)
			assert.Equal(t, tt.plan, tier.PlanID)
		})
	}
}

func TestMatchTierNoMatch(t *testing.T) {
	assert.Nil(t, MatchTier(decimal.NewFromFloat(45.00), testTiers()))
	assert.Nil(t, MatchTier(decimal.NewFromFloat(0), testTiers()))
	assert.Nil(t, MatchTier(decimal.NewFromFloat(39.51), testTiers()))
}

func TestTierToleranceDoesNotOverlapAdjacentTiers(t *testing.T) {
	tiers := testTiers()
	for i := 0; i < len(tiers)-1; i++ {
		gap := tiers[i+1].Amount.Sub(tiers[i].Amount)
		assert.True(t, gap.GreaterThan(TierTolerance.Mul(decimal.NewFromInt(2))),
			"tiers %s and %s are close enough for the tolerance to overlap", tiers[i].PlanID, tiers[i+1].PlanID)
	}
}
