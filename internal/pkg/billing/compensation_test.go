package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeUpgradeCreditsBasicToProHalfway(t *testing.T) {
	c := ComputeUpgradeCredits(TierBasic, TierPro, 15)

	assert.Equal(t, int64(200), c.OldMonthly)
	assert.Equal(t, int64(1500), c.NewMonthly)
	assert.Equal(t, int64(100), c.RemainingValue)
	assert.Equal(t, int64(1300), c.MonthlyDiff)
	assert.Equal(t, int64(650), c.Bonus)
	assert.Equal(t, int64(750), c.Total)
	assert.Equal(t, "6.6667", c.OldDaily)
	assert.Equal(t, "0.5000", c.BonusRatio)
}

func TestComputeUpgradeCreditsFromAnnual(t *testing.T) {
	c := ComputeUpgradeCredits(TierBasicAnnual, TierPro, 100)

	// 2400 * 100 / 365 = 657.53; bonus capped at a 30-day window.
	assert.Equal(t, int64(657), c.RemainingValue)
	assert.Equal(t, int64(1300), c.Bonus)
	assert.Equal(t, int64(1957), c.Total)
}

func TestComputeUpgradeCreditsAnnualToAnnualCapsBonus(t *testing.T) {
	c := ComputeUpgradeCredits(TierBasicAnnual, TierProAnnual, 200)

	assert.Equal(t, int64(1315), c.RemainingValue)
	assert.Equal(t, int64(1300), c.Bonus)
	assert.Equal(t, c.RemainingValue+c.Bonus, c.Total)
}

func TestComputeUpgradeCreditsZeroWhenNotAnUpgrade(t *testing.T) {
	tests := []struct {
		old, new Tier
	}{
		{TierPro, TierBasic},
		{TierPro, TierPro},
		{TierPro, TierProAnnual},
		{TierEnterprise, TierFree},
	}
	for _, tt := range tests {
		c := ComputeUpgradeCredits(tt.old, tt.new, 20)
		assert.Zero(t, c.Total, "%s -> %s", tt.old, tt.new)
		assert.Zero(t, c.Bonus)
		assert.Zero(t, c.RemainingValue)
	}
}

func TestComputeUpgradeCreditsMonotonic(t *testing.T) {
	pairs := [][2]Tier{
		{TierFree, TierBasic},
		{TierBasic, TierPro},
		{TierBasic, TierEnterprise},
		{TierPro, TierEnterprise},
		{TierBasicAnnual, TierProAnnual},
		{TierProAnnual, TierEnterprise},
	}
	for _, p := range pairs {
		prev := int64(-1)
		for days := 0; days <= 365; days++ {
			c := ComputeUpgradeCredits(p[0], p[1], days)
			assert.GreaterOrEqual(t, c.Total, prev, "%s -> %s at %d days", p[0], p[1], days)
			assert.GreaterOrEqual(t, c.Total, int64(0))
			prev = c.Total
		}
	}

	// A richer target never yields less.
	assert.LessOrEqual(t,
		ComputeUpgradeCredits(TierBasic, TierPro, 10).Total,
		ComputeUpgradeCredits(TierBasic, TierEnterprise, 10).Total)
}

func TestComputeUpgradeCreditsClampsNegativeDays(t *testing.T) {
	c := ComputeUpgradeCredits(TierBasic, TierPro, -5)
	assert.Equal(t, 0, c.DaysRemaining)
	assert.Zero(t, c.Total)
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 15, DaysRemaining(now.AddDate(0, 0, 15), now))
	assert.Equal(t, 1, DaysRemaining(now.Add(time.Hour), now))
	assert.Equal(t, 2, DaysRemaining(now.Add(25*time.Hour), now))
	assert.Equal(t, 0, DaysRemaining(now, now))
	assert.Equal(t, 0, DaysRemaining(now.AddDate(0, 0, -3), now))
	assert.Equal(t, 0, DaysRemaining(time.Time{}, now))
}
