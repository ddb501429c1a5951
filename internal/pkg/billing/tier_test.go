package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierTable(t *testing.T) {
	tests := []struct {
		tier    Tier
		rank    int
		credits int64
		monthly int64
		days    int
	}{
		{TierFree, 0, 0, 0, 30},
		{TierBasic, 1, 200, 200, 30},
		{TierPro, 2, 1500, 1500, 30},
		{TierEnterprise, 3, 5000, 5000, 30},
		{TierBasicAnnual, 1, 2400, 200, 365},
		{TierProAnnual, 2, 18000, 1500, 365},
		{TierEnterpriseAnnual, 3, 60000, 5000, 365},
	}

	for _, tt := range tests {
		t.Run(tt.tier.String(), func(t *testing.T) {
			assert.True(t, tt.tier.Valid())
			assert.Equal(t, tt.rank, tt.tier.Rank())
			assert.Equal(t, tt.credits, tt.tier.Credits())
			assert.Equal(t, tt.monthly, MonthlyCredits(tt.tier))
			assert.Equal(t, tt.days, PeriodDays(tt.tier))
		})
	}
}

func TestAllTiersCoversTable(t *testing.T) {
	tiers := AllTiers()
	assert.Len(t, tiers, len(tierTable))
	for _, tier := range tiers {
		assert.True(t, tier.Valid(), "tier %s missing from table", tier)
	}
}

func TestAnnualTiersShareMonthlyRank(t *testing.T) {
	assert.Equal(t, TierBasic.Rank(), TierBasicAnnual.Rank())
	assert.Equal(t, TierPro.Rank(), TierProAnnual.Rank())
	assert.Equal(t, TierEnterprise.Rank(), TierEnterpriseAnnual.Rank())
	assert.False(t, TierPro.IsAnnual())
	assert.True(t, TierProAnnual.IsAnnual())
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{"pro", TierPro},
		{" PRO ", TierPro},
		{"pro_annual", TierProAnnual},
		{"Enterprise-Annual", TierEnterpriseAnnual},
		{"free", TierFree},
	}
	for _, tt := range tests {
		got, err := ParseTier(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	got, err := ParseTier("platinum")
	assert.ErrorIs(t, err, ErrUnknownTier)
	assert.Equal(t, TierFree, got)
	assert.False(t, Tier("platinum").Valid())
	assert.Equal(t, 0, Tier("platinum").Rank())
}
