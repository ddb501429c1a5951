package billing

import (
	"fmt"
	"strings"
)

// Tier is a subscription level. Annual variants share the rank of their
// monthly counterpart but store the credits of a whole year.
type Tier string

const (
	TierFree             Tier = "free"
	TierBasic            Tier = "basic"
	TierPro              Tier = "pro"
	TierEnterprise       Tier = "enterprise"
	TierBasicAnnual      Tier = "basic-annual"
	TierProAnnual        Tier = "pro-annual"
	TierEnterpriseAnnual Tier = "enterprise-annual"
)

const (
	monthlyPeriodDays = 30
	annualPeriodDays  = 365
	monthsPerYear     = 12
)

type tierInfo struct {
	rank    int
	credits int64
	annual  bool
}

var tierTable = map[Tier]tierInfo{
	TierFree:             {rank: 0, credits: 0},
	TierBasic:            {rank: 1, credits: 200},
	TierPro:              {rank: 2, credits: 1500},
	TierEnterprise:       {rank: 3, credits: 5000},
	TierBasicAnnual:      {rank: 1, credits: 2400, annual: true},
	TierProAnnual:        {rank: 2, credits: 18000, annual: true},
	TierEnterpriseAnnual: {rank: 3, credits: 60000, annual: true},
}

// AllTiers lists every known tier in rank order, monthly before annual.
func AllTiers() []Tier {
	return []Tier{
		TierFree,
		TierBasic,
		TierPro,
		TierEnterprise,
		TierBasicAnnual,
		TierProAnnual,
		TierEnterpriseAnnual,
	}
}

// ParseTier accepts the canonical symbols case-insensitively; "_" is accepted
// in place of "-".
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if _, ok := tierTable[t]; !ok {
		return TierFree, fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return t, nil
}

func (t Tier) Valid() bool {
	_, ok := tierTable[t]
	return ok
}

// Rank is only meant for comparing tiers, never for credit math.
func (t Tier) Rank() int {
	return tierTable[t].rank
}

// Credits returns the allotment for one full billing cycle of the tier.
func (t Tier) Credits() int64 {
	return tierTable[t].credits
}

func (t Tier) IsAnnual() bool {
	return tierTable[t].annual
}

func (t Tier) String() string {
	return string(t)
}

// MonthlyCredits normalizes a tier's allotment to one month so monthly and
// annual tiers can be compared.
func MonthlyCredits(t Tier) int64 {
	if t.IsAnnual() {
		return t.Credits() / monthsPerYear
	}
	return t.Credits()
}

func PeriodDays(t Tier) int {
	if t.IsAnnual() {
		return annualPeriodDays
	}
	return monthlyPeriodDays
}
