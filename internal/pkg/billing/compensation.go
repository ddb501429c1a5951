package billing

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const bonusWindowDays = 30

// Compensation is the credit grant owed on an upgrade together with every
// intermediate value, so a grant can be explained after the fact.
type Compensation struct {
	OldTier        Tier   `json:"old_tier"`
	NewTier        Tier   `json:"new_tier"`
	DaysRemaining  int    `json:"days_remaining"`
	OldMonthly     int64  `json:"old_monthly"`
	NewMonthly     int64  `json:"new_monthly"`
	OldDaily       string `json:"old_daily"`
	RemainingValue int64  `json:"remaining_value"`
	MonthlyDiff    int64  `json:"monthly_diff"`
	BonusRatio     string `json:"bonus_ratio"`
	Bonus          int64  `json:"bonus"`
	Total          int64  `json:"total"`
}

// ComputeUpgradeCredits returns remaining value of the old plan plus a
// pro-rated slice of the monthly difference, capped at one month. Moves that
// do not increase monthly value yield zero.
func ComputeUpgradeCredits(oldTier, newTier Tier, daysRemaining int) Compensation {
	if daysRemaining < 0 {
		daysRemaining = 0
	}
	c := Compensation{
		OldTier:       oldTier,
		NewTier:       newTier,
		DaysRemaining: daysRemaining,
		OldMonthly:    MonthlyCredits(oldTier),
		NewMonthly:    MonthlyCredits(newTier),
		OldDaily:      "0",
		BonusRatio:    "0",
	}
	if c.NewMonthly <= c.OldMonthly {
		return c
	}

	days := decimal.NewFromInt(int64(daysRemaining))
	period := decimal.NewFromInt(int64(PeriodDays(oldTier)))
	oldCredits := decimal.NewFromInt(oldTier.Credits())

	c.OldDaily = oldCredits.Div(period).StringFixed(4)
	// Multiply before dividing so the floor is exact.
	c.RemainingValue = oldCredits.Mul(days).Div(period).Floor().IntPart()

	window := decimal.NewFromInt(bonusWindowDays)
	bonusDays := decimal.Min(days, window)
	c.MonthlyDiff = c.NewMonthly - c.OldMonthly
	c.BonusRatio = bonusDays.Div(window).StringFixed(4)
	c.Bonus = decimal.NewFromInt(c.MonthlyDiff).Mul(bonusDays).Div(window).Floor().IntPart()

	c.Total = c.RemainingValue + c.Bonus
	return c
}

// DaysRemaining counts started days between now and periodEnd, never negative.
func DaysRemaining(periodEnd, now time.Time) int {
	if periodEnd.IsZero() || !periodEnd.After(now) {
		return 0
	}
	return int(math.Ceil(periodEnd.Sub(now).Seconds() / (24 * time.Hour).Seconds()))
}
