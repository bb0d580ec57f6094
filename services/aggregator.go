package services

import (
	"math"

	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/shopspring/decimal"
)

// ComputeIPOStats counts records per status and averages the strictly positive
// premium percentages, formatted to one decimal place ("0.0" when none qualify).
func ComputeIPOStats(records []models.IPORecord) models.IPOStats {
	stats := models.IPOStats{TotalIPOs: len(records)}

	sum := decimal.Zero
	withPremium := 0
	for _, r := range records {
		switch r.CurrentStatus {
		case models.StatusOpen:
			stats.OpenIPOs++
		case models.StatusUpcoming:
			stats.UpcomingIPOs++
		case models.StatusClosed:
			stats.ClosedIPOs++
		}

		if p := r.PremiumPercentage; p != nil && *p > 0 && !math.IsInf(*p, 1) {
			sum = sum.Add(decimal.NewFromFloat(*p))
			withPremium++
		}
	}

	avg := decimal.Zero
	if withPremium > 0 {
		avg = sum.Div(decimal.NewFromInt(int64(withPremium)))
	}
	stats.AvgPremium = avg.StringFixed(1)
	return stats
}
