package services

import (
	"math"
	"sort"
	"time"

	"github.com/jhilgenberg/evsync/models"
)

// CostCalculator resolves the electricity tariff applicable at a given
// instant and prices charging sessions against it.
//
// Cost model: energy cost (energy_rate is cents/kWh) plus a prorated
// share of the monthly base fee, approximated as base_rate_monthly
// divided over 30 days of 24 hours. Every call site uses this model.
type CostCalculator struct {
	tariffs []models.ElectricityTariff
}

// NewCostCalculator sorts the tariff list most-recent-first by
// valid_from. The ordering is load-bearing: when validity windows
// overlap, the tariff with the latest valid_from wins.
func NewCostCalculator(tariffs []models.ElectricityTariff) *CostCalculator {
	sorted := make([]models.ElectricityTariff, len(tariffs))
	copy(sorted, tariffs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ValidFrom.After(sorted[j].ValidFrom)
	})
	return &CostCalculator{tariffs: sorted}
}

// FindApplicableTariff returns the first tariff (most-recent-first)
// whose validity interval contains the instant, or nil if none does.
// An open-ended tariff is valid through the present.
func (c *CostCalculator) FindApplicableTariff(at time.Time) *models.ElectricityTariff {
	for i := range c.tariffs {
		tariff := &c.tariffs[i]

		validTo := time.Now()
		if tariff.ValidTo != nil {
			validTo = *tariff.ValidTo
		}

		if !at.Before(tariff.ValidFrom) && !at.After(validTo) {
			return tariff
		}
	}
	return nil
}

// CalculateSessionCost prices a session by the tariff in force at its
// start. A missing tariff is a business condition, not an error: the
// cost is zero and the returned tariff is nil.
func (c *CostCalculator) CalculateSessionCost(start, end time.Time, energyKWh float64) (float64, *models.ElectricityTariff) {
	tariff := c.FindApplicableTariff(start)
	if tariff == nil {
		return 0, nil
	}

	durationHours := end.Sub(start).Hours()
	if durationHours < 0 {
		durationHours = 0
	}

	baseRateCost := tariff.BaseRateMonthly / (30 * 24) * durationHours
	energyCost := tariff.EnergyRate / 100 * energyKWh

	return roundCents(baseRateCost + energyCost), tariff
}

func roundCents(value float64) float64 {
	return math.Round(value*100) / 100
}
