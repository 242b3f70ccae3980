// Package screener implements the diagonal-spread screening engine: leg
// filtering, long/short pairing, risk metrics and ranking, plus the live-scan
// and store-backed orchestrators built on them.
package screener

import (
	"math"
	"sort"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
)

// LegPolicy selects how leg candidates are qualified and ordered.
type LegPolicy int

const (
	// TargetDeltaPolicy keeps legs inside two-sided ITM/OTM bands and orders
	// them by distance from the target delta (live path).
	TargetDeltaPolicy LegPolicy = iota
	// DeltaFloorPolicy rejects long legs below a minimum delta, applies a
	// one-sided ITM minimum and keeps source order (store path).
	DeltaFloorPolicy
)

func (p LegPolicy) String() string {
	switch p {
	case TargetDeltaPolicy:
		return "target_delta"
	case DeltaFloorPolicy:
		return "delta_floor"
	default:
		return "unknown"
	}
}

// Leg is a contract that passed a leg filter, with its DTE as of the scan date.
type Leg struct {
	Contract models.OptionContract
	DTE      int
}

// itmPct is the percent the strike sits in the money (negative when OTM).
func itmPct(price, strike float64, t models.OptionType) float64 {
	if t == models.OptionTypePut {
		return (strike - price) * 100 / price
	}
	return (price - strike) * 100 / price
}

// otmPct is the percent the strike sits out of the money (negative when ITM).
func otmPct(price, strike float64, t models.OptionType) float64 {
	return -itmPct(price, strike, t)
}

func validatePrice(price float64) error {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return models.NewValidationError("underlying_price", "must be a positive finite number")
	}
	return nil
}

// sortByDeltaDistance orders legs by |delta - target|, keeping source order on ties.
func sortByDeltaDistance(legs []Leg, target float64) {
	sort.SliceStable(legs, func(i, j int) bool {
		return math.Abs(legs[i].Contract.Delta()-target) < math.Abs(legs[j].Contract.Delta()-target)
	})
}

// FilterLongLegs returns the long-leg candidates of chain for optionType.
// Contracts of the other type are skipped without being counted. rej may be nil.
func FilterLongLegs(
	chain []models.OptionContract,
	price float64,
	c *models.FilterCriteria,
	optionType models.OptionType,
	policy LegPolicy,
	today time.Time,
	rej *models.LongRejections,
) ([]Leg, error) {
	if err := validatePrice(price); err != nil {
		return nil, err
	}
	if rej == nil {
		rej = &models.LongRejections{}
	}

	var legs []Leg
	for _, opt := range chain {
		if opt.Type != optionType {
			continue
		}
		dte := models.DaysUntil(today, opt.Expiration)
		if dte < c.LongMinDays || dte > c.LongMaxDays {
			rej.Days++
			continue
		}
		itm := itmPct(price, opt.Strike, optionType)

		switch policy {
		case DeltaFloorPolicy:
			// A missing delta is not evidence of a shallow strike.
			if opt.HasDelta() && math.Abs(opt.Delta()) < c.LongMinDelta {
				rej.Delta++
				continue
			}
			if itm < c.LongMinITMPct {
				rej.ITM++
				continue
			}
			if opt.OpenInterest < c.LongMinOpenInterest {
				rej.OpenInterest++
				continue
			}
			if opt.Volume < c.LongMinVolume {
				rej.Volume++
				continue
			}
		default:
			if itm < c.LongMinITMPct || itm > c.LongMaxITMPct {
				rej.ITM++
				continue
			}
			if opt.Volume < c.LongMinVolume {
				rej.Volume++
				continue
			}
			if opt.OpenInterest < c.LongMinOpenInterest {
				rej.OpenInterest++
				continue
			}
		}
		legs = append(legs, Leg{Contract: opt, DTE: dte})
	}

	if policy == TargetDeltaPolicy {
		sortByDeltaDistance(legs, c.Strategy.LongTargetDelta())
	}
	return legs, nil
}

// FilterShortLegs returns the short-leg candidates of chain for optionType.
// Both policies apply a two-sided OTM band; only TargetDeltaPolicy reorders.
func FilterShortLegs(
	chain []models.OptionContract,
	price float64,
	c *models.FilterCriteria,
	optionType models.OptionType,
	policy LegPolicy,
	today time.Time,
	rej *models.ShortRejections,
) ([]Leg, error) {
	if err := validatePrice(price); err != nil {
		return nil, err
	}
	if rej == nil {
		rej = &models.ShortRejections{}
	}

	var legs []Leg
	for _, opt := range chain {
		if opt.Type != optionType {
			continue
		}
		dte := models.DaysUntil(today, opt.Expiration)
		if dte < c.ShortMinDays || dte > c.ShortMaxDays {
			rej.Days++
			continue
		}
		otm := otmPct(price, opt.Strike, optionType)
		if otm < c.ShortMinOTMPct || otm > c.ShortMaxOTMPct {
			rej.OTM++
			continue
		}

		if policy == DeltaFloorPolicy {
			if opt.OpenInterest < c.ShortMinOpenInterest {
				rej.OpenInterest++
				continue
			}
			if opt.Volume < c.ShortMinVolume {
				rej.Volume++
				continue
			}
		} else {
			if opt.Volume < c.ShortMinVolume {
				rej.Volume++
				continue
			}
			if opt.OpenInterest < c.ShortMinOpenInterest {
				rej.OpenInterest++
				continue
			}
		}
		legs = append(legs, Leg{Contract: opt, DTE: dte})
	}

	if policy == TargetDeltaPolicy {
		sortByDeltaDistance(legs, c.Strategy.ShortTargetDelta())
	}
	return legs, nil
}
