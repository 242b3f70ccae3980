package models

import "time"

// Strategy names the diagonal spread structure being screened.
type Strategy string

const (
	// StrategyPMCC pairs a long-dated ITM call with a near-term OTM short call.
	StrategyPMCC Strategy = "Poor Mans Covered Call"
	// StrategyPMCP pairs a long-dated ITM put with a near-term OTM short put.
	StrategyPMCP Strategy = "Poor Mans Covered Put"
)

// Target deltas used to rank candidates on the live path.
const (
	LongTargetDelta  = 0.8
	ShortTargetDelta = 0.3
)

// Valid returns true if the Strategy is one of the defined constants
func (s Strategy) Valid() bool {
	return s == StrategyPMCC || s == StrategyPMCP
}

// OptionType returns the option type both legs of the strategy use.
// Anything other than StrategyPMCP is treated as call-based.
func (s Strategy) OptionType() OptionType {
	if s == StrategyPMCP {
		return OptionTypePut
	}
	return OptionTypeCall
}

// LongTargetDelta is 0.8 for calls and -0.8 for puts.
func (s Strategy) LongTargetDelta() float64 {
	if s.OptionType() == OptionTypePut {
		return -LongTargetDelta
	}
	return LongTargetDelta
}

// ShortTargetDelta is 0.3 for calls and -0.3 for puts.
func (s Strategy) ShortTargetDelta() float64 {
	if s.OptionType() == OptionTypePut {
		return -ShortTargetDelta
	}
	return ShortTargetDelta
}

// FilterCriteria is a named screening configuration. The engine consumes it
// read-only and does not repair inconsistent bounds (a min above its max simply
// matches nothing).
//
// ITM/OTM bounds are percentages (10.0 = 10%). MaxNetDebitPct is a fraction of
// the underlying's 100-share notional (0.5 = 50%).
type FilterCriteria struct {
	ID   int64  `json:"id" yaml:"id" db:"id"`
	Name string `json:"filter_criteria_name" yaml:"name" db:"filter_criteria_name"`

	LongMinDays   int     `json:"leaps_min_days" yaml:"long_min_days" db:"leaps_min_days" validate:"gte=0"`
	LongMaxDays   int     `json:"leaps_max_days" yaml:"long_max_days" db:"leaps_max_days" validate:"gte=0"`
	LongMinDelta  float64 `json:"leaps_min_delta" yaml:"long_min_delta" db:"leaps_min_delta" validate:"gte=0,lte=1"`
	LongMinITMPct float64 `json:"leaps_min_itm_percent" yaml:"long_min_itm_pct" db:"leaps_min_itm_percent"`
	LongMaxITMPct float64 `json:"leaps_max_itm_percent" yaml:"long_max_itm_pct" db:"leaps_max_itm_percent"`

	ShortMinDays   int     `json:"short_min_days" yaml:"short_min_days" db:"short_min_days" validate:"gte=0"`
	ShortMaxDays   int     `json:"short_max_days" yaml:"short_max_days" db:"short_max_days" validate:"gte=0"`
	ShortMinOTMPct float64 `json:"short_min_otm_percent" yaml:"short_min_otm_pct" db:"short_min_otm_percent"`
	ShortMaxOTMPct float64 `json:"short_max_otm_percent" yaml:"short_max_otm_pct" db:"short_max_otm_percent"`

	LongMinOpenInterest  int64 `json:"leaps_open_interest_min" yaml:"long_min_open_interest" db:"leaps_open_interest_min" validate:"gte=0"`
	ShortMinOpenInterest int64 `json:"short_open_interest_min" yaml:"short_min_open_interest" db:"short_open_interest_min" validate:"gte=0"`
	LongMinVolume        int64 `json:"leaps_volume_min" yaml:"long_min_volume" db:"leaps_volume_min" validate:"gte=0"`
	ShortMinVolume       int64 `json:"short_volume_min" yaml:"short_min_volume" db:"short_volume_min" validate:"gte=0"`

	MaxNetDebitPct float64  `json:"max_net_debit_pct" yaml:"max_net_debit_pct" db:"max_net_debit_pct" validate:"gt=0"`
	MaxTrades      int      `json:"max_trades" yaml:"max_trades" db:"max_trades" validate:"gte=0"`
	RiskFreeRate   float64  `json:"risk_free_rate" yaml:"risk_free_rate" db:"risk_free_rate"`
	Strategy       Strategy `json:"type_of_trade" yaml:"type_of_trade" db:"type_of_trade" validate:"required,oneof='Poor Mans Covered Call' 'Poor Mans Covered Put'"`

	IsActive       bool      `json:"is_active" yaml:"-" db:"is_active"`
	IsDeprecated   bool      `json:"is_deprecated" yaml:"-" db:"is_deprecated"`
	LastAccessedAt time.Time `json:"last_accessed_timestamp" yaml:"-" db:"last_accessed_timestamp"`
	CreatedAt      time.Time `json:"date_created" yaml:"-" db:"date_created"`
	ModifiedAt     time.Time `json:"date_modified" yaml:"-" db:"date_modified"`
}

// DefaultFilterCriteria returns the configuration seeded when a store holds no
// usable filter.
func DefaultFilterCriteria() FilterCriteria {
	return FilterCriteria{
		Name:                 "Default PMCC Filter",
		LongMinDays:          180,
		LongMaxDays:          730,
		LongMinDelta:         0.70,
		LongMinITMPct:        10.0,
		LongMaxITMPct:        50.0,
		ShortMinDays:         30,
		ShortMaxDays:         45,
		ShortMinOTMPct:       3.0,
		ShortMaxOTMPct:       20.0,
		LongMinOpenInterest:  10,
		ShortMinOpenInterest: 10,
		LongMinVolume:        10,
		ShortMinVolume:       10,
		MaxNetDebitPct:       0.5,
		MaxTrades:            5,
		RiskFreeRate:         0.045,
		Strategy:             StrategyPMCC,
	}
}
