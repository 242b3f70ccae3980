package screener

import (
	"math"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
)

const daysPerYear = 365.0

// POPModel selects how probability of profit is estimated for a pair.
type POPModel int

const (
	// BlackScholesPOP is the risk-neutral probability that the short leg
	// expires out of the money (live path).
	BlackScholesPOP POPModel = iota
	// DeltaProxyPOP approximates POP as (1 - |short delta|) (store path).
	DeltaProxyPOP
)

func (m POPModel) String() string {
	switch m {
	case BlackScholesPOP:
		return "black_scholes"
	case DeltaProxyPOP:
		return "delta_proxy"
	default:
		return "unknown"
	}
}

// NormCDF is the standard normal cumulative distribution function.
func NormCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// ProbabilityOTM returns the Black-Scholes probability, in [0,1], that an
// option struck at k finishes out of the money. t is in years, r and sigma are
// decimals. With no volatility or no time left (or a non-positive spot or
// strike) the answer collapses to whether the option is OTM right now.
func ProbabilityOTM(s, k, t, r, sigma float64, optionType models.OptionType) float64 {
	if sigma == 0 || t == 0 || s <= 0 || k <= 0 {
		var otm bool
		if optionType == models.OptionTypePut {
			otm = s > k
		} else {
			otm = s < k
		}
		if otm {
			return 1
		}
		return 0
	}

	d2 := (math.Log(s/k) + (r-0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
	if optionType == models.OptionTypePut {
		return NormCDF(d2)
	}
	return NormCDF(-d2)
}

// DeltaProxyProbability approximates the OTM probability as 1 - |delta|.
func DeltaProxyProbability(shortDelta float64) float64 {
	return 1 - math.Abs(shortDelta)
}

// ReturnOnCapital is the short credit as a percent of the net debit, or 0 when
// the net debit is not positive.
func ReturnOnCapital(shortCredit, netDebit float64) float64 {
	if netDebit <= 0 {
		return 0
	}
	return shortCredit / netDebit * 100
}

// Breakeven is the underlying price at which the position neither gains nor
// loses at the long strike, per share.
func Breakeven(longStrike, netDebit float64, optionType models.OptionType) float64 {
	if optionType == models.OptionTypePut {
		return longStrike - netDebit/models.SharesPerContract
	}
	return longStrike + netDebit/models.SharesPerContract
}

// PositionDelta combines the long and short leg deltas. Call structures
// subtract the short delta; put structures add it, as supplied by the feed.
func PositionDelta(longDelta, shortDelta float64, optionType models.OptionType) float64 {
	if optionType == models.OptionTypePut {
		return longDelta + shortDelta
	}
	return longDelta - shortDelta
}

// Evaluate turns an accepted pair into an Opportunity.
func Evaluate(symbol string, price float64, p Pair, c *models.FilterCriteria, model POPModel) models.Opportunity {
	optionType := c.Strategy.OptionType()
	long, short := p.Long.Contract, p.Short.Contract

	var pop float64
	switch model {
	case DeltaProxyPOP:
		pop = DeltaProxyProbability(short.Delta())
	default:
		pop = ProbabilityOTM(price, short.Strike, float64(p.Short.DTE)/daysPerYear, c.RiskFreeRate, short.IV(), optionType)
	}

	return models.Opportunity{
		Symbol:          symbol,
		UnderlyingPrice: price,
		Strategy:        c.Strategy,
		Long:            long,
		Short:           short,
		LongDTE:         p.Long.DTE,
		ShortDTE:        p.Short.DTE,
		LongCost:        p.LongCost,
		ShortCredit:     p.ShortCredit,
		NetDebit:        p.NetDebit,
		NetDebitPct:     p.NetDebit / (price * models.SharesPerContract) * 100,
		ROCPct:          ReturnOnCapital(p.ShortCredit, p.NetDebit),
		POPPct:          pop * 100,
		PositionDelta:   PositionDelta(long.Delta(), short.Delta(), optionType),
		Breakeven:       Breakeven(long.Strike, p.NetDebit, optionType),
		MaxProfit:       (short.Strike-long.Strike)*models.SharesPerContract - p.NetDebit,
	}
}
