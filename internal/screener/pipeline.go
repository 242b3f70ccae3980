package screener

import (
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
)

// Pipeline chains leg filtering, pair matching and risk evaluation for one
// symbol. The two named pipelines keep the live and store-backed behavior
// distinct rather than blending them.
type Pipeline struct {
	Legs  LegPolicy
	Match Matcher
	POP   POPModel
	// PerLongLimit caps opportunities per long leg before global ranking;
	// <= 0 disables the cap.
	PerLongLimit int
}

// LivePipeline is the target-delta, bounded cross-product, Black-Scholes pipeline.
func LivePipeline() Pipeline {
	return Pipeline{
		Legs:  TargetDeltaPolicy,
		Match: Matcher{Policy: BoundedCrossProduct, MaxLongs: DefaultMaxPerSide, MaxShorts: DefaultMaxPerSide},
		POP:   BlackScholesPOP,
	}
}

// StorePipeline is the delta-floor, structured cross-product pipeline using the
// delta POP proxy and a per-long cap of DefaultPerLongLimit.
func StorePipeline() Pipeline {
	return Pipeline{
		Legs:         DeltaFloorPolicy,
		Match:        Matcher{Policy: StructuredCrossProduct},
		POP:          DeltaProxyPOP,
		PerLongLimit: DefaultPerLongLimit,
	}
}

// Run produces the unranked opportunities of one symbol's chain. The result is
// per-long capped when PerLongLimit is set but not globally sorted or
// truncated. stats may be nil.
func (p Pipeline) Run(
	symbol string,
	chain []models.OptionContract,
	price float64,
	c *models.FilterCriteria,
	today time.Time,
	stats *models.RejectionStats,
) ([]models.Opportunity, error) {
	if stats == nil {
		stats = &models.RejectionStats{}
	}
	optionType := c.Strategy.OptionType()

	longs, err := FilterLongLegs(chain, price, c, optionType, p.Legs, today, &stats.Long)
	if err != nil {
		return nil, err
	}
	shorts, err := FilterShortLegs(chain, price, c, optionType, p.Legs, today, &stats.Short)
	if err != nil {
		return nil, err
	}
	pairs, err := p.Match.Match(longs, shorts, price, c.MaxNetDebitPct, &stats.Match)
	if err != nil {
		return nil, err
	}

	if p.PerLongLimit <= 0 {
		opps := make([]models.Opportunity, 0, len(pairs))
		for _, pair := range pairs {
			opps = append(opps, Evaluate(symbol, price, pair, c, p.POP))
		}
		return opps, nil
	}

	// Pairs arrive long-major, so a change of LongIndex starts a new group.
	var groups [][]models.Opportunity
	last := -1
	for _, pair := range pairs {
		if pair.LongIndex != last {
			groups = append(groups, nil)
			last = pair.LongIndex
		}
		g := len(groups) - 1
		groups[g] = append(groups[g], Evaluate(symbol, price, pair, c, p.POP))
	}
	return CapPerLong(groups, p.PerLongLimit), nil
}
