package screener

import (
	"github.com/eddiefleurent/pmcc_scanner/internal/models"
)

// DefaultMaxPerSide bounds the live cross-product to the top 50 ranked legs per side.
const DefaultMaxPerSide = 50

// MatchPolicy selects how long and short legs are paired.
type MatchPolicy int

const (
	// BoundedCrossProduct pairs the top MaxLongs longs with the top MaxShorts
	// shorts with no structural constraint (live path).
	BoundedCrossProduct MatchPolicy = iota
	// StructuredCrossProduct pairs every long with every short whose expiration
	// is strictly earlier and whose strike is strictly higher (store path). The
	// constraint is applied as-is to put strategies as well.
	StructuredCrossProduct
)

func (p MatchPolicy) String() string {
	switch p {
	case BoundedCrossProduct:
		return "bounded"
	case StructuredCrossProduct:
		return "structured"
	default:
		return "unknown"
	}
}

// Pair is an accepted long/short combination with its cost figures.
type Pair struct {
	Long        Leg
	Short       Leg
	LongIndex   int     // position of Long in the matcher's long input
	LongCost    float64 // long ask * 100
	ShortCredit float64 // short bid * 100
	NetDebit    float64
}

// Matcher pairs leg candidates under a MatchPolicy.
type Matcher struct {
	Policy MatchPolicy
	// BoundedCrossProduct only; <= 0 means DefaultMaxPerSide.
	MaxLongs  int
	MaxShorts int
}

// Match returns accepted pairs in long-major order. A pair is rejected when the
// net debit is not positive or when netDebit/(price*100) reaches maxNetDebitPct.
// rej may be nil.
func (m Matcher) Match(longs, shorts []Leg, price, maxNetDebitPct float64, rej *models.MatchRejections) ([]Pair, error) {
	if err := validatePrice(price); err != nil {
		return nil, err
	}
	if rej == nil {
		rej = &models.MatchRejections{}
	}

	if m.Policy == BoundedCrossProduct {
		longs = head(longs, m.MaxLongs)
		shorts = head(shorts, m.MaxShorts)
	}

	notional := price * models.SharesPerContract
	var pairs []Pair
	for i, long := range longs {
		for _, short := range shorts {
			if m.Policy == StructuredCrossProduct {
				if !short.Contract.Expiration.Before(long.Contract.Expiration) ||
					short.Contract.Strike <= long.Contract.Strike {
					rej.Structure++
					continue
				}
			}

			longCost := long.Contract.Ask * models.SharesPerContract
			shortCredit := short.Contract.Bid * models.SharesPerContract
			netDebit := longCost - shortCredit
			if netDebit <= 0 || netDebit/notional >= maxNetDebitPct {
				rej.NetDebit++
				continue
			}

			pairs = append(pairs, Pair{
				Long:        long,
				Short:       short,
				LongIndex:   i,
				LongCost:    longCost,
				ShortCredit: shortCredit,
				NetDebit:    netDebit,
			})
		}
	}
	return pairs, nil
}

func head(legs []Leg, n int) []Leg {
	if n <= 0 {
		n = DefaultMaxPerSide
	}
	if len(legs) > n {
		return legs[:n]
	}
	return legs
}
