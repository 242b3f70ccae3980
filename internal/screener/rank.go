package screener

import (
	"sort"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
)

// DefaultPerLongLimit is the local cap applied per long leg on the store path.
const DefaultPerLongLimit = 5

// SortByROC orders opportunities by descending ROC%, keeping insertion order on ties.
func SortByROC(opps []models.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].ROCPct > opps[j].ROCPct
	})
}

// Rank sorts opportunities by descending ROC% and truncates to maxTrades.
// maxTrades <= 0 keeps every opportunity.
func Rank(opps []models.Opportunity, maxTrades int) []models.Opportunity {
	SortByROC(opps)
	if maxTrades > 0 && len(opps) > maxTrades {
		opps = opps[:maxTrades]
	}
	return opps
}

// CapPerLong keeps the top n opportunities, by ROC%, for each long leg. groups
// holds one slice per long leg in long order; the result concatenates them in
// that order.
func CapPerLong(groups [][]models.Opportunity, n int) []models.Opportunity {
	var out []models.Opportunity
	for _, g := range groups {
		SortByROC(g)
		if n > 0 && len(g) > n {
			g = g[:n]
		}
		out = append(out, g...)
	}
	return out
}
