package screener

import (
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
)

var testToday = time.Date(2026, time.January, 2, 15, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testToday }

// contract builds a liquid contract expiring dte days after testToday.
func contract(t models.OptionType, strike float64, dte int, delta, bid, ask float64) models.OptionContract {
	return models.OptionContract{
		Symbol:       "TEST",
		Type:         t,
		Expiration:   models.DateOf(testToday).AddDate(0, 0, dte),
		Strike:       strike,
		Bid:          bid,
		Ask:          ask,
		OpenInterest: 100,
		Volume:       100,
		Greeks:       &models.Greeks{Delta: delta, ImpliedVolatility: 0.30},
	}
}

// scenarioChain is the reference PMCC setup at an underlying price of 100.
func scenarioChain() []models.OptionContract {
	return []models.OptionContract{
		contract(models.OptionTypeCall, 70, 365, 0.8, 31, 32),
		contract(models.OptionTypeCall, 110, 45, 0.3, 3, 3.2),
	}
}

func defaultCriteria() *models.FilterCriteria {
	c := models.DefaultFilterCriteria()
	return &c
}
