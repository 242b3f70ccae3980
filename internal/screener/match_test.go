package screener

import (
	"testing"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func legOf(c models.OptionContract) Leg {
	return Leg{Contract: c, DTE: models.DaysUntil(testToday, c.Expiration)}
}

func TestMatch_ScenarioAccepted(t *testing.T) {
	chain := scenarioChain()
	var rej models.MatchRejections

	pairs, err := Matcher{Policy: BoundedCrossProduct}.Match(
		[]Leg{legOf(chain[0])}, []Leg{legOf(chain[1])}, 100, 0.5, &rej)
	require.NoError(t, err)
	require.Len(t, pairs, 1)

	assert.InDelta(t, 3200.0, pairs[0].LongCost, 1e-9)
	assert.InDelta(t, 300.0, pairs[0].ShortCredit, 1e-9)
	assert.InDelta(t, 2900.0, pairs[0].NetDebit, 1e-9)
	assert.Zero(t, rej.NetDebit)
}

func TestMatch_NetDebitRejections(t *testing.T) {
	long := legOf(contract(models.OptionTypeCall, 70, 365, 0.8, 31, 32))

	tests := []struct {
		name     string
		shortBid float64
		maxPct   float64
	}{
		{"credit equals cost", 32, 0.5},
		{"credit exceeds cost", 35, 0.5},
		{"debit at the cap", 3, 0.29},
		{"debit over the cap", 3, 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			short := legOf(contract(models.OptionTypeCall, 110, 45, 0.3, tt.shortBid, tt.shortBid+0.2))
			var rej models.MatchRejections
			pairs, err := Matcher{Policy: BoundedCrossProduct}.Match([]Leg{long}, []Leg{short}, 100, tt.maxPct, &rej)
			require.NoError(t, err)
			assert.Empty(t, pairs)
			assert.Equal(t, 1, rej.NetDebit)
		})
	}
}

func TestMatch_BoundedLimitsEachSide(t *testing.T) {
	var longs, shorts []Leg
	for i := 0; i < 5; i++ {
		longs = append(longs, legOf(contract(models.OptionTypeCall, 70, 365, 0.8, 31, 32)))
		shorts = append(shorts, legOf(contract(models.OptionTypeCall, 110, 45, 0.3, 3, 3.2)))
	}

	pairs, err := Matcher{Policy: BoundedCrossProduct, MaxLongs: 2, MaxShorts: 3}.Match(longs, shorts, 100, 0.5, nil)
	require.NoError(t, err)
	assert.Len(t, pairs, 6)

	pairs, err = Matcher{Policy: BoundedCrossProduct}.Match(longs, shorts, 100, 0.5, nil)
	require.NoError(t, err)
	assert.Len(t, pairs, 25)
}

func TestMatch_StructuredConstraint(t *testing.T) {
	long := legOf(contract(models.OptionTypeCall, 70, 365, 0.8, 31, 32))

	tests := []struct {
		name  string
		short models.OptionContract
		ok    bool
	}{
		{"earlier and higher", contract(models.OptionTypeCall, 110, 45, 0.3, 3, 3.2), true},
		{"same expiration", contract(models.OptionTypeCall, 110, 365, 0.3, 3, 3.2), false},
		{"later expiration", contract(models.OptionTypeCall, 110, 400, 0.3, 3, 3.2), false},
		{"same strike", contract(models.OptionTypeCall, 70, 45, 0.9, 3, 3.2), false},
		{"lower strike", contract(models.OptionTypeCall, 60, 45, 0.9, 3, 3.2), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rej models.MatchRejections
			pairs, err := Matcher{Policy: StructuredCrossProduct}.Match([]Leg{long}, []Leg{legOf(tt.short)}, 100, 0.5, &rej)
			require.NoError(t, err)
			if tt.ok {
				assert.Len(t, pairs, 1)
				assert.Zero(t, rej.Structure)
				return
			}
			assert.Empty(t, pairs)
			assert.Equal(t, 1, rej.Structure)
			assert.Zero(t, rej.NetDebit)
		})
	}
}

func TestMatch_LongMajorOrder(t *testing.T) {
	longs := []Leg{
		legOf(contract(models.OptionTypeCall, 70, 365, 0.8, 31, 32)),
		legOf(contract(models.OptionTypeCall, 75, 365, 0.75, 27, 28)),
	}
	shorts := []Leg{
		legOf(contract(models.OptionTypeCall, 110, 45, 0.3, 3, 3.2)),
		legOf(contract(models.OptionTypeCall, 105, 45, 0.4, 4, 4.2)),
	}

	pairs, err := Matcher{Policy: StructuredCrossProduct}.Match(longs, shorts, 100, 0.5, nil)
	require.NoError(t, err)
	require.Len(t, pairs, 4)
	assert.Equal(t, []int{0, 0, 1, 1}, []int{pairs[0].LongIndex, pairs[1].LongIndex, pairs[2].LongIndex, pairs[3].LongIndex})
	assert.Equal(t, 105.0, pairs[1].Short.Contract.Strike)
}
