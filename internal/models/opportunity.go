package models

// Opportunity is one long/short pairing on the same underlying plus the metrics
// computed for it. Percent fields are expressed in percent (29.0 = 29%).
type Opportunity struct {
	Symbol          string         `json:"symbol"`
	UnderlyingPrice float64        `json:"underlying_price"`
	Strategy        Strategy       `json:"type_of_trade"`
	Long            OptionContract `json:"long_leg"`
	Short           OptionContract `json:"short_leg"`
	LongDTE         int            `json:"leaps_days_to_expiration"`
	ShortDTE        int            `json:"short_days_to_expiration"`

	LongCost      float64 `json:"leaps_cost"`    // long ask * 100
	ShortCredit   float64 `json:"short_premium"` // short bid * 100
	NetDebit      float64 `json:"net_debit"`
	NetDebitPct   float64 `json:"net_debit_pct"`
	ROCPct        float64 `json:"roc_pct"`
	POPPct        float64 `json:"pop_pct"`
	PositionDelta float64 `json:"position_delta"`
	Breakeven     float64 `json:"breakeven"`
	MaxProfit     float64 `json:"max_profit"`
}

// SymbolError records a per-symbol failure of a batch scan.
type SymbolError struct {
	Symbol  string `json:"symbol"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// LongRejections counts long-leg candidates dropped per reason.
type LongRejections struct {
	Days         int `json:"days"`
	Delta        int `json:"delta"`
	ITM          int `json:"itm"`
	OpenInterest int `json:"oi"`
	Volume       int `json:"volume"`
}

// ShortRejections counts short-leg candidates dropped per reason.
type ShortRejections struct {
	Days         int `json:"days"`
	OTM          int `json:"otm"`
	OpenInterest int `json:"oi"`
	Volume       int `json:"volume"`
}

// MatchRejections counts long/short pairs dropped per reason.
type MatchRejections struct {
	NetDebit  int `json:"net_debit"`
	Structure int `json:"structure"`
}

// RejectionStats is the diagnostic breakdown produced by the store-backed path.
type RejectionStats struct {
	TotalContracts int             `json:"total_contracts"`
	Long           LongRejections  `json:"leaps_rejections"`
	Short          ShortRejections `json:"short_rejections"`
	Match          MatchRejections `json:"match_rejections"`
}

// Each calls fn once per stage/reason counter, in a fixed order.
func (s *RejectionStats) Each(fn func(stage, reason string, n int)) {
	fn("long", "days", s.Long.Days)
	fn("long", "delta", s.Long.Delta)
	fn("long", "itm", s.Long.ITM)
	fn("long", "open_interest", s.Long.OpenInterest)
	fn("long", "volume", s.Long.Volume)
	fn("short", "days", s.Short.Days)
	fn("short", "otm", s.Short.OTM)
	fn("short", "open_interest", s.Short.OpenInterest)
	fn("short", "volume", s.Short.Volume)
	fn("match", "net_debit", s.Match.NetDebit)
	fn("match", "structure", s.Match.Structure)
}
