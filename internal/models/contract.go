// Package models defines the option, filter and opportunity records shared by
// the screening engine, the providers and the stores.
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// SharesPerContract is the equity multiplier of a standard listed option.
const SharesPerContract = 100.0

// DateLayout is the wire and storage format of expiration dates.
const DateLayout = "2006-01-02"

// OptionType represents the type of option contract
type OptionType string

const (
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
)

// Valid returns true if the OptionType is one of the defined constants
func (t OptionType) Valid() bool {
	switch t {
	case OptionTypeCall, OptionTypePut:
		return true
	default:
		return false
	}
}

// ParseOptionType accepts "call"/"put" in any case, plus the single-letter
// "C"/"P" forms used by some feeds.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return OptionTypeCall, nil
	case "put", "p":
		return OptionTypePut, nil
	default:
		return "", fmt.Errorf("unknown option type %q", s)
	}
}

// Greeks holds the sensitivities supplied by the data source. Only delta and
// implied volatility are consumed by the engine.
type Greeks struct {
	Delta             float64 `json:"delta"`
	ImpliedVolatility float64 `json:"implied_volatility"` // decimal (0.25 = 25%)
}

// OptionContract is an immutable snapshot of one listed option.
//
// Bid, Ask, Mark, OpenInterest and Volume default to zero when the source omits
// them. Greeks is nil when the source sent none; Delta() and IV() then report 0.
type OptionContract struct {
	Greeks       *Greeks    `json:"greeks,omitempty"`
	Symbol       string     `json:"symbol"`
	ContractID   string     `json:"contract_id,omitempty"`
	Type         OptionType `json:"type"`
	Expiration   time.Time  `json:"expiration"`
	Strike       float64    `json:"strike"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Mark         float64    `json:"mark"`
	OpenInterest int64      `json:"open_interest"`
	Volume       int64      `json:"volume"`
}

// Delta returns the contract delta, or 0 when no greeks were supplied.
func (o OptionContract) Delta() float64 {
	if o.Greeks == nil {
		return 0
	}
	return o.Greeks.Delta
}

// HasDelta reports whether the source supplied a non-zero delta.
func (o OptionContract) HasDelta() bool {
	return o.Greeks != nil && o.Greeks.Delta != 0
}

// IV returns the implied volatility, or 0 when no greeks were supplied.
func (o OptionContract) IV() float64 {
	if o.Greeks == nil {
		return 0
	}
	return o.Greeks.ImpliedVolatility
}

// ExpirationString formats the expiration date as YYYY-MM-DD.
func (o OptionContract) ExpirationString() string {
	return o.Expiration.Format(DateLayout)
}

type optionContractFields OptionContract

// optionContractWire shadows Expiration so it travels as a DateLayout string.
type optionContractWire struct {
	optionContractFields
	Expiration string `json:"expiration"`
}

// MarshalJSON encodes Expiration as YYYY-MM-DD.
func (o OptionContract) MarshalJSON() ([]byte, error) {
	w := optionContractWire{optionContractFields: optionContractFields(o)}
	if !o.Expiration.IsZero() {
		w.Expiration = o.ExpirationString()
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts a YYYY-MM-DD or RFC3339 expiration and keeps only its
// calendar date.
func (o *OptionContract) UnmarshalJSON(b []byte) error {
	var w optionContractWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*o = OptionContract(w.optionContractFields)
	o.Expiration = time.Time{}

	if w.Expiration == "" {
		return nil
	}
	exp, err := ParseDate(w.Expiration)
	if err != nil {
		ts, rfcErr := time.Parse(time.RFC3339, w.Expiration)
		if rfcErr != nil {
			return err
		}
		exp = DateOf(ts)
	}
	o.Expiration = exp
	return nil
}

// ParseDate parses a YYYY-MM-DD date into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// DateOf strips the clock from t, keeping its calendar date in t's location,
// and returns that date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns the signed number of calendar days from today to expiration.
func DaysUntil(today, expiration time.Time) int {
	from := DateOf(today)
	to := DateOf(expiration)
	return int(math.Round(to.Sub(from).Hours() / 24))
}
