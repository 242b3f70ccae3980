package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptionType(t *testing.T) {
	tests := []struct {
		in      string
		want    OptionType
		wantErr bool
	}{
		{"call", OptionTypeCall, false},
		{"CALL", OptionTypeCall, false},
		{"c", OptionTypeCall, false},
		{" put ", OptionTypePut, false},
		{"P", OptionTypePut, false},
		{"straddle", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOptionType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestDaysUntil(t *testing.T) {
	today := time.Date(2026, time.March, 7, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysUntil(today, time.Date(2026, time.March, 7, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, DaysUntil(today, time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 45, DaysUntil(today, time.Date(2026, time.April, 21, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, -2, DaysUntil(today, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)))

	// A local clock time counts by its own calendar date.
	ny := time.FixedZone("EST", -5*3600)
	evening := time.Date(2026, time.March, 7, 22, 0, 0, 0, ny)
	assert.Equal(t, 1, DaysUntil(evening, time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC)))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2027-12-17")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2027, time.December, 17, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("12/17/2027")
	assert.Error(t, err)
}

func TestOptionContract_Greeks(t *testing.T) {
	var c OptionContract
	assert.False(t, c.HasDelta())
	assert.Zero(t, c.Delta())
	assert.Zero(t, c.IV())

	c.Greeks = &Greeks{Delta: -0.42, ImpliedVolatility: 0.31}
	assert.True(t, c.HasDelta())
	assert.Equal(t, -0.42, c.Delta())
	assert.Equal(t, 0.31, c.IV())

	c.Expiration = time.Date(2027, time.January, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2027-01-15", c.ExpirationString())
}

func TestOptionContract_JSONExpiration(t *testing.T) {
	c := OptionContract{
		Symbol:     "AAPL",
		Type:       OptionTypeCall,
		Expiration: time.Date(2027, time.January, 15, 0, 0, 0, 0, time.UTC),
		Strike:     150,
		Ask:        55.9,
		Greeks:     &Greeks{Delta: 0.8},
	}

	raw, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"expiration":"2027-01-15"`)

	var back OptionContract
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, c, back)

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{"date only", `{"expiration":"2027-01-02"}`, time.Date(2027, time.January, 2, 0, 0, 0, 0, time.UTC), false},
		{"rfc3339 keeps the date", `{"expiration":"2027-01-02T15:30:00Z"}`, time.Date(2027, time.January, 2, 0, 0, 0, 0, time.UTC), false},
		{"missing", `{"strike":100}`, time.Time{}, false},
		{"garbage", `{"expiration":"next friday"}`, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got OptionContract
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got.Expiration), "got %v", got.Expiration)
		})
	}
}
