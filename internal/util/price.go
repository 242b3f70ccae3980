// Package util provides common utility functions for price calculations.
package util

import "math"

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23 or 1.24 depending on rounding.
// A negative tick is treated as its absolute value; a zero tick returns x.
func RoundToTick(x, tick float64) float64 {
	tick = math.Abs(tick)
	if tick == 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// FloorToTick rounds x down to a tick increment.
func FloorToTick(x, tick float64) float64 {
	tick = math.Abs(tick)
	if tick == 0 {
		return x
	}
	q := x / tick
	if r, ok := onTick(q); ok {
		return r * tick
	}
	return math.Floor(q) * tick
}

// CeilToTick rounds x up to a tick increment.
func CeilToTick(x, tick float64) float64 {
	tick = math.Abs(tick)
	if tick == 0 {
		return x
	}
	q := x / tick
	if r, ok := onTick(q); ok {
		return r * tick
	}
	return math.Ceil(q) * tick
}

// onTick reports whether q is a whole number of ticks up to division noise.
func onTick(q float64) (float64, bool) {
	r := math.Round(q)
	return r, math.Abs(q-r) < 1e-14*math.Max(1, math.Abs(q))
}

// StrikeInterval returns the listed strike spacing for an underlying at price.
func StrikeInterval(price float64) float64 {
	switch {
	case price < 25:
		return 0.5
	case price < 50:
		return 1
	case price < 200:
		return 2.5
	case price < 500:
		return 5
	default:
		return 10
	}
}
