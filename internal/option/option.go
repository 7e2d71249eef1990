// Package option defines the core tradable-instrument types shared by the
// position, engine and strategy packages: option identities, trade actions,
// greeks and the lot-size arithmetic used to size positions.
package option

import (
	"fmt"
	"math"
	"time"
)

// Type distinguishes calls from puts.
type Type string

const (
	Call Type = "CE"
	Put  Type = "PE"
)

// Opposite returns the other side of the pair.
func (t Type) Opposite() Type {
	if t == Call {
		return Put
	}
	return Call
}

func (t Type) String() string {
	return string(t)
}

// Role describes why a leg is held inside a position.
type Role string

const (
	RolePrimary Role = "primary"
	RoleHedge   Role = "hedge"
	RoleTrend   Role = "trend"
)

// Action is the direction of a trade instruction.
type Action int

const (
	Buy Action = iota + 1
	Sell
)

// Num returns +1 for Buy and -1 for Sell, used to sign quantities.
func (a Action) Num() int {
	if a == Buy {
		return 1
	}
	return -1
}

// Opposite returns the squaring-off action.
func (a Action) Opposite() Action {
	if a == Buy {
		return Sell
	}
	return Buy
}

func (a Action) String() string {
	switch a {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Instrument identifies a single option contract. It is a comparable value
// type so it can key maps across package boundaries.
type Instrument struct {
	Underlying string
	Strike     float64
	Expiry     time.Time
	Type       Type
}

func (i Instrument) String() string {
	return fmt.Sprintf("%s %s %.0f %s", i.Underlying, i.Expiry.Format("02Jan06"), i.Strike, i.Type)
}

// Greeks holds the sensitivity snapshot of one option or of a whole position.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	IV    float64 `json:"iv"`
}

// Scale multiplies the greeks by a signed quantity. IV is not scaled; a
// position-weighted IV has no meaning.
func (g Greeks) Scale(qty int) Greeks {
	q := float64(qty)
	return Greeks{
		Delta: g.Delta * q,
		Gamma: g.Gamma * q,
		Theta: g.Theta * q,
		Vega:  g.Vega * q,
		IV:    g.IV,
	}
}

// Add sums two greek snapshots.
func (g Greeks) Add(other Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + other.Delta,
		Gamma: g.Gamma + other.Gamma,
		Theta: g.Theta + other.Theta,
		Vega:  g.Vega + other.Vega,
	}
}

// RoundToLotSize rounds a share quantity to the nearest whole lot.
func RoundToLotSize(shares float64, lotSize int) int {
	if lotSize <= 0 {
		return int(math.Round(shares))
	}
	return lotSize * int(math.Round(shares/float64(lotSize)))
}

// ExposureToQty converts a notional exposure into a share quantity at the
// given spot, rounded to the lot size. At least one lot is returned for a
// positive exposure so a configured strategy always trades.
func ExposureToQty(exposure, spot float64, lotSize int) int {
	if spot <= 0 || exposure <= 0 {
		return 0
	}
	qty := RoundToLotSize(exposure/spot, lotSize)
	if qty < lotSize {
		qty = lotSize
	}
	return qty
}

// FindStrike snaps a price to the nearest listed strike given the strike
// interval of the underlying.
func FindStrike(price, base float64) float64 {
	if base <= 0 {
		return price
	}
	return base * math.Round(price/base)
}

// YearsBetween returns the time between two instants expressed in years,
// the unit used for time-to-expiry throughout the pricing interfaces.
func YearsBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / (365 * 24)
}
