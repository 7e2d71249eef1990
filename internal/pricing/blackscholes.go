package pricing

import (
	"math"

	traderrors "github.com/quantpulse/strangle-bot/internal/errors"
	"github.com/quantpulse/strangle-bot/internal/option"
)

const (
	// DefaultRiskFreeRate is the annualized rate used when none is given.
	DefaultRiskFreeRate = 0.06

	// minSimulatedPrice is the floor applied to simulated theoretical
	// prices so a deep OTM option never justifies against a zero.
	minSimulatedPrice = 0.05

	minutesPerYear = 365.0 * 24 * 60
)

// BlackScholes is the default Model.
type BlackScholes struct {
	RiskFreeRate float64
}

// NewBlackScholes returns a model with the default risk-free rate.
func NewBlackScholes() *BlackScholes {
	return &BlackScholes{RiskFreeRate: DefaultRiskFreeRate}
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func (m *BlackScholes) d1d2(spot, strike, tte, iv float64) (float64, float64) {
	d1 := (math.Log(spot/strike) + (m.RiskFreeRate+iv*iv/2)*tte) / (iv * math.Sqrt(tte))
	return d1, d1 - iv*math.Sqrt(tte)
}

// Price returns the Black-Scholes price of a European option.
func (m *BlackScholes) Price(optType option.Type, spot, strike, tte, iv float64) float64 {
	if tte <= 0 {
		return intrinsic(optType, spot, strike)
	}
	d1, d2 := m.d1d2(spot, strike, tte, iv)
	disc := math.Exp(-m.RiskFreeRate * tte)
	if optType == option.Call {
		return spot*normCDF(d1) - strike*disc*normCDF(d2)
	}
	return strike*disc*normCDF(-d2) - spot*normCDF(-d1)
}

func intrinsic(optType option.Type, spot, strike float64) float64 {
	if optType == option.Call {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}

// ImpliedVol solves for the vol that reproduces price, by bisection.
// Returns a PRICING error when the price is below intrinsic value or the
// other inputs make a solution impossible.
func (m *BlackScholes) ImpliedVol(optType option.Type, spot, strike, tte, price float64) (float64, error) {
	if spot <= 0 || strike <= 0 || tte <= 0 || price <= 0 {
		return 0, traderrors.Newf(traderrors.ErrorCategoryPricing, "pricing", "implied_vol",
			"invalid inputs: spot=%.2f strike=%.2f tte=%.6f price=%.2f", spot, strike, tte, price)
	}
	if price < intrinsic(optType, spot, strike) {
		return 0, traderrors.Newf(traderrors.ErrorCategoryPricing, "pricing", "implied_vol",
			"price %.2f below intrinsic value %.2f for %s %.0f", price, intrinsic(optType, spot, strike), optType, strike)
	}
	lo, hi := 1e-4, 5.0
	if m.Price(optType, spot, strike, tte, hi) < price {
		return 0, traderrors.Newf(traderrors.ErrorCategoryPricing, "pricing", "implied_vol",
			"no vol under %.0f%% reproduces price %.2f", hi*100, price)
	}
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2
		if m.Price(optType, spot, strike, tte, mid) < price {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}

// StrangleIV computes per-wing implied vols and their average. When only one
// wing solves, its vol stands in for the average so the caller still gets a
// usable number.
func (m *BlackScholes) StrangleIV(callPrice, putPrice, callStrike, putStrike, spot, tte float64) (float64, float64, float64, error) {
	callIV, callErr := m.ImpliedVol(option.Call, spot, callStrike, tte, callPrice)
	putIV, putErr := m.ImpliedVol(option.Put, spot, putStrike, tte, putPrice)
	switch {
	case callErr == nil && putErr == nil:
		return callIV, putIV, (callIV + putIV) / 2, nil
	case callErr == nil:
		return callIV, 0, callIV, nil
	case putErr == nil:
		return 0, putIV, putIV, nil
	default:
		return 0, 0, 0, traderrors.Wrap(callErr, traderrors.ErrorCategoryPricing, "pricing", "strangle_iv",
			"neither wing produced an implied vol")
	}
}

// OptionGreeks derives the greeks for one option from its market price.
// Theta is per calendar day and vega per vol point.
func (m *BlackScholes) OptionGreeks(inst option.Instrument, spot, price, tte float64) (option.Greeks, error) {
	iv, err := m.ImpliedVol(inst.Type, spot, inst.Strike, tte, price)
	if err != nil {
		return option.Greeks{}, err
	}
	d1, d2 := m.d1d2(spot, inst.Strike, tte, iv)
	disc := math.Exp(-m.RiskFreeRate * tte)
	g := option.Greeks{
		Gamma: normPDF(d1) / (spot * iv * math.Sqrt(tte)),
		Vega:  spot * normPDF(d1) * math.Sqrt(tte) / 100,
		IV:    iv,
	}
	common := -spot * normPDF(d1) * iv / (2 * math.Sqrt(tte))
	if inst.Type == option.Call {
		g.Delta = normCDF(d1)
		g.Theta = (common - m.RiskFreeRate*inst.Strike*disc*normCDF(d2)) / 365
	} else {
		g.Delta = normCDF(d1) - 1
		g.Theta = (common + m.RiskFreeRate*inst.Strike*disc*normCDF(-d2)) / 365
	}
	return g, nil
}

// SimulatePrice re-prices the option at the new underlying level with the
// entry-time implied vol and the decayed time to expiry. The result is never
// below the floor.
func (m *BlackScholes) SimulatePrice(sim Simulation) (float64, error) {
	if sim.NewSpot <= 0 || sim.Strike <= 0 || sim.EntryIV <= 0 {
		return 0, traderrors.Newf(traderrors.ErrorCategoryPricing, "pricing", "simulate_price",
			"invalid simulation inputs: spot=%.2f strike=%.2f iv=%.4f", sim.NewSpot, sim.Strike, sim.EntryIV)
	}
	tte := sim.EntryTTE - sim.ElapsedMin/minutesPerYear
	if tte < 0 {
		tte = 0
	}
	floor := sim.MinimumPrice
	if floor <= 0 {
		floor = minSimulatedPrice
	}
	price := m.Price(sim.Type, sim.NewSpot, sim.Strike, tte, sim.EntryIV)
	return math.Max(price, floor), nil
}
