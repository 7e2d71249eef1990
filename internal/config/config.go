package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	traderrors "github.com/quantpulse/strangle-bot/internal/errors"
)

// BotConfig is the complete configuration for one trading session: the
// session parameters, the exchange connection, and one block per strategy
// that should run. Omitted strategy blocks are not traded.
type BotConfig struct {
	Session  SessionConfig  `json:"session"`
	Exchange ExchangeConfig `json:"exchange"`

	Strangle   *StrangleConfig   `json:"strangle,omitempty"`
	Ladder     *LadderConfig     `json:"ladder,omitempty"`
	DeltaHedge *DeltaHedgeConfig `json:"delta_hedge,omitempty"`
	Trend      *TrendConfig      `json:"trend,omitempty"`
	Regime     *RegimeConfig     `json:"regime,omitempty"`

	Notifications *NotificationConfig `json:"notifications,omitempty"`
	Monitoring    MonitoringConfig    `json:"monitoring"`
}

// SessionConfig holds the parameters shared by every strategy in the run.
type SessionConfig struct {
	Underlying string  `json:"underlying"`  // e.g. NIFTY or BTC
	Expiry     string  `json:"expiry"`      // contract expiry date, YYYY-MM-DD
	LotSize    int     `json:"lot_size"`    // shares per lot
	StrikeBase float64 `json:"strike_base"` // strike grid spacing

	ExitTime string `json:"exit_time"` // HH:MM wall clock, session timezone
	Timezone string `json:"timezone"`

	PollIntervalSeconds int     `json:"poll_interval_seconds"`
	SecondsToAverage    float64 `json:"seconds_to_average"`
}

// ExchangeConfig holds the broker connection. Credentials come from the
// environment, never the config file.
type ExchangeConfig struct {
	Name    string `json:"name"` // bybit or paper
	Demo    bool   `json:"demo"`
	Testnet bool   `json:"testnet"`

	APIKey    string `json:"-"`
	APISecret string `json:"-"`
}

// StrangleConfig configures the intraday short strangle.
type StrangleConfig struct {
	StrategyTag  string  `json:"strategy_tag"`
	Exposure     float64 `json:"exposure"`
	QuantityLots int     `json:"quantity_lots"`

	CallStrikeOffset float64 `json:"call_strike_offset"`
	PutStrikeOffset  float64 `json:"put_strike_offset"`

	StopLoss         float64 `json:"stop_loss"`
	CallStopLoss     float64 `json:"call_stop_loss"`
	PutStopLoss      float64 `json:"put_stop_loss"`
	CombinedStopLoss float64 `json:"combined_stop_loss"`
	TakeProfit       float64 `json:"take_profit"`

	PlaceSLOrders   bool `json:"place_sl_orders"`
	PlaceOrdersOnSL bool `json:"place_orders_on_sl"`
	MoveSLToCost    bool `json:"move_sl_to_cost"`

	CatchTrend         bool    `json:"catch_trend"`
	TrendQtyRatio      float64 `json:"trend_qty_ratio"`
	PlaceTrendSLOrders bool    `json:"place_trend_sl_orders"`

	ConvertToButterfly     bool    `json:"convert_to_butterfly"`
	ConversionMethod       string  `json:"conversion_method"`
	ConversionThresholdPct float64 `json:"conversion_threshold_pct"`
	ConversionCutoff       string  `json:"conversion_cutoff"` // HH:MM
}

// LadderConfig configures the reentry-ladder strangle.
type LadderConfig struct {
	StrategyTag string  `json:"strategy_tag"`
	Exposure    float64 `json:"exposure"`

	StopLoss     float64 `json:"stop_loss"`
	CallStopLoss float64 `json:"call_stop_loss"`
	PutStopLoss  float64 `json:"put_stop_loss"`

	StrikeOffset     float64 `json:"strike_offset"`
	CallStrikeOffset float64 `json:"call_strike_offset"`
	PutStrikeOffset  float64 `json:"put_strike_offset"`

	Reentries     int `json:"reentries"`
	CallReentries int `json:"call_reentries"`
	PutReentries  int `json:"put_reentries"`

	Hedged      bool    `json:"hedged"`
	HedgeOffset float64 `json:"hedge_offset"`

	MoveOtherToCost bool `json:"move_other_to_cost"`
	AdjustStopLoss  bool `json:"adjust_stop_loss"`
	AtMarket        bool `json:"at_market"`
}

// DeltaHedgeConfig configures the delta-hedged strangle.
type DeltaHedgeConfig struct {
	StrategyTag string  `json:"strategy_tag"`
	Exposure    float64 `json:"exposure"`

	DeltaThresholdPct float64 `json:"delta_threshold_pct"`
	IntervalMinutes   int     `json:"interval_minutes"`
	Interrupt         bool    `json:"interrupt"`
	HandleSpikes      bool    `json:"handle_spikes"`
	AtMarket          bool    `json:"at_market"`
}

// TrendConfig configures the trend follower.
type TrendConfig struct {
	StrategyTag string  `json:"strategy_tag"`
	Exposure    float64 `json:"exposure"`

	ThresholdMovement float64 `json:"threshold_movement"`
	VolReference      float64 `json:"vol_reference"`
	Beta              float64 `json:"beta"`

	StopLoss    float64 `json:"stop_loss"`
	TargetDelta float64 `json:"target_delta"`
	MaxEntries  int     `json:"max_entries"`
	AtMarket    bool    `json:"at_market"`
}

// RegimeConfig configures the regime switcher.
type RegimeConfig struct {
	StrategyTag string  `json:"strategy_tag"`
	Exposure    float64 `json:"exposure"`

	StopLoss    float64 `json:"stop_loss"`
	Reentries   int     `json:"reentries"`
	TargetDelta float64 `json:"target_delta"`

	MorningCutoff    string  `json:"morning_cutoff"` // HH:MM
	ProfitCapturePct float64 `json:"profit_capture_pct"`
	ThetaCutoffPct   float64 `json:"theta_cutoff_pct"`
	AtMarket         bool    `json:"at_market"`
}

// NotificationConfig holds the Telegram settings. Token comes from the
// environment.
type NotificationConfig struct {
	Enabled      bool   `json:"enabled"`
	TelegramChat string `json:"telegram_chat,omitempty"`

	TelegramToken string `json:"-"`
}

// MonitoringConfig holds the metrics and health endpoints.
type MonitoringConfig struct {
	MetricsPort int `json:"metrics_port"`
	HealthPort  int `json:"health_port"`
}

// Load reads a JSON config, fills credentials from the environment, and
// applies defaults and validation. A bare name resolves under configs/.
func Load(configFile string) (*BotConfig, error) {
	if !strings.ContainsAny(configFile, "/\\") {
		configFile = filepath.Join("configs", configFile)
	}
	if !strings.HasSuffix(configFile, ".json") {
		configFile += ".json"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, traderrors.Wrap(err, traderrors.ErrorCategoryConfig, "config", "load",
			"read config file "+configFile)
	}

	var cfg BotConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, traderrors.Wrap(err, traderrors.ErrorCategoryConfig, "config", "load",
			"parse config file "+configFile)
	}

	cfg.Exchange.APIKey = os.Getenv("BYBIT_API_KEY")
	cfg.Exchange.APISecret = os.Getenv("BYBIT_API_SECRET")
	if cfg.Notifications != nil {
		cfg.Notifications.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
		if chat := os.Getenv("TELEGRAM_CHAT_ID"); chat != "" {
			cfg.Notifications.TelegramChat = chat
		}
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *BotConfig) setDefaults() {
	if c.Session.Timezone == "" {
		c.Session.Timezone = "Asia/Kolkata"
	}
	if c.Session.ExitTime == "" {
		c.Session.ExitTime = "15:12"
	}
	if c.Session.PollIntervalSeconds == 0 {
		c.Session.PollIntervalSeconds = 1
	}
	if c.Session.SecondsToAverage == 0 {
		c.Session.SecondsToAverage = 45
	}
	if c.Exchange.Name == "" {
		c.Exchange.Name = "bybit"
	}
	if c.Monitoring.MetricsPort == 0 {
		c.Monitoring.MetricsPort = 8080
	}
	if c.Monitoring.HealthPort == 0 {
		c.Monitoring.HealthPort = 8081
	}

	if c.Strangle != nil && c.Strangle.StrategyTag == "" {
		c.Strangle.StrategyTag = "strangle"
	}
	if c.Ladder != nil && c.Ladder.StrategyTag == "" {
		c.Ladder.StrategyTag = "ladder"
	}
	if c.DeltaHedge != nil && c.DeltaHedge.StrategyTag == "" {
		c.DeltaHedge.StrategyTag = "delta-hedge"
	}
	if c.Trend != nil && c.Trend.StrategyTag == "" {
		c.Trend.StrategyTag = "trend"
	}
	if c.Regime != nil && c.Regime.StrategyTag == "" {
		c.Regime.StrategyTag = "regime"
	}
}

// Validate checks the parts every run needs. Per-strategy validation
// happens when the strategy itself starts.
func (c *BotConfig) Validate() error {
	fail := func(msg string) error {
		return traderrors.New(traderrors.ErrorCategoryConfig, "config", "validate", msg)
	}
	if c.Session.Underlying == "" {
		return fail("session.underlying is required")
	}
	if c.Session.LotSize <= 0 {
		return fail("session.lot_size must be positive")
	}
	if c.Session.StrikeBase <= 0 {
		return fail("session.strike_base must be positive")
	}
	if _, err := c.ExpiryDate(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := parseWallClock(c.Session.ExitTime); err != nil {
		return fail("session.exit_time must be HH:MM")
	}
	if c.Strangle != nil && c.Strangle.ConversionCutoff != "" {
		if _, err := parseWallClock(c.Strangle.ConversionCutoff); err != nil {
			return fail("strangle.conversion_cutoff must be HH:MM")
		}
	}
	if c.Regime != nil && c.Regime.MorningCutoff != "" {
		if _, err := parseWallClock(c.Regime.MorningCutoff); err != nil {
			return fail("regime.morning_cutoff must be HH:MM")
		}
	}
	switch c.Exchange.Name {
	case "bybit", "paper":
	default:
		return fail("exchange.name must be bybit or paper")
	}
	if c.Strangle == nil && c.Ladder == nil && c.DeltaHedge == nil &&
		c.Trend == nil && c.Regime == nil {
		return fail("no strategy configured")
	}
	return nil
}

// Location resolves the session timezone.
func (c *BotConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		return nil, traderrors.Wrap(err, traderrors.ErrorCategoryConfig, "config", "validate",
			"unknown timezone "+c.Session.Timezone)
	}
	return loc, nil
}

// ExpiryDate parses the contract expiry in the session timezone.
func (c *BotConfig) ExpiryDate() (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation("2006-01-02", c.Session.Expiry, loc)
	if err != nil {
		return time.Time{}, traderrors.Wrap(err, traderrors.ErrorCategoryConfig, "config", "validate",
			"session.expiry must be YYYY-MM-DD")
	}
	// Options settle at the session close on expiry day.
	return t.Add(15*time.Hour + 30*time.Minute), nil
}

// SessionExitTime anchors the configured exit wall clock on the given day.
func (c *BotConfig) SessionExitTime(day time.Time) (time.Time, error) {
	return c.atWallClock(day, c.Session.ExitTime)
}

func (c *BotConfig) atWallClock(day time.Time, hhmm string) (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	hm, err := parseWallClock(hhmm)
	if err != nil {
		return time.Time{}, traderrors.Wrap(err, traderrors.ErrorCategoryConfig, "config", "validate",
			"wall clock must be HH:MM")
	}
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), hm.hour, hm.minute, 0, 0, loc), nil
}

// WallClock anchors an arbitrary HH:MM on the given day, for per-strategy
// cutoffs.
func (c *BotConfig) WallClock(day time.Time, hhmm string) (time.Time, error) {
	return c.atWallClock(day, hhmm)
}

type wallClock struct {
	hour, minute int
}

func parseWallClock(hhmm string) (wallClock, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return wallClock{}, err
	}
	return wallClock{hour: t.Hour(), minute: t.Minute()}, nil
}

// PollInterval returns the session poll interval as a duration.
func (c *BotConfig) PollInterval() time.Duration {
	return time.Duration(c.Session.PollIntervalSeconds) * time.Second
}
