package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	traderrors "github.com/quantpulse/strangle-bot/internal/errors"
	"github.com/quantpulse/strangle-bot/internal/option"
)

// SpotPrice returns the latest traded price of the underlying's USDT pair.
func (c *Client) SpotPrice(ctx context.Context, underlying string) (float64, error) {
	price, err := c.lastPrice(ctx, "spot", SpotSymbol(underlying))
	if err != nil {
		return 0, traderrors.Wrap(err, traderrors.ErrorCategoryNetwork, "bybit", "spot_price",
			"ticker fetch failed for "+underlying)
	}
	return price, nil
}

// OptionPrice returns the latest traded price of the option contract.
func (c *Client) OptionPrice(ctx context.Context, inst option.Instrument) (float64, error) {
	price, err := c.lastPrice(ctx, "option", OptionSymbol(inst))
	if err != nil {
		return 0, traderrors.Wrap(err, traderrors.ErrorCategoryNetwork, "bybit", "option_price",
			"ticker fetch failed for "+inst.String())
	}
	return price, nil
}

func (c *Client) lastPrice(ctx context.Context, category, symbol string) (float64, error) {
	params := map[string]interface{}{
		"category": category,
		"symbol":   symbol,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest price: %w", err)
	}
	return parseLastPrice(result)
}

func parseLastPrice(response interface{}) (float64, error) {
	data, err := resultBytes(response)
	if err != nil {
		return 0, err
	}

	var tickerResult struct {
		Category string `json:"category"`
		List     []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
			MarkPrice string `json:"markPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(data, &tickerResult); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ticker result: %w", err)
	}
	if len(tickerResult.List) == 0 {
		return 0, fmt.Errorf("no ticker data found")
	}

	t := tickerResult.List[0]
	price := parseFloat64(t.LastPrice)
	if price == 0 {
		// Illiquid option contracts may not have traded yet; fall back
		// to the mark price.
		price = parseFloat64(t.MarkPrice)
	}
	if price == 0 {
		return 0, fmt.Errorf("no price for %s", t.Symbol)
	}
	return price, nil
}

func parseFloat64(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
