package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	traderrors "github.com/quantpulse/strangle-bot/internal/errors"
	"github.com/quantpulse/strangle-bot/internal/exchange"
	"github.com/quantpulse/strangle-bot/internal/option"
)

const (
	optionCategory = "option"

	fillPollInterval = 250 * time.Millisecond
	fillPollAttempts = 40
)

// orderRecord is the subset of Bybit's order fields the adapter reads.
type orderRecord struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	OrderStatus string `json:"orderStatus"`
	AvgPrice    string `json:"avgPrice"`
	CumExecQty  string `json:"cumExecQty"`
	RejectMsg   string `json:"rejectReason"`
}

// ExecuteInstructions places every leg of the batch and waits for fills.
// Limit-style legs go in as IOC at the last traded price with a market
// sweep for any remainder.
func (c *Client) ExecuteInstructions(ctx context.Context, instructions map[option.Instrument]exchange.Instruction, style exchange.ExecutionStyle) (map[option.Instrument]float64, error) {
	fills := make(map[option.Instrument]float64, len(instructions))
	for inst, in := range instructions {
		avg, err := c.placeAndConfirm(ctx, OptionSymbol(inst), in, style)
		if err != nil {
			return fills, traderrors.Wrap(err, traderrors.ErrorCategoryExecution, "bybit", "execute",
				"order failed for "+inst.String())
		}
		fills[inst] = avg
	}
	return fills, nil
}

func (c *Client) placeAndConfirm(ctx context.Context, symbol string, in exchange.Instruction, style exchange.ExecutionStyle) (float64, error) {
	qty := in.Quantity

	if style == exchange.StyleLimit {
		price, err := c.lastPrice(ctx, optionCategory, symbol)
		if err != nil {
			return 0, err
		}
		orderID, err := c.placeOrder(ctx, map[string]interface{}{
			"category":    optionCategory,
			"symbol":      symbol,
			"side":        bybitSide(in.Action),
			"orderType":   "Limit",
			"qty":         strconv.Itoa(qty),
			"price":       formatPrice(price),
			"timeInForce": "IOC",
			"orderLinkId": in.Tag,
		})
		if err != nil {
			return 0, err
		}
		rec, err := c.waitForTerminal(ctx, symbol, orderID)
		if err != nil {
			return 0, err
		}
		filled := int(parseFloat64(rec.CumExecQty))
		if filled >= qty {
			return parseFloat64(rec.AvgPrice), nil
		}
		// IOC remainder sweeps at market.
		restAvg, err := c.marketFill(ctx, symbol, in, qty-filled)
		if err != nil {
			return 0, err
		}
		if filled == 0 {
			return restAvg, nil
		}
		limitAvg := parseFloat64(rec.AvgPrice)
		return (limitAvg*float64(filled) + restAvg*float64(qty-filled)) / float64(qty), nil
	}

	return c.marketFill(ctx, symbol, in, qty)
}

func (c *Client) marketFill(ctx context.Context, symbol string, in exchange.Instruction, qty int) (float64, error) {
	orderID, err := c.placeOrder(ctx, map[string]interface{}{
		"category":    optionCategory,
		"symbol":      symbol,
		"side":        bybitSide(in.Action),
		"orderType":   "Market",
		"qty":         strconv.Itoa(qty),
		"orderLinkId": in.Tag,
	})
	if err != nil {
		return 0, err
	}
	rec, err := c.waitForTerminal(ctx, symbol, orderID)
	if err != nil {
		return 0, err
	}
	if rec.OrderStatus != "Filled" {
		return 0, fmt.Errorf("market order %s ended %s: %s", orderID, rec.OrderStatus, rec.RejectMsg)
	}
	return parseFloat64(rec.AvgPrice), nil
}

// PlaceProtectiveOrder rests a conditional market order that fires when
// the option trades through the trigger price.
func (c *Client) PlaceProtectiveOrder(ctx context.Context, inst option.Instrument, action option.Action, quantity int, triggerPrice float64, tag string) (exchange.OrderRef, error) {
	symbol := OptionSymbol(inst)
	// A buy-back stop triggers on a rising price, a sell-out stop on a
	// falling one.
	direction := 1
	if action == option.Sell {
		direction = 2
	}
	orderID, err := c.placeOrder(ctx, map[string]interface{}{
		"category":         optionCategory,
		"symbol":           symbol,
		"side":             bybitSide(action),
		"orderType":        "Market",
		"qty":              strconv.Itoa(quantity),
		"triggerPrice":     formatPrice(triggerPrice),
		"triggerDirection": direction,
		"orderLinkId":      tag,
	})
	if err != nil {
		return "", traderrors.Wrap(err, traderrors.ErrorCategoryExecution, "bybit", "protective_order",
			"stop order failed for "+inst.String())
	}
	ref := exchange.OrderRef(orderID)
	c.rememberSymbol(ref, symbol)
	return ref, nil
}

// CancelOrders cancels the given resting orders. Orders already gone at
// the broker are not an error.
func (c *Client) CancelOrders(ctx context.Context, refs ...exchange.OrderRef) error {
	var firstErr error
	for _, ref := range refs {
		symbol, ok := c.symbolFor(ref)
		if !ok {
			continue
		}
		params := map[string]interface{}{
			"category": optionCategory,
			"symbol":   symbol,
			"orderId":  string(ref),
		}
		if _, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx); err != nil && firstErr == nil {
			firstErr = traderrors.Wrap(err, traderrors.ErrorCategoryExecution, "bybit", "cancel",
				"cancel failed for order "+string(ref))
		}
	}
	return firstErr
}

// FetchOrderStatuses polls the given orders, looking at open orders first
// and falling back to history for orders that already finished.
func (c *Client) FetchOrderStatuses(ctx context.Context, refs []exchange.OrderRef) (map[exchange.OrderRef]exchange.OrderState, error) {
	out := make(map[exchange.OrderRef]exchange.OrderState, len(refs))
	for _, ref := range refs {
		symbol, ok := c.symbolFor(ref)
		if !ok {
			return nil, traderrors.Newf(traderrors.ErrorCategoryExecution, "bybit", "order_status",
				"unknown order ref %s", ref)
		}
		rec, err := c.findOrder(ctx, symbol, string(ref))
		if err != nil {
			return nil, traderrors.Wrap(err, traderrors.ErrorCategoryNetwork, "bybit", "order_status",
				"status fetch failed for order "+string(ref))
		}
		out[ref] = exchange.OrderState{
			Status:   mapOrderStatus(rec.OrderStatus),
			AvgPrice: parseFloat64(rec.AvgPrice),
			Reason:   rec.RejectMsg,
		}
	}
	return out, nil
}

func (c *Client) placeOrder(ctx context.Context, params map[string]interface{}) (string, error) {
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to place order: %w", err)
	}
	data, err := resultBytes(result)
	if err != nil {
		return "", err
	}
	var placed struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(data, &placed); err != nil {
		return "", fmt.Errorf("failed to unmarshal order result: %w", err)
	}
	if placed.OrderID == "" {
		return "", fmt.Errorf("no order id in response")
	}
	return placed.OrderID, nil
}

// waitForTerminal polls an order until it leaves the working states or
// the attempt budget runs out.
func (c *Client) waitForTerminal(ctx context.Context, symbol, orderID string) (*orderRecord, error) {
	var rec *orderRecord
	for attempt := 0; attempt < fillPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(fillPollInterval):
		}
		var err error
		rec, err = c.findOrder(ctx, symbol, orderID)
		if err != nil {
			continue
		}
		switch rec.OrderStatus {
		case "Filled", "Cancelled", "Rejected", "Deactivated":
			return rec, nil
		}
	}
	if rec == nil {
		return nil, fmt.Errorf("order %s status unavailable", orderID)
	}
	return rec, nil
}

func (c *Client) findOrder(ctx context.Context, symbol, orderID string) (*orderRecord, error) {
	params := map[string]interface{}{
		"category": optionCategory,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err == nil {
		if rec := firstOrder(result, orderID); rec != nil {
			return rec, nil
		}
	}

	result, err = c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get order status: %w", err)
	}
	if rec := firstOrder(result, orderID); rec != nil {
		return rec, nil
	}
	return nil, fmt.Errorf("order with ID %s not found", orderID)
}

func firstOrder(response interface{}, orderID string) *orderRecord {
	data, err := resultBytes(response)
	if err != nil {
		return nil
	}
	var listResult struct {
		List []orderRecord `json:"list"`
	}
	if err := json.Unmarshal(data, &listResult); err != nil {
		return nil
	}
	for i := range listResult.List {
		if listResult.List[i].OrderID == orderID {
			return &listResult.List[i]
		}
	}
	return nil
}

func bybitSide(a option.Action) string {
	if a == option.Sell {
		return "Sell"
	}
	return "Buy"
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func mapOrderStatus(s string) exchange.OrderStatus {
	switch s {
	case "Untriggered":
		return exchange.StatusTriggerPending
	case "New", "PartiallyFilled", "Triggered":
		return exchange.StatusPending
	case "Filled":
		return exchange.StatusComplete
	case "Cancelled", "Deactivated":
		return exchange.StatusCancelled
	case "Rejected":
		return exchange.StatusRejected
	default:
		return exchange.StatusPending
	}
}
