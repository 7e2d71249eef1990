// Package bybit adapts the Bybit v5 API to the engine's execution and
// market data contracts. Options trade under the unified "option"
// category with symbols like BTC-26SEP25-50000-C.
package bybit

import (
	"encoding/json"
	"fmt"
	"sync"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/quantpulse/strangle-bot/internal/exchange"
)

// Client wraps the Bybit API client behind the engine's interfaces.
type Client struct {
	httpClient *bybit_api.Client
	testnet    bool
	demo       bool

	// Bybit cancel and status calls need the symbol alongside the order
	// id, so remember it per ref.
	mu         sync.Mutex
	refSymbols map[exchange.OrderRef]string
}

// Config holds the connection settings for the Bybit client.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Demo      bool
}

// NewClient creates a new Bybit client.
func NewClient(config Config) *Client {
	var baseURL string
	if config.Demo {
		baseURL = "https://api-demo.bybit.com"
	} else if config.Testnet {
		baseURL = bybit_api.TESTNET
	} else {
		baseURL = bybit_api.MAINNET
	}

	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	return &Client{
		httpClient: httpClient,
		testnet:    config.Testnet,
		demo:       config.Demo,
		refSymbols: make(map[exchange.OrderRef]string),
	}
}

// IsDemo returns whether the client is configured for demo trading.
func (c *Client) IsDemo() bool {
	return c.demo
}

// GetEnvironment returns a string describing the current environment.
func (c *Client) GetEnvironment() string {
	if c.demo {
		return "demo"
	} else if c.testnet {
		return "testnet"
	}
	return "mainnet"
}

func (c *Client) rememberSymbol(ref exchange.OrderRef, symbol string) {
	c.mu.Lock()
	c.refSymbols[ref] = symbol
	c.mu.Unlock()
}

func (c *Client) symbolFor(ref exchange.OrderRef) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.refSymbols[ref]
	return s, ok
}

// resultBytes unwraps a ServerResponse and re-marshals its Result for
// typed decoding.
func resultBytes(response interface{}) ([]byte, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return nil, fmt.Errorf("API error: %s (code: %d)", serverResp.RetMsg, serverResp.RetCode)
	}
	out, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return out, nil
}
