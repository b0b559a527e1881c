// Package price converts ether amounts to a fiat currency for display.
// Quotes come from a CoinGecko-compatible simple price endpoint.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"splitledger/internal/cache"
	"splitledger/internal/core"
	"splitledger/internal/metrics"
)

// DefaultBaseURL is the public CoinGecko API.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

const coinID = "ethereum"

// ErrNoQuote is returned when the response carries no price for the currency.
var ErrNoQuote = errors.New("no price quote for currency")

// Oracle returns the price of one ether in a fiat currency.
type Oracle interface {
	EtherPrice(ctx context.Context, fiat string) (decimal.Decimal, error)
}

// Config holds configuration for the price client
type Config struct {
	BaseURL  string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:  DefaultBaseURL,
		CacheTTL: time.Minute,
		Timeout:  10 * time.Second,
	}
}

// Client fetches ether quotes and caches them per currency.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.LRUCache[decimal.Decimal]
	logger     *slog.Logger
}

var _ Oracle = (*Client)(nil)

// NewClient creates a price client. Zero config fields take their defaults.
func NewClient(config Config, logger *slog.Logger) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		cache:      cache.NewLRUCache[decimal.Decimal](16, config.CacheTTL),
		logger:     logger,
	}
}

// EtherPrice returns the price of one ether in fiat (e.g. "inr", "usd").
func (c *Client) EtherPrice(ctx context.Context, fiat string) (decimal.Decimal, error) {
	fiat = strings.ToLower(strings.TrimSpace(fiat))
	if fiat == "" {
		return decimal.Zero, fmt.Errorf("%w: empty currency", ErrNoQuote)
	}
	if v, ok := c.cache.Get(fiat); ok {
		metrics.RecordPriceCache(true)
		return v, nil
	}
	metrics.RecordPriceCache(false)

	q := url.Values{}
	q.Set("ids", coinID)
	q.Set("vs_currencies", fiat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price API returned status %d", resp.StatusCode)
	}

	var body map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price response: %w", err)
	}
	v, ok := body[coinID][fiat]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoQuote, fiat)
	}

	c.cache.Set(fiat, v)
	c.logger.DebugContext(ctx, "Fetched ether price", "fiat", fiat, "price", v.String())
	return v, nil
}

// ToFiat converts wei to fiat using the oracle's current quote.
func ToFiat(ctx context.Context, o Oracle, wei *big.Int, fiat string) (decimal.Decimal, error) {
	rate, err := o.EtherPrice(ctx, fiat)
	if err != nil {
		return decimal.Zero, err
	}
	return core.EtherDecimal(wei).Mul(rate), nil
}
