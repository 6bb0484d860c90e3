// Package cryptocompare provides a cached client for the CryptoCompare
// min-api: the coin list with its default watchlist, and daily close history.
package cryptocompare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/modules/timeseries"
)

const (
	defaultBaseURL = "https://min-api.cryptocompare.com"
	// Aggregated index across exchanges.
	defaultExchange = "CCCAGG"
	coinListKey     = "all"
)

// ErrAPI is returned when CryptoCompare answers with an error envelope.
var ErrAPI = errors.New("cryptocompare API error")

// Config holds the client settings.
type Config struct {
	BaseURL string
	APIKey  string // Optional - raises rate limits
	Timeout time.Duration
}

// Client is the CryptoCompare API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
	cacheRepo  *clientdata.Repository
}

// NewClient creates a new CryptoCompare client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(cfg Config, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("client", "cryptocompare").Logger(),
		cacheRepo:  cacheRepo,
	}
}

// Coin is an entry of the coin list.
type Coin struct {
	ID       string `json:"Id"`
	Symbol   string `json:"Symbol"`
	Name     string `json:"Name"`
	CoinName string `json:"CoinName"`
	FullName string `json:"FullName,omitempty"`
}

// CoinList is the parsed /data/all/coinlist payload.
type CoinList struct {
	Coins     map[string]Coin `json:"coins"` // keyed by coin Id
	Watchlist []string        `json:"watchlist"`
}

// Resolve returns the coins with the given ids sorted by Name. Unknown and
// duplicate ids are reported in missing and otherwise ignored.
func (l *CoinList) Resolve(ids []string) (coins []Coin, missing []string) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		coin, ok := l.Coins[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		coins = append(coins, coin)
	}
	sort.SliceStable(coins, func(i, j int) bool {
		return coins[i].Name < coins[j].Name
	})
	return coins, missing
}

type coinListResponse struct {
	Data             map[string]Coin `json:"Data"`
	DefaultWatchlist struct {
		CoinIs string `json:"CoinIs"`
	} `json:"DefaultWatchlist"`
}

// Bar is one daily OHLC bar; Time is the UTC midnight unix timestamp.
type Bar struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type histoDayResponse struct {
	Data []Bar `json:"Data"`
}

type envelope struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
}

// CoinList fetches the coin list with cache.
// If the API fails, returns stale cached data if available (stale data > no data).
func (c *Client) CoinList(ctx context.Context) (*CoinList, error) {
	var cached CoinList
	if c.getFromCache(clientdata.TableCoinList, coinListKey, &cached) {
		c.log.Debug().Int("coins", len(cached.Coins)).Msg("Coin list cache hit")
		return &cached, nil
	}

	var resp coinListResponse
	if err := c.getJSON(ctx, "/data/all/coinlist", nil, &resp); err != nil {
		if c.getStaleFromCache(clientdata.TableCoinList, coinListKey, &cached) {
			c.log.Warn().Err(err).Msg("API failed, using stale cached coin list")
			return &cached, nil
		}
		return nil, err
	}

	list := &CoinList{Coins: make(map[string]Coin, len(resp.Data))}
	for key, coin := range resp.Data {
		if coin.ID == "" {
			coin.ID = key
		}
		list.Coins[coin.ID] = coin
	}
	for _, id := range strings.Split(resp.DefaultWatchlist.CoinIs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			list.Watchlist = append(list.Watchlist, id)
		}
	}

	c.setCache(clientdata.TableCoinList, coinListKey, list, clientdata.TTLCoinList)

	c.log.Info().
		Int("coins", len(list.Coins)).
		Int("watchlist", len(list.Watchlist)).
		Msg("Fetched coin list")

	return list, nil
}

// DailyBars fetches limit+1 daily bars of fsym quoted in tsym, oldest first.
func (c *Client) DailyBars(ctx context.Context, fsym, tsym string, limit int) ([]Bar, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	cacheKey := fmt.Sprintf("%s-%s-%d", fsym, tsym, limit)

	var bars []Bar
	if c.getFromCache(clientdata.TableHistoDay, cacheKey, &bars) {
		c.log.Debug().Str("pair", cacheKey).Msg("History cache hit")
		return bars, nil
	}

	query := url.Values{}
	query.Set("fsym", fsym)
	query.Set("tsym", tsym)
	query.Set("limit", strconv.Itoa(limit))
	query.Set("aggregate", "1")
	query.Set("e", defaultExchange)

	var resp histoDayResponse
	if err := c.getJSON(ctx, "/data/histoday", query, &resp); err != nil {
		if c.getStaleFromCache(clientdata.TableHistoDay, cacheKey, &bars) {
			c.log.Warn().Err(err).Str("pair", cacheKey).Msg("API failed, using stale cached history")
			return bars, nil
		}
		return nil, fmt.Errorf("histoday %s/%s: %w", fsym, tsym, err)
	}

	bars = resp.Data
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time < bars[j].Time })
	c.setCache(clientdata.TableHistoDay, cacheKey, bars, clientdata.TTLHistoDay)

	c.log.Debug().
		Str("fsym", fsym).
		Str("tsym", tsym).
		Int("bars", len(bars)).
		Msg("Fetched daily history")

	return bars, nil
}

// DailyCloses returns the close prices of DailyBars keyed by UTC date. Leading
// zero closes, which CryptoCompare emits for days before a coin was listed, are
// dropped. For a coin listed inside the lookback the series is therefore
// shorter than limit+1 days: its returns, mean and stdDev cover the listed days
// only, rather than counting each pre-listing day as a 0 return.
func (c *Client) DailyCloses(ctx context.Context, fsym, tsym string, limit int) (timeseries.PriceSeries, error) {
	bars, err := c.DailyBars(ctx, fsym, tsym, limit)
	if err != nil {
		return nil, err
	}
	return ClosePrices(bars), nil
}

// ClosePrices converts bars into a price series, skipping the zero-close
// prefix.
func ClosePrices(bars []Bar) timeseries.PriceSeries {
	prices := make(timeseries.PriceSeries, len(bars))
	listed := false
	for _, bar := range bars {
		if !listed && bar.Close == 0 {
			continue
		}
		listed = true
		prices[timeseries.DateFromUnix(bar.Time)] = bar.Close
	}
	return prices
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Apikey "+c.apiKey)
	}

	c.log.Debug().Str("path", path).Str("query", query.Encode()).Msg("Requesting")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if env.Response == "Error" {
		return fmt.Errorf("%w: %s", ErrAPI, env.Message)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) getFromCache(table, key string, out interface{}) bool {
	if c.cacheRepo == nil {
		return false
	}
	data, err := c.cacheRepo.GetIfFresh(table, key)
	if err != nil || data == nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// getStaleFromCache retrieves cached data even if expired.
func (c *Client) getStaleFromCache(table, key string, out interface{}) bool {
	if c.cacheRepo == nil {
		return false
	}
	data, err := c.cacheRepo.Get(table, key)
	if err != nil || data == nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func (c *Client) setCache(table, key string, data interface{}, ttl time.Duration) {
	if c.cacheRepo == nil {
		return
	}
	if err := c.cacheRepo.Store(table, key, data, ttl); err != nil {
		c.log.Warn().Err(err).Str("table", table).Str("key", key).Msg("Failed to cache response")
	}
}
