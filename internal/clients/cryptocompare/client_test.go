package cryptocompare

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/modules/timeseries"
)

const coinListBody = `{
	"Response": "Success",
	"Data": {
		"BTC": {"Id": "1182", "Symbol": "BTC", "Name": "BTC", "CoinName": "Bitcoin", "FullName": "Bitcoin (BTC)"},
		"ETH": {"Id": "7605", "Symbol": "ETH", "Name": "ETH", "CoinName": "Ethereum", "FullName": "Ethereum (ETH)"},
		"XMR": {"Id": "5038", "Symbol": "XMR", "Name": "XMR", "CoinName": "Monero", "FullName": "Monero (XMR)"},
		"DASH": {"Id": "3807", "Symbol": "DASH", "Name": "DASH", "CoinName": "Dash", "FullName": "Dash (DASH)"}
	},
	"DefaultWatchlist": {"CoinIs": "1182,7605,5038", "Sponsored": ""}
}`

const histoDayBody = `{
	"Response": "Success",
	"Type": 100,
	"Data": [
		{"time": 1704153600, "open": 0, "high": 0, "low": 0, "close": 0},
		{"time": 1704240000, "open": 100, "high": 110, "low": 95, "close": 105},
		{"time": 1704326400, "open": 105, "high": 120, "low": 100, "close": 115.5},
		{"time": 1704067200, "open": 0, "high": 0, "low": 0, "close": 0}
	]
}`

func newCache(t *testing.T) *clientdata.Repository {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(clientdata.Schema)
	require.NoError(t, err)
	return clientdata.NewRepository(db)
}

func newTestClient(url string, cache *clientdata.Repository) *Client {
	return NewClient(Config{BaseURL: url, APIKey: "secret", Timeout: time.Second}, cache, zerolog.Nop())
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{}, nil, zerolog.Nop())
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, 10*time.Second, c.httpClient.Timeout)
}

func TestCoinList_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/all/coinlist", r.URL.Path)
		assert.Equal(t, "Apikey secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(coinListBody))
	}))
	defer server.Close()

	list, err := newTestClient(server.URL, nil).CoinList(context.Background())
	require.NoError(t, err)

	assert.Len(t, list.Coins, 4)
	assert.Equal(t, []string{"1182", "7605", "5038"}, list.Watchlist)
	assert.Equal(t, "Bitcoin", list.Coins["1182"].CoinName)
}

func TestCoinList_Resolve(t *testing.T) {
	list := &CoinList{
		Coins: map[string]Coin{
			"1182": {ID: "1182", Symbol: "BTC", Name: "BTC"},
			"7605": {ID: "7605", Symbol: "ETH", Name: "ETH"},
			"4432": {ID: "4432", Symbol: "DOGE", Name: "DOGE"},
		},
	}

	coins, missing := list.Resolve([]string{"7605", "1182", "4432", "9999", "1182"})
	require.Len(t, coins, 3)
	assert.Equal(t, "BTC", coins[0].Symbol)
	assert.Equal(t, "DOGE", coins[1].Symbol)
	assert.Equal(t, "ETH", coins[2].Symbol)
	assert.Equal(t, []string{"9999"}, missing)
}

func TestCoinList_CacheFirst(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(coinListBody))
	}))
	defer server.Close()

	client := newTestClient(server.URL, newCache(t))

	_, err := client.CoinList(context.Background())
	require.NoError(t, err)
	list, err := client.CoinList(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Len(t, list.Coins, 4)
}

func TestCoinList_StaleFallback(t *testing.T) {
	cache := newCache(t)
	stale := &CoinList{Coins: map[string]Coin{"1182": {ID: "1182", Name: "BTC"}}, Watchlist: []string{"1182"}}
	require.NoError(t, cache.Store(clientdata.TableCoinList, coinListKey, stale, -time.Hour))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	list, err := newTestClient(server.URL, cache).CoinList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1182"}, list.Watchlist)
}

func TestCoinList_HTTPErrorWithoutCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, nil).CoinList(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestDailyCloses_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/histoday", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "BTC", q.Get("fsym"))
		assert.Equal(t, "USD", q.Get("tsym"))
		assert.Equal(t, "365", q.Get("limit"))
		assert.Equal(t, "1", q.Get("aggregate"))
		assert.Equal(t, "CCCAGG", q.Get("e"))
		_, _ = w.Write([]byte(histoDayBody))
	}))
	defer server.Close()

	prices, err := newTestClient(server.URL, nil).DailyCloses(context.Background(), "BTC", "USD", 365)
	require.NoError(t, err)

	require.Len(t, prices, 2, "leading zero closes are dropped")
	assert.Equal(t, 105.0, prices[timeseries.MustParseDate("2024-01-03")])
	assert.Equal(t, 115.5, prices[timeseries.MustParseDate("2024-01-04")])
}

func TestDailyBars_ErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Response":"Error","Message":"fsym param is invalid","Data":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, nil).DailyBars(context.Background(), "NOPE", "USD", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPI)
	assert.Contains(t, err.Error(), "fsym param is invalid")
}

func TestDailyBars_InvalidLimit(t *testing.T) {
	_, err := newTestClient("http://unused", nil).DailyBars(context.Background(), "BTC", "USD", 0)
	assert.Error(t, err)
}

func TestDailyBars_CachedAndStale(t *testing.T) {
	cache := newCache(t)
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(histoDayBody))
	}))
	defer server.Close()

	client := newTestClient(server.URL, cache)
	bars, err := client.DailyBars(context.Background(), "ETH", "USD", 3)
	require.NoError(t, err)
	require.Len(t, bars, 4)
	assert.Equal(t, int64(1704067200), bars[0].Time, "bars are sorted oldest first")

	// Expire the entry, then make the API fail.
	var data []Bar
	require.True(t, client.getFromCache(clientdata.TableHistoDay, "ETH-USD-3", &data))
	require.NoError(t, cache.Store(clientdata.TableHistoDay, "ETH-USD-3", data, -time.Hour))
	fail.Store(true)

	bars, err = client.DailyBars(context.Background(), "ETH", "USD", 3)
	require.NoError(t, err)
	assert.Len(t, bars, 4)
}

func TestDailyBars_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(histoDayBody))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server.URL, nil).DailyBars(ctx, "BTC", "USD", 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClosePrices_RecentListingShortensSeries(t *testing.T) {
	prices := ClosePrices([]Bar{
		{Time: 1704067200, Close: 0},
		{Time: 1704153600, Close: 0},
		{Time: 1704240000, Close: 4},
		{Time: 1704326400, Close: 5},
	})
	require.Len(t, prices, 2)

	returns, err := timeseries.ComputeReturns(prices)
	require.NoError(t, err)
	assert.Len(t, returns, 1)
	assert.InDelta(t, 0.25, returns[timeseries.MustParseDate("2024-01-04")], 1e-12)
}

func TestClosePrices_KeepsInteriorZeros(t *testing.T) {
	prices := ClosePrices([]Bar{
		{Time: 1704067200, Close: 0},
		{Time: 1704153600, Close: 2},
		{Time: 1704240000, Close: 0},
		{Time: 1704326400, Close: 3},
	})
	assert.Len(t, prices, 3)
	assert.Equal(t, 0.0, prices[timeseries.MustParseDate("2024-01-03")])
}
