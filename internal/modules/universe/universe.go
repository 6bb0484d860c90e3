// Package universe selects the assets of a run and loads their return series.
package universe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/frontier/internal/clients/cryptocompare"
	"github.com/aristath/frontier/internal/modules/timeseries"
)

// ErrEmptyUniverse is returned when no asset could be selected or loaded.
var ErrEmptyUniverse = errors.New("empty asset universe")

// Asset identifies one coin of the universe.
type Asset struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	DisplayName string `json:"display_name"`
}

// PriceSource is the data provider used by the loader.
type PriceSource interface {
	CoinList(ctx context.Context) (*cryptocompare.CoinList, error)
	DailyCloses(ctx context.Context, fsym, tsym string, limit int) (timeseries.PriceSeries, error)
}

// Select resolves the default watchlist plus extraIDs against the coin list,
// sorted by coin name and truncated to maxAssets when positive.
func Select(list *cryptocompare.CoinList, extraIDs []string, maxAssets int) ([]Asset, []string) {
	ids := make([]string, 0, len(list.Watchlist)+len(extraIDs))
	ids = append(ids, list.Watchlist...)
	ids = append(ids, extraIDs...)

	coins, missing := list.Resolve(ids)
	if maxAssets > 0 && len(coins) > maxAssets {
		coins = coins[:maxAssets]
	}

	assets := make([]Asset, len(coins))
	for i, coin := range coins {
		assets[i] = Asset{ID: coin.ID, Symbol: coin.Symbol, DisplayName: coin.CoinName}
	}
	return assets, missing
}

// Loaded is an asset whose history was fetched and converted to returns.
type Loaded struct {
	Asset   Asset
	Prices  timeseries.PriceSeries
	Returns *timeseries.TimeSeries
}

// Failure records an asset skipped during loading.
type Failure struct {
	Asset Asset  `json:"asset"`
	Error string `json:"error"`
}

// Result holds the loaded assets in universe order.
type Result struct {
	Loaded   []Loaded
	Failures []Failure
}

// Series returns the return series of every loaded asset.
func (r *Result) Series() []*timeseries.TimeSeries {
	out := make([]*timeseries.TimeSeries, len(r.Loaded))
	for i, l := range r.Loaded {
		out[i] = l.Returns
	}
	return out
}

// Loader fetches price history for a universe with bounded concurrency.
type Loader struct {
	source      PriceSource
	quote       string
	lookback    int
	concurrency int
	log         zerolog.Logger
}

// NewLoader creates a loader quoting every asset in quote over lookback days.
func NewLoader(source PriceSource, quote string, lookback, concurrency int, log zerolog.Logger) *Loader {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Loader{
		source:      source,
		quote:       quote,
		lookback:    lookback,
		concurrency: concurrency,
		log:         log.With().Str("component", "universe_loader").Logger(),
	}
}

// Universe fetches the coin list and selects the assets of a run.
func (l *Loader) Universe(ctx context.Context, extraIDs []string, maxAssets int) ([]Asset, error) {
	list, err := l.source.CoinList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch coin list: %w", err)
	}
	assets, missing := Select(list, extraIDs, maxAssets)
	for _, id := range missing {
		l.log.Warn().Str("coin_id", id).Msg("Coin id not found in coin list")
	}
	if len(assets) == 0 {
		return nil, ErrEmptyUniverse
	}
	return assets, nil
}

// Load fetches every asset concurrently. A failing asset is logged and
// skipped; only context cancellation aborts the load. progress, if not nil, is
// called after each asset completes.
func (l *Loader) Load(ctx context.Context, assets []Asset, progress func(done, total int)) (*Result, error) {
	slots := make([]*Loaded, len(assets))
	failures := make([]*Failure, len(assets))
	var done int32
	var progressMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for i, asset := range assets {
		i, asset := i, asset
		g.Go(func() error {
			loaded, err := l.loadOne(gctx, asset)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				l.log.Warn().
					Str("symbol", asset.Symbol).
					Err(err).
					Msg("Skipping asset")
				failures[i] = &Failure{Asset: asset, Error: err.Error()}
			} else {
				slots[i] = loaded
			}
			if progress != nil {
				n := int(atomic.AddInt32(&done, 1))
				progressMu.Lock()
				progress(n, len(assets))
				progressMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{}
	for i := range assets {
		if slots[i] != nil {
			result.Loaded = append(result.Loaded, *slots[i])
		}
		if failures[i] != nil {
			result.Failures = append(result.Failures, *failures[i])
		}
	}

	l.log.Info().
		Int("loaded", len(result.Loaded)).
		Int("failed", len(result.Failures)).
		Msg("Loaded price history")

	if len(result.Loaded) == 0 {
		return result, ErrEmptyUniverse
	}
	return result, nil
}

func (l *Loader) loadOne(ctx context.Context, asset Asset) (*Loaded, error) {
	prices, err := l.source.DailyCloses(ctx, asset.Symbol, l.quote, l.lookback)
	if err != nil {
		return nil, err
	}
	returns, err := timeseries.ComputeReturns(prices)
	if err != nil {
		return nil, err
	}
	series, err := timeseries.FromReturns(asset.Symbol, returns)
	if err != nil {
		return nil, err
	}
	return &Loaded{Asset: asset, Prices: prices, Returns: series}, nil
}
