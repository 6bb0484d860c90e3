package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/timeseries"
	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/aristath/frontier/internal/utils"
	"github.com/aristath/frontier/pkg/formulas"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("a sweep is already running")

const volatilityWindow = 30

// Loader is the part of universe.Loader used by the runner.
type Loader interface {
	Universe(ctx context.Context, extraIDs []string, maxAssets int) ([]universe.Asset, error)
	Load(ctx context.Context, assets []universe.Asset, progress func(done, total int)) (*universe.Result, error)
}

// RunnerConfig holds the per-run settings.
type RunnerConfig struct {
	Options              Options
	ExtraCoinIDs         []string
	MaxAssets            int
	Workers              int
	CorrelationThreshold float64
	Timeout              time.Duration
}

// Progress receives fetch progress. Implementations must be safe for
// concurrent use.
type Progress func(done, total int)

// Runner executes full runs (fetch, model, sweep) and keeps the latest
// frontier. Runs are serialised.
type Runner struct {
	loader    Loader
	builder   *optimization.RiskModelBuilder
	optimizer *optimization.MVOptimizer
	pool      *WorkerPool
	cfg       RunnerConfig
	log       zerolog.Logger

	running atomic.Bool
	mu      sync.RWMutex
	latest  *Frontier
}

// NewRunner creates a runner.
func NewRunner(loader Loader, cfg RunnerConfig, log zerolog.Logger) *Runner {
	if cfg.CorrelationThreshold <= 0 {
		cfg.CorrelationThreshold = optimization.DefaultHighCorrelationThreshold
	}
	return &Runner{
		loader:    loader,
		builder:   optimization.NewRiskModelBuilder(log),
		optimizer: optimization.NewMVOptimizer(cfg.Options.Conditioning, log),
		pool:      NewWorkerPool(cfg.Workers),
		cfg:       cfg,
		log:       log.With().Str("component", "sweep_runner").Logger(),
	}
}

// Latest returns the most recent frontier, or nil before the first run.
func (r *Runner) Latest() *Frontier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Run performs a full run. progress may be nil.
func (r *Runner) Run(ctx context.Context, progress Progress) (*Frontier, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)
	return r.run(ctx, progress)
}

// Start launches a run in the background. It returns ErrRunInProgress
// immediately if a run is already active; errors of the background run are
// logged.
func (r *Runner) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	go func() {
		defer r.running.Store(false)
		if _, err := r.run(ctx, nil); err != nil {
			r.log.Error().Err(err).Msg("Background sweep run failed")
		}
	}()
	return nil
}

func (r *Runner) run(ctx context.Context, progress Progress) (*Frontier, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	runID := uuid.New().String()
	log := r.log.With().Str("run_id", runID).Logger()
	log.Info().Msg("Starting sweep run")

	fetch := utils.NewTimer("fetch_prices", log)
	assets, err := r.loader.Universe(ctx, r.cfg.ExtraCoinIDs, r.cfg.MaxAssets)
	if err != nil {
		return nil, err
	}

	loaded, err := r.loader.Load(ctx, assets, progress)
	if err != nil {
		return nil, err
	}
	fetch.Stop()

	frontier, err := r.Compute(ctx, loaded)
	if err != nil {
		return nil, err
	}
	frontier.RunID = runID
	frontier.CreatedAt = start.UTC()
	frontier.Duration = time.Since(start)

	r.mu.Lock()
	r.latest = frontier
	r.mu.Unlock()

	log.Info().
		Int("assets", len(frontier.Assets)).
		Int("points", len(frontier.Points)).
		Int("solved", len(frontier.Solved())).
		Dur("duration", frontier.Duration).
		Msg("Sweep run completed")

	return frontier, nil
}

// Compute builds the risk model from loaded assets and sweeps it.
func (r *Runner) Compute(ctx context.Context, loaded *universe.Result) (*Frontier, error) {
	defer utils.OperationTimer("compute_frontier", r.log)()

	byName := make(map[string]universe.Loaded, len(loaded.Loaded))
	for _, l := range loaded.Loaded {
		byName[l.Returns.Name()] = l
	}

	usable, rejected := r.builder.SelectUsable(loaded.Series())
	if len(usable) == 0 {
		return nil, fmt.Errorf("no usable series: %w", universe.ErrEmptyUniverse)
	}

	model, err := r.builder.BuildRiskModel(usable)
	if err != nil {
		return nil, err
	}
	reward, err := model.Reward(r.cfg.Options.RewardPolicy)
	if err != nil {
		return nil, err
	}

	points := Sweep(ctx, model, reward, r.cfg.Options, r.optimizer, r.pool)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assets := make([]AssetStats, model.Size())
	for i, name := range model.Names {
		l := byName[name]
		closes := sortedCloses(l.Prices)
		assets[i] = AssetStats{
			Asset:        l.Asset,
			Observations: l.Returns.Len(),
			Mean:         model.Means[i],
			StdDev:       model.StdDevs[i],
			Volatility:   formulas.TrailingVolatility(l.Returns.Values(), volatilityWindow),
			CAGR:         formulas.CalculateCAGR(closes),
		}
	}

	return &Frontier{
		Options:          r.cfg.Options,
		Assets:           assets,
		Correlation:      model.MatrixRows(),
		HighCorrelations: model.HighCorrelations(r.cfg.CorrelationThreshold),
		Points:           points,
		Rejected:         rejected,
		Failures:         loaded.Failures,
	}, nil
}

func sortedCloses(prices timeseries.PriceSeries) []float64 {
	dates := prices.Dates()
	out := make([]float64, len(dates))
	for i, d := range dates {
		out[i] = prices[d]
	}
	return out
}
