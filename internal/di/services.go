package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/clients/cryptocompare"
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/sweep"
	"github.com/aristath/frontier/internal/modules/universe"
)

// InitializeServices creates the repository, client and services on top of
// an initialized database.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) {
	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())

	container.CryptoCompare = cryptocompare.NewClient(cryptocompare.Config{
		BaseURL: cfg.CryptoCompare.BaseURL,
		APIKey:  cfg.CryptoCompare.APIKey,
		Timeout: cfg.Fetch.HTTPTimeout,
	}, container.ClientDataRepo, log)

	container.Loader = universe.NewLoader(
		container.CryptoCompare,
		cfg.CryptoCompare.QuoteCurrency,
		cfg.CryptoCompare.LookbackDays,
		cfg.Fetch.Concurrency,
		log,
	)

	container.Runner = sweep.NewRunner(container.Loader, RunnerConfig(cfg), log)
}

// RunnerConfig maps application configuration onto a sweep runner config.
func RunnerConfig(cfg *config.Config) sweep.RunnerConfig {
	return sweep.RunnerConfig{
		Options: sweep.Options{
			RiskAversions: cfg.Sweep.RiskAversions,
			AllowShort:    cfg.Sweep.AllowShort,
			RewardPolicy:  optimization.RewardPolicy(cfg.Sweep.RewardPolicy),
			Conditioning:  optimization.Conditioning(cfg.Sweep.Conditioning),
		},
		ExtraCoinIDs:         cfg.CryptoCompare.ExtraCoinIDs,
		MaxAssets:            cfg.CryptoCompare.MaxAssets,
		Workers:              cfg.Sweep.Workers,
		CorrelationThreshold: cfg.CorrelationThreshold,
		Timeout:              cfg.Fetch.RunTimeout,
	}
}
