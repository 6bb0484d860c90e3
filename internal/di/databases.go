package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/database"
)

// InitializeDatabases opens the response cache and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// client_data.db - API response cache, safe to delete
	clientDataDB, err := database.New(database.Config{
		Path:    cfg.CachePath(),
		Profile: database.ProfileCache,
		Name:    "client_data",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize client_data database: %w", err)
	}

	if err := clientDataDB.Migrate(clientdata.Schema); err != nil {
		clientDataDB.Close()
		return nil, fmt.Errorf("failed to migrate client_data database: %w", err)
	}
	container.ClientDataDB = clientDataDB

	log.Info().Str("path", clientDataDB.Path()).Msg("Database initialized")

	return container, nil
}
