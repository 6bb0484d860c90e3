package clientdata

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A single connection keeps the in-memory database alive across queries.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(Schema)
	require.NoError(t, err)

	return db
}

func TestNewRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	assert.NotNil(t, repo)
}

func TestSchemaIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.Exec(Schema)
	assert.NoError(t, err)
}

func TestStore(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	data := map[string]interface{}{
		"time":  1704067200,
		"close": 42150.5,
	}

	err := repo.Store(TableHistoDay, "BTC-USD-365", data, TTLHistoDay)
	require.NoError(t, err)

	var storedData string
	var expiresAt int64
	err = db.QueryRow("SELECT data, expires_at FROM histoday WHERE pair = ?", "BTC-USD-365").Scan(&storedData, &expiresAt)
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(storedData), &parsed))
	assert.Equal(t, 42150.5, parsed["close"])

	expectedExpires := time.Now().Add(TTLHistoDay).Unix()
	assert.InDelta(t, expectedExpires, expiresAt, 5) // Allow 5 second tolerance
}

func TestStoreUpsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	require.NoError(t, repo.Store(TableCoinList, "watchlist", map[string]string{"version": "1"}, time.Hour))
	require.NoError(t, repo.Store(TableCoinList, "watchlist", map[string]string{"version": "2"}, time.Hour))

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM coinlist WHERE source = ?", "watchlist").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	result, err := repo.GetIfFresh(TableCoinList, "watchlist")
	require.NoError(t, err)
	require.NotNil(t, result)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(result, &parsed))
	assert.Equal(t, "2", parsed["version"])
}

func TestGetIfFresh_Expired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	expiredAt := time.Now().Add(-time.Hour).Unix()
	_, err := db.Exec("INSERT INTO histoday (pair, data, expires_at) VALUES (?, ?, ?)", "ETH-USD-365", `{"stale":true}`, expiredAt)
	require.NoError(t, err)

	result, err := repo.GetIfFresh(TableHistoDay, "ETH-USD-365")
	require.NoError(t, err)
	assert.Nil(t, result, "expired data should not be returned as fresh")

	// Stale data is still available as a fallback
	result, err = repo.Get(TableHistoDay, "ETH-USD-365")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.JSONEq(t, `{"stale":true}`, string(result))
}

func TestGet_Missing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	result, err := repo.Get(TableCoinList, "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, result)

	result, err = repo.GetIfFresh(TableCoinList, "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	require.NoError(t, repo.Store(TableHistoDay, "XMR-USD-365", []float64{1, 2}, time.Hour))
	require.NoError(t, repo.Delete(TableHistoDay, "XMR-USD-365"))

	result, err := repo.Get(TableHistoDay, "XMR-USD-365")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	now := time.Now()
	expiredAt := now.Add(-time.Hour).Unix()
	freshAt := now.Add(time.Hour).Unix()

	for pair, expires := range map[string]int64{
		"BTC-USD-365": expiredAt,
		"ETH-USD-365": expiredAt,
		"XMR-USD-365": freshAt,
	} {
		_, err := db.Exec("INSERT INTO histoday (pair, data, expires_at) VALUES (?, ?, ?)", pair, `{}`, expires)
		require.NoError(t, err)
	}

	deleted, err := repo.DeleteExpired(TableHistoDay)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM histoday").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestDeleteAllExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	expiredAt := time.Now().Add(-time.Hour).Unix()
	_, err := db.Exec("INSERT INTO coinlist (source, data, expires_at) VALUES (?, ?, ?)", "watchlist", `{}`, expiredAt)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO histoday (pair, data, expires_at) VALUES (?, ?, ?)", "BTC-USD-365", `{}`, expiredAt)
	require.NoError(t, err)

	results, err := repo.DeleteAllExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), results[TableCoinList])
	assert.Equal(t, int64(1), results[TableHistoDay])
}

func TestGetKeyColumn(t *testing.T) {
	assert.Equal(t, "source", getKeyColumn(TableCoinList))
	assert.Equal(t, "pair", getKeyColumn(TableHistoDay))
}

func TestInvalidTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	err := repo.Store("invalid_table; DROP TABLE histoday;--", "key", map[string]string{}, time.Hour)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")

	_, err = repo.Get("openfigi", "key")
	assert.Error(t, err)

	_, err = repo.GetIfFresh("openfigi", "key")
	assert.Error(t, err)

	assert.Error(t, repo.Delete("openfigi", "key"))

	_, err = repo.DeleteExpired("openfigi")
	assert.Error(t, err)
}
