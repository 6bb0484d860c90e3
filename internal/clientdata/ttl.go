package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// TTLCoinList covers the watchlist and coin metadata, which rarely change.
	TTLCoinList = 7 * 24 * time.Hour
	// TTLHistoDay covers daily closes; a new bar appears once per UTC day.
	TTLHistoDay = 6 * time.Hour
)
