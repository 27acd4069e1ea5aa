package database

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Ad is one persisted row of the dedup store. FirstSeen is set on the
// first filter-accepted sighting and never changes afterwards;
// LastChecked moves forward on every subsequent sighting.
type Ad struct {
	ID          string
	URL         string
	Title       string
	Price       string
	FirstSeen   time.Time
	LastChecked time.Time
}

// AdID derives the stable row key from an ad's detail URL. The same URL
// always maps to the same id regardless of when or where it was scraped.
func AdID(detailURL string) string {
	sum := md5.Sum([]byte(detailURL))
	return hex.EncodeToString(sum[:])
}
