package database

import (
	"time"

	"github.com/adwatch/adwatch/app/collector"
)

type AdRepository interface {
	UpsertAd(listing collector.Listing, now time.Time) (bool, error)
	PruneStale(retention time.Duration, now time.Time) (int64, error)
	GetRecentAds(window time.Duration, now time.Time) ([]Ad, error)
	GetAdCount() (int, error)
}
