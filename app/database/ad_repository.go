package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/adwatch/adwatch/app/collector"
)

var _ AdRepository = (*AdRepo)(nil)

// AdRepo handles database operations for the ad_changes dedup table.
type AdRepo struct {
	db *DB
}

func NewAdRepo(db *DB) *AdRepo {
	return &AdRepo{db: db}
}

// Timestamps are stored as fixed-width UTC strings so that lexical
// comparison in SQL matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// UpsertAd records one filter-accepted sighting. A first sighting
// inserts the row with first_seen = last_checked = now and returns true;
// a repeat sighting refreshes title, price and last_checked, keeps
// first_seen, and returns false. The select-and-write pair runs in a
// write transaction (the connection opens transactions with BEGIN
// IMMEDIATE), so concurrent sightings of the same ad serialize on the
// write lock and exactly one observes the insert.
func (r *AdRepo) UpsertAd(listing collector.Listing, now time.Time) (bool, error) {
	adID := AdID(listing.DetailURL)
	nowStr := formatTime(now)

	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRow("SELECT ad_id FROM ad_changes WHERE ad_id = ?", adID).Scan(&existing)

	isNew := false
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(`
			INSERT INTO ad_changes (ad_id, url, title, price, first_seen, last_checked)
			VALUES (?, ?, ?, ?, ?, ?)
		`, adID, listing.DetailURL, listing.Title, listing.Price, nowStr, nowStr)
		if err != nil {
			return false, fmt.Errorf("failed to insert ad: %w", err)
		}
		isNew = true
	case err != nil:
		return false, fmt.Errorf("failed to check existing ad: %w", err)
	default:
		_, err = tx.Exec(`
			UPDATE ad_changes
			SET title = ?, price = ?, last_checked = ?
			WHERE ad_id = ?
		`, listing.Title, listing.Price, nowStr, adID)
		if err != nil {
			return false, fmt.Errorf("failed to update ad: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit upsert: %w", err)
	}

	return isNew, nil
}

// PruneStale deletes rows whose last sighting is older than the
// retention window and returns the number of rows removed.
func (r *AdRepo) PruneStale(retention time.Duration, now time.Time) (int64, error) {
	cutoff := formatTime(now.Add(-retention))

	result, err := r.db.Exec("DELETE FROM ad_changes WHERE last_checked < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune stale ads: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned ads: %w", err)
	}

	return deleted, nil
}

// GetRecentAds returns ads seen within the window, most recently checked
// first, for the feed projection.
func (r *AdRepo) GetRecentAds(window time.Duration, now time.Time) ([]Ad, error) {
	cutoff := formatTime(now.Add(-window))

	rows, err := r.db.Query(`
		SELECT ad_id, url, COALESCE(title, ''), COALESCE(price, ''), first_seen, last_checked
		FROM ad_changes
		WHERE last_checked >= ?
		ORDER BY last_checked DESC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent ads: %w", err)
	}
	defer rows.Close()

	var ads []Ad
	for rows.Next() {
		var ad Ad
		var firstSeen, lastChecked string
		if err := rows.Scan(&ad.ID, &ad.URL, &ad.Title, &ad.Price, &firstSeen, &lastChecked); err != nil {
			return nil, fmt.Errorf("failed to scan ad row: %w", err)
		}
		if ad.FirstSeen, err = parseTime(firstSeen); err != nil {
			return nil, fmt.Errorf("failed to parse first_seen: %w", err)
		}
		if ad.LastChecked, err = parseTime(lastChecked); err != nil {
			return nil, fmt.Errorf("failed to parse last_checked: %w", err)
		}
		ads = append(ads, ad)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ad rows: %w", err)
	}

	return ads, nil
}

// GetAdCount returns the total number of tracked ads.
func (r *AdRepo) GetAdCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM ad_changes").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get ad count: %w", err)
	}
	return count, nil
}
