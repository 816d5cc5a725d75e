package db

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"devrank/logger"
	"devrank/models"
)

// MonitorLocations re-ranks every tracked location on each tick until ctx is done.
// The configured locations are always tracked, stored snapshot or not.
func (db *DB) MonitorLocations(ctx context.Context, interval time.Duration, configured []models.TrackedLocation, callback func(ctx context.Context, loc models.TrackedLocation) error) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.refreshLocations(ctx, configured, callback); err != nil {
					logger.Warn("Error refreshing tracked locations", zap.Error(err))
				}
			}
		}
	}()
}

// refreshLocations runs callback for every tracked location with a small worker pool
func (db *DB) refreshLocations(ctx context.Context, configured []models.TrackedLocation, callback func(ctx context.Context, loc models.TrackedLocation) error) error {
	stored, err := db.ListTrackedLocations(ctx)
	if err != nil {
		// still refresh the configured set
		logger.Warn("Failed to list tracked locations", zap.Error(err))
	}
	tracked := mergeTracked(configured, stored)

	const maxWorkers = 5
	sem := make(chan struct{}, maxWorkers)
	errChan := make(chan error, len(tracked))
	var wg sync.WaitGroup

	for _, loc := range tracked {
		wg.Add(1)
		go func(loc models.TrackedLocation) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := callback(ctx, loc); err != nil {
				errChan <- fmt.Errorf("error refreshing %s by %s: %w", loc.Location, loc.Sort, err)
			}
		}(loc)
	}

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors occurred while refreshing locations: %v", errs)
	}

	logger.Info("Tracked locations refreshed", zap.Int("count", len(tracked)))
	return nil
}

// mergeTracked joins two location lists, dropping case-insensitive duplicates
func mergeTracked(lists ...[]models.TrackedLocation) []models.TrackedLocation {
	seen := make(map[models.TrackedLocation]bool)
	var out []models.TrackedLocation
	for _, list := range lists {
		for _, loc := range list {
			key := models.TrackedLocation{
				Location: strings.ToLower(strings.TrimSpace(loc.Location)),
				Sort:     loc.Sort,
			}
			if key.Location == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, loc)
		}
	}
	return out
}
