package hydrate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"devrank/github"
	"devrank/logger"
	"devrank/models"
)

const (
	// DefaultEventWindow is the number of recent public events sampled
	DefaultEventWindow = 100
	// DefaultConcurrency covers a full search page in one wave
	DefaultConcurrency = 100
)

// RESTClient fetches the basic record and the public event window
type RESTClient interface {
	FetchUser(ctx context.Context, handle, token string) (*github.UserResponse, error)
	FetchEvents(ctx context.Context, handle string, perPage int, token string) ([]github.Event, error)
}

// PerItem hydrates each handle independently over REST
type PerItem struct {
	client      RESTClient
	eventWindow int
	concurrency int
}

// NewPerItem creates a per-item strategy. Non-positive sizes select defaults.
func NewPerItem(client RESTClient, eventWindow, concurrency int) *PerItem {
	if eventWindow < 1 || eventWindow > 100 {
		eventWindow = DefaultEventWindow
	}
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &PerItem{client: client, eventWindow: eventWindow, concurrency: concurrency}
}

// Path implements Strategy
func (p *PerItem) Path() models.HydrationPath {
	return models.PathPerItem
}

// Hydrate fetches every handle concurrently. Failures drop that handle only.
func (p *PerItem) Hydrate(ctx context.Context, handles []string, token string) (map[string]models.ProfileDetail, error) {
	results := make([]*models.ProfileDetail, len(handles))
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for i, handle := range handles {
		wg.Add(1)
		go func(i int, handle string) {
			defer wg.Done()
			sem <- struct{}{}        // Acquire semaphore
			defer func() { <-sem }() // Release semaphore

			profile, err := p.HydrateOne(ctx, handle, token)
			if err != nil {
				logger.Debug("Dropping handle from per-item hydration",
					zap.String("handle", handle),
					zap.Error(err))
				return
			}
			results[i] = profile
		}(i, handle)
	}
	wg.Wait()

	out := make(map[string]models.ProfileDetail, len(handles))
	for i, profile := range results {
		if profile != nil {
			out[Key(handles[i])] = *profile
		}
	}

	logger.Info("Per-item hydration completed",
		zap.Int("requested", len(handles)),
		zap.Int("resolved", len(out)))

	if len(out) == 0 {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("per-item hydration interrupted: %w", err)
		}
	}
	return out, nil
}

// HydrateOne fetches the basic record for handle and estimates activity from
// its public events. An event failure yields zero activity, not an error.
func (p *PerItem) HydrateOne(ctx context.Context, handle, token string) (*models.ProfileDetail, error) {
	user, err := p.client.FetchUser(ctx, handle, token)
	if err != nil {
		return nil, err
	}
	profile := user.ToProfile()

	activity := 0
	events, err := p.client.FetchEvents(ctx, handle, p.eventWindow, token)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Debug("Event fetch failed, activity set to zero",
				zap.String("handle", handle),
				zap.Error(err))
		}
	} else {
		activity = PushActivity(events)
	}
	profile.RecentActivityCount = models.IntPtr(activity)
	profile.ActivitySource = models.ActivityPushEvents

	return &profile, nil
}

// PushActivity sums the push size of push events. Other event types count zero.
func PushActivity(events []github.Event) int {
	total := 0
	for _, e := range events {
		if e.Type == "PushEvent" && e.Payload.Size > 0 {
			total += e.Payload.Size
		}
	}
	return total
}
