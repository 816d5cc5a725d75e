package hydrate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"devrank/github"
	"devrank/logger"
	"devrank/models"
)

const (
	// DefaultGroupSize keeps one query under the upstream complexity ceiling
	DefaultGroupSize = 10
	// DefaultStarSample caps the repositories summed for the star total
	DefaultStarSample = 30
)

// ProfileQuerier runs one batched profile query
type ProfileQuerier interface {
	QueryProfiles(ctx context.Context, handles []string, starSample int, token string) (map[string]github.GraphQLUser, error)
}

// Batched hydrates through the GraphQL endpoint, one group at a time
type Batched struct {
	client     ProfileQuerier
	groupSize  int
	starSample int
}

// NewBatched creates a batched strategy. Non-positive sizes select defaults.
func NewBatched(client ProfileQuerier, groupSize, starSample int) *Batched {
	if groupSize < 1 {
		groupSize = DefaultGroupSize
	}
	if starSample < 1 {
		starSample = DefaultStarSample
	}
	return &Batched{client: client, groupSize: groupSize, starSample: starSample}
}

// Path implements Strategy
func (b *Batched) Path() models.HydrationPath {
	return models.PathBatched
}

// Hydrate issues one query per group, sequentially. A failed group is logged
// and skipped; an error is returned only when every group failed.
func (b *Batched) Hydrate(ctx context.Context, handles []string, token string) (map[string]models.ProfileDetail, error) {
	if token == "" {
		return nil, github.ErrMissingCredential
	}

	groups := Chunk(handles, b.groupSize)
	out := make(map[string]models.ProfileDetail, len(handles))
	failed := 0
	var lastErr error

	for i, group := range groups {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("batched hydration interrupted: %w", err)
		}

		log := logger.With(zap.Int("group", i), zap.Int("group_size", len(group)))

		users, err := b.client.QueryProfiles(ctx, group, b.starSample, token)
		if err != nil {
			failed++
			lastErr = err
			log.Warn("Batched group failed", zap.Error(err))
			continue
		}

		for key, user := range users {
			out[key] = user.ToProfile()
		}
		log.Debug("Batched group resolved", zap.Int("resolved", len(users)))
	}

	if len(groups) > 0 && failed == len(groups) {
		return out, fmt.Errorf("all %d batched groups failed: %w", failed, lastErr)
	}

	logger.Info("Batched hydration completed",
		zap.Int("requested", len(handles)),
		zap.Int("resolved", len(out)),
		zap.Int("groups", len(groups)),
		zap.Int("failed_groups", failed))

	return out, nil
}
