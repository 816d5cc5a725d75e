// Package hydrate resolves search handles into full profile records.
//
// Two strategies exist. Batched uses the GraphQL endpoint, needs a
// credential, and reports the authoritative contribution total and a star
// total. PerItem uses one REST call per handle plus a push-event estimate of
// activity, and works anonymously. Their activity values are not comparable;
// each profile carries an ActivitySource tag saying which one it holds.
package hydrate

import (
	"context"
	"strings"

	"devrank/models"
)

// Strategy resolves handles to profiles keyed by lower-cased handle.
// Handles that cannot be resolved are absent from the map.
type Strategy interface {
	Path() models.HydrationPath
	Hydrate(ctx context.Context, handles []string, token string) (map[string]models.ProfileDetail, error)
}

// Key normalizes a handle for map lookups
func Key(handle string) string {
	return strings.ToLower(handle)
}

// Chunk splits handles into consecutive groups of at most size
func Chunk(handles []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	groups := make([][]string, 0, (len(handles)+size-1)/size)
	for i := 0; i < len(handles); i += size {
		end := min(i+size, len(handles))
		groups = append(groups, handles[i:end])
	}
	return groups
}

// Ordered maps handles through resolved, keeping handle order and dropping
// handles that did not resolve.
func Ordered(handles []string, resolved map[string]models.ProfileDetail) []models.ProfileDetail {
	out := make([]models.ProfileDetail, 0, len(resolved))
	seen := make(map[string]bool, len(handles))
	for _, h := range handles {
		key := Key(h)
		if seen[key] {
			continue
		}
		seen[key] = true
		if p, ok := resolved[key]; ok {
			out = append(out, p)
		}
	}
	return out
}
