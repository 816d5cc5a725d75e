package fetcher

import (
	"cmp"
	"slices"

	"devrank/models"
)

// SortProfiles orders users by dim, descending. Joined sorts newest first.
// The sort is stable so equal values keep upstream order.
func SortProfiles(users []models.ProfileDetail, dim models.SortDimension) {
	slices.SortStableFunc(users, func(a, b models.ProfileDetail) int {
		switch dim {
		case models.SortRepositories:
			return cmp.Compare(b.PublicRepos, a.PublicRepos)
		case models.SortJoined:
			return b.CreatedAt.Compare(a.CreatedAt)
		default:
			return cmp.Compare(b.Followers, a.Followers)
		}
	})
}
