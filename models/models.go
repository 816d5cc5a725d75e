// Package models defines the core data structures used throughout the application.
package models

import (
	"fmt"
	"strings"
	"time"
)

// SortDimension is the ranking key for a location search
type SortDimension string

const (
	SortFollowers    SortDimension = "followers"
	SortRepositories SortDimension = "repositories"
	SortJoined       SortDimension = "joined"
)

// ParseSortDimension validates a sort name. An empty string selects followers.
func ParseSortDimension(s string) (SortDimension, error) {
	switch SortDimension(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortFollowers:
		return SortFollowers, nil
	case SortRepositories, "repos":
		return SortRepositories, nil
	case SortJoined:
		return SortJoined, nil
	}
	return "", fmt.Errorf("unsupported sort dimension %q", s)
}

// ActivitySource records how RecentActivityCount was obtained. Values from
// different sources are not comparable.
type ActivitySource string

const (
	ActivityNone          ActivitySource = ""
	ActivityContributions ActivitySource = "contributions"
	ActivityPushEvents    ActivitySource = "push_events"
	ActivitySynthetic     ActivitySource = "synthetic"
)

// HydrationPath names the strategy that produced a result set
type HydrationPath string

const (
	PathNone      HydrationPath = ""
	PathBatched   HydrationPath = "batched"
	PathPerItem   HydrationPath = "per_item"
	PathSynthetic HydrationPath = "synthetic"
)

// IdentitySummary is a single match from the user search endpoint
type IdentitySummary struct {
	Login     string  `json:"login"`
	ID        int64   `json:"id"`
	AvatarURL string  `json:"avatar_url"`
	HTMLURL   string  `json:"html_url"`
	Score     float64 `json:"score"`
}

// ProfileDetail is a fully hydrated developer profile
type ProfileDetail struct {
	Login               string         `db:"login" json:"login"`
	ID                  int64          `db:"id" json:"id"`
	AvatarURL           string         `db:"avatar_url" json:"avatar_url"`
	HTMLURL             string         `db:"html_url" json:"html_url"`
	Name                string         `db:"name" json:"name,omitempty"`
	Company             string         `db:"company" json:"company,omitempty"`
	Blog                string         `db:"blog" json:"blog,omitempty"`
	Location            string         `db:"location" json:"location,omitempty"`
	Email               string         `db:"email" json:"email,omitempty"`
	Bio                 string         `db:"bio" json:"bio,omitempty"`
	PublicRepos         int            `db:"public_repos" json:"public_repos"`
	PublicGists         int            `db:"public_gists" json:"public_gists"`
	Followers           int            `db:"followers" json:"followers"`
	Following           int            `db:"following" json:"following"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	RecentActivityCount *int           `db:"recent_activity_count" json:"recent_activity_count,omitempty"`
	ActivitySource      ActivitySource `db:"activity_source" json:"activity_source,omitempty"`
	TotalStars          *int           `db:"total_stars" json:"total_stars,omitempty"`
}

// RankedResultSet is the response to a location search.
// Exactly one of a non-empty Users, a non-empty Error, or RateLimited with
// synthetic Users is expected for a search that matched anything.
type RankedResultSet struct {
	Users       []ProfileDetail `json:"users"`
	TotalCount  int             `json:"total_count"`
	RateLimited bool            `json:"rate_limited"`
	Error       string          `json:"error,omitempty"`
	Hydration   HydrationPath   `json:"hydration,omitempty"`
}

// SearchQuery is the inbound request for a ranked location search
type SearchQuery struct {
	Location string        `json:"location"`
	Sort     SortDimension `json:"sort"`
	Page     int           `json:"page"`
}

// Normalize fills defaults for page and sort
func (q SearchQuery) Normalize() SearchQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Sort == "" {
		q.Sort = SortFollowers
	}
	q.Location = strings.TrimSpace(q.Location)
	return q
}

// Snapshot is a persisted ranking captured from a non-degraded result set
type Snapshot struct {
	ID         string          `db:"id" json:"id"`
	Location   string          `db:"location" json:"location"`
	Sort       SortDimension   `db:"sort" json:"sort"`
	Page       int             `db:"page" json:"page"`
	TotalCount int             `db:"total_count" json:"total_count"`
	Hydration  HydrationPath   `db:"hydration" json:"hydration"`
	CapturedAt time.Time       `db:"captured_at" json:"captured_at"`
	Users      []ProfileDetail `db:"-" json:"users"`
}

// TrackedLocation is a location/sort pair the refresh monitor re-ranks
type TrackedLocation struct {
	Location string        `db:"location" json:"location"`
	Sort     SortDimension `db:"sort" json:"sort"`
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}
