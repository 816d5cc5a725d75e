// Package fetcher turns a location search into a ranked, fully hydrated page
// of developer profiles.
package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"devrank/github"
	"devrank/hydrate"
	"devrank/logger"
	"devrank/mockdata"
	"devrank/models"
)

const (
	defaultPerPage = 100
	repoWindow     = 100
)

// Searcher runs the upstream user search
type Searcher interface {
	SearchUsers(ctx context.Context, location string, sort models.SortDimension, page, perPage int, token string) (*github.SearchResult, error)
}

// SingleHydrator is a strategy that can also hydrate one handle on its own
type SingleHydrator interface {
	hydrate.Strategy
	HydrateOne(ctx context.Context, handle, token string) (*models.ProfileDetail, error)
}

// RepoLister lists owned repositories for the lookup star total
type RepoLister interface {
	FetchOwnedRepos(ctx context.Context, handle string, perPage int, token string) ([]github.RepoResponse, error)
}

// Options tunes a Ranker
type Options struct {
	PerPage      int
	StageTimeout time.Duration
	Dataset      *mockdata.Dataset
}

// Ranker implements location search and single-handle lookup. It holds no
// credential and no per-request state; it is safe for concurrent use.
type Ranker struct {
	searcher     Searcher
	batched      hydrate.Strategy
	perItem      SingleHydrator
	repos        RepoLister
	dataset      *mockdata.Dataset
	perPage      int
	stageTimeout time.Duration
}

// NewRanker wires a ranker from its collaborators. batched may be nil.
func NewRanker(searcher Searcher, batched hydrate.Strategy, perItem SingleHydrator, repos RepoLister, opts Options) *Ranker {
	if opts.PerPage < 1 || opts.PerPage > 100 {
		opts.PerPage = defaultPerPage
	}
	if opts.Dataset == nil {
		opts.Dataset = mockdata.Default()
	}
	return &Ranker{
		searcher:     searcher,
		batched:      batched,
		perItem:      perItem,
		repos:        repos,
		dataset:      opts.Dataset,
		perPage:      opts.PerPage,
		stageTimeout: opts.StageTimeout,
	}
}

// ClientOptions sizes the strategies built by New
type ClientOptions struct {
	Options
	GroupSize   int
	StarSample  int
	EventWindow int
	Concurrency int
}

// New builds a ranker whose strategies all talk to client
func New(client *github.Client, opts ClientOptions) *Ranker {
	return NewRanker(
		client,
		hydrate.NewBatched(client, opts.GroupSize, opts.StarSample),
		hydrate.NewPerItem(client, opts.EventWindow, opts.Concurrency),
		client,
		opts.Options,
	)
}

func (r *Ranker) stage(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.stageTimeout > 0 {
		return context.WithTimeout(ctx, r.stageTimeout)
	}
	return context.WithCancel(ctx)
}

// SearchByLocation searches, hydrates, reconciles and sorts one page.
//
// Quota exhaustion yields a synthetic, RateLimited set with a nil error. Any
// other search failure yields an empty set whose Error matches the returned
// error. Otherwise the users are sorted descending by q.Sort.
func (r *Ranker) SearchByLocation(ctx context.Context, q models.SearchQuery, token string) (*models.RankedResultSet, error) {
	q = q.Normalize()
	if q.Location == "" {
		return failed(ErrEmptyLocation), ErrEmptyLocation
	}
	sort, err := models.ParseSortDimension(string(q.Sort))
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidSort, err)
		return failed(err), err
	}
	q.Sort = sort

	sctx, cancel := r.stage(ctx)
	res, err := r.searcher.SearchUsers(sctx, q.Location, q.Sort, q.Page, r.perPage, token)
	cancel()
	if err != nil {
		if github.IsQuota(err) {
			logger.Warn("Search rate limited, serving synthetic data",
				zap.String("location", q.Location))
			return r.degraded(q.Sort), nil
		}
		logger.Error("Search failed",
			zap.Error(err),
			zap.String("location", q.Location),
			zap.Int("page", q.Page))
		return failed(err), fmt.Errorf("search %q page %d: %w", q.Location, q.Page, err)
	}

	if len(res.Items) == 0 {
		return &models.RankedResultSet{Users: []models.ProfileDetail{}, TotalCount: res.TotalCount}, nil
	}

	handles := make([]string, 0, len(res.Items))
	for _, item := range res.Items {
		handles = append(handles, item.Login)
	}

	users, path := r.hydrate(ctx, handles, token)
	if len(users) == 0 {
		logger.Warn("No profile hydrated, treating as quota exhaustion",
			zap.String("location", q.Location),
			zap.Int("handles", len(handles)))
		return r.degraded(q.Sort), nil
	}

	SortProfiles(users, q.Sort)

	logger.Info("Ranked location",
		zap.String("location", q.Location),
		zap.String("sort", string(q.Sort)),
		zap.Int("page", q.Page),
		zap.String("hydration", string(path)),
		zap.Int("users", len(users)),
		zap.Int("total_count", res.TotalCount))

	return &models.RankedResultSet{
		Users:      users,
		TotalCount: max(res.TotalCount, len(users)),
		Hydration:  path,
	}, nil
}

// strategies lists the strategies to try, in order, for a credential
func (r *Ranker) strategies(token string) []hydrate.Strategy {
	if token != "" && r.batched != nil {
		return []hydrate.Strategy{r.batched, r.perItem}
	}
	return []hydrate.Strategy{r.perItem}
}

// hydrate runs strategies until one resolves at least one handle. A result
// set is never a mix of two strategies.
func (r *Ranker) hydrate(ctx context.Context, handles []string, token string) ([]models.ProfileDetail, models.HydrationPath) {
	for _, s := range r.strategies(token) {
		hctx, cancel := r.stage(ctx)
		resolved, err := s.Hydrate(hctx, handles, token)
		cancel()
		if err != nil {
			logger.Warn("Hydration strategy failed",
				zap.String("strategy", string(s.Path())),
				zap.Error(err))
		}

		users := hydrate.Ordered(handles, resolved)
		if len(users) > 0 {
			return users, s.Path()
		}
		logger.Info("Hydration strategy resolved nothing",
			zap.String("strategy", string(s.Path())),
			zap.Int("handles", len(handles)))
	}
	return nil, models.PathNone
}

func (r *Ranker) degraded(sort models.SortDimension) *models.RankedResultSet {
	users := r.dataset.Users()
	SortProfiles(users, sort)
	return &models.RankedResultSet{
		Users:       users,
		TotalCount:  r.dataset.TotalCount(),
		RateLimited: true,
		Hydration:   models.PathSynthetic,
	}
}

func failed(err error) *models.RankedResultSet {
	return &models.RankedResultSet{
		Users: []models.ProfileDetail{},
		Error: describe(err),
	}
}

// LookupByHandle resolves one handle. The batched form is tried first when a
// token is present; any failure there falls through to REST. The second
// return value is false only when neither path resolved the handle.
func (r *Ranker) LookupByHandle(ctx context.Context, handle, token string) (*models.ProfileDetail, bool) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil, false
	}

	if token != "" && r.batched != nil {
		bctx, cancel := r.stage(ctx)
		resolved, err := r.batched.Hydrate(bctx, []string{handle}, token)
		cancel()
		if p, ok := resolved[hydrate.Key(handle)]; ok {
			return &p, true
		}
		logger.Debug("Batched lookup missed, falling back",
			zap.String("handle", handle),
			zap.Error(err))
	}

	fctx, cancel := r.stage(ctx)
	defer cancel()

	profile, err := r.perItem.HydrateOne(fctx, handle, token)
	if err != nil {
		logger.Info("Lookup failed",
			zap.String("handle", handle),
			zap.Error(err))
		return nil, false
	}

	if r.repos != nil {
		repos, err := r.repos.FetchOwnedRepos(fctx, handle, repoWindow, token)
		if err != nil {
			logger.Debug("Repository fetch failed, stars left unset",
				zap.String("handle", handle),
				zap.Error(err))
		} else {
			profile.TotalStars = models.IntPtr(SumStars(repos))
		}
	}

	return profile, true
}

// SumStars adds up the star counts of repos
func SumStars(repos []github.RepoResponse) int {
	total := 0
	for _, repo := range repos {
		total += max(repo.StargazersCount, 0)
	}
	return total
}
