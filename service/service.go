package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"devrank/api"
	"devrank/config"
	"devrank/db"
	"devrank/fetcher"
	"devrank/github"
	"devrank/logger"
	"devrank/mockdata"
	"devrank/models"
)

// StoreInterface abstracts the snapshot store operations needed by the service
// (for testability)
type StoreInterface interface {
	StoreSnapshot(ctx context.Context, snap *models.Snapshot) error
	GetLatestSnapshot(ctx context.Context, location string, sort models.SortDimension) (*models.Snapshot, error)
	GetProfile(ctx context.Context, login string) (*models.ProfileDetail, error)
	MonitorLocations(ctx context.Context, interval time.Duration, configured []models.TrackedLocation, callback func(ctx context.Context, loc models.TrackedLocation) error)
	Close() error
}

// RankerInterface abstracts the ranking operations needed by the service
// (for testability)
type RankerInterface interface {
	SearchByLocation(ctx context.Context, q models.SearchQuery, token string) (*models.RankedResultSet, error)
	LookupByHandle(ctx context.Context, handle, token string) (*models.ProfileDetail, bool)
}

// Service errors
var (
	ErrServiceInit     = fmt.Errorf("service initialization error")
	ErrServiceShutdown = fmt.Errorf("service shutdown error")
)

const shutdownTimeout = 10 * time.Second

// Service represents the long-running ranking process
type Service struct {
	config *config.Config
	store  StoreInterface
	ranker RankerInterface
	server *http.Server
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRanker builds a ranker from configuration
func NewRanker(cfg *config.Config) (*fetcher.Ranker, error) {
	client, err := github.NewClient(github.Options{
		BaseURL:           cfg.APIURL,
		GraphQLURL:        cfg.GraphQLURL,
		Timeout:           cfg.HTTPTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	seed := cfg.MockSeed
	if seed == 0 {
		seed = uint64(now.UnixNano())
	}
	dataset := mockdata.New(seed, cfg.MockCount, cfg.MockTotalCount, now)

	return fetcher.New(client, fetcher.ClientOptions{
		Options: fetcher.Options{
			PerPage:      cfg.PerPage,
			StageTimeout: cfg.StageTimeout,
			Dataset:      dataset,
		},
		GroupSize:   cfg.BatchGroupSize,
		StarSample:  cfg.StarSampleSize,
		EventWindow: cfg.EventWindow,
		Concurrency: cfg.HydrateConcurrency,
	}), nil
}

// NewService creates a new service instance
func NewService(cfg *config.Config) (*Service, error) {
	ranker, err := NewRanker(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize ranker: %v", ErrServiceInit, err)
	}

	var store StoreInterface
	if cfg.Database.Enabled() {
		database, err := db.New(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to initialize database: %v", ErrServiceInit, err)
		}
		if err := database.Migrate(context.Background()); err != nil {
			database.Close()
			return nil, fmt.Errorf("%w: failed to migrate database: %v", ErrServiceInit, err)
		}
		store = database
	} else {
		logger.Info("POSTGRES_HOST not set, snapshots are disabled")
	}

	s := newService(cfg, store, ranker)

	logger.Info("Service initialized successfully",
		zap.Strings("locations", cfg.Locations),
		zap.String("sort", string(cfg.Sort)),
		zap.Bool("credential", cfg.GitHubToken != ""),
		zap.Bool("store", store != nil),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Int("poll_interval", cfg.PollInterval))

	return s, nil
}

func newService(cfg *config.Config, store StoreInterface, ranker RankerInterface) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		config: cfg,
		store:  store,
		ranker: ranker,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.HTTPAddr != "" {
		var reader api.SnapshotReader
		if store != nil {
			reader = store
		}
		s.server = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewRouter(api.NewHandler(s, reader)),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return s
}

// SearchByLocation ranks a location and records a snapshot of usable results
func (s *Service) SearchByLocation(ctx context.Context, q models.SearchQuery, token string) (*models.RankedResultSet, error) {
	res, err := s.ranker.SearchByLocation(ctx, q, token)
	if err != nil {
		return res, err
	}
	if err := recordSnapshot(ctx, s.store, q.Normalize(), res); err != nil {
		logger.Warn("Failed to record snapshot",
			zap.String("location", q.Location),
			zap.Error(err))
	}
	return res, nil
}

// LookupByHandle resolves one handle
func (s *Service) LookupByHandle(ctx context.Context, handle, token string) (*models.ProfileDetail, bool) {
	return s.ranker.LookupByHandle(ctx, handle, token)
}

// Start initializes and starts the service
func (s *Service) Start() error {
	// Rank the configured locations once
	for _, loc := range s.configuredLocations() {
		if err := s.processLocation(s.ctx, loc); err != nil {
			logger.Warn("Error processing initial location",
				zap.Error(err),
				zap.String("location", loc.Location))
			// Continue despite initial processing error
		}
	}

	if s.store != nil {
		s.startMonitoring()
	}

	if s.server != nil {
		go func() {
			logger.Info("HTTP server listening", zap.String("addr", s.server.Addr))
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server stopped", zap.Error(err))
				s.cancel()
			}
		}()
	}

	s.waitForShutdown()

	return nil
}

func (s *Service) processLocation(ctx context.Context, loc models.TrackedLocation) error {
	if ctx.Err() != nil {
		return fmt.Errorf("service context cancelled: %w", ctx.Err())
	}
	return processLocation(ctx, s.store, s.ranker, loc, s.config.GitHubToken)
}

// startMonitoring re-ranks every tracked location on the poll interval
func (s *Service) startMonitoring() {
	logger.Info("Starting location monitoring",
		zap.Int("poll_interval", s.config.PollInterval))

	s.store.MonitorLocations(
		s.ctx,
		time.Duration(s.config.PollInterval)*time.Second,
		s.configuredLocations(),
		s.processLocation,
	)
}

// configuredLocations pairs every configured location with the configured sort
func (s *Service) configuredLocations() []models.TrackedLocation {
	locs := make([]models.TrackedLocation, 0, len(s.config.Locations))
	for _, location := range s.config.Locations {
		locs = append(locs, models.TrackedLocation{Location: location, Sort: s.config.Sort})
	}
	return locs
}

// waitForShutdown waits for the shutdown signal
func (s *Service) waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case <-s.ctx.Done():
	}
	s.cancel()
}

// Close performs cleanup operations
func (s *Service) Close() error {
	logger.Info("Closing service")
	s.cancel()

	var errs []error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop http server: %v", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrServiceShutdown, errors.Join(errs...))
	}
	return nil
}

// processLocation ranks the first page of one location and records it
func processLocation(ctx context.Context, store StoreInterface, ranker RankerInterface, loc models.TrackedLocation, token string) error {
	if ctx.Err() != nil {
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	}

	logger.Info("Ranking location",
		zap.String("location", loc.Location),
		zap.String("sort", string(loc.Sort)))

	q := models.SearchQuery{Location: loc.Location, Sort: loc.Sort, Page: 1}.Normalize()
	res, err := ranker.SearchByLocation(ctx, q, token)
	if err != nil {
		return fmt.Errorf("failed to rank %s: %w", loc.Location, err)
	}

	if err := recordSnapshot(ctx, store, q, res); err != nil {
		return fmt.Errorf("failed to store snapshot for %s: %w", loc.Location, err)
	}

	logger.Info("Successfully processed location",
		zap.String("location", loc.Location),
		zap.String("hydration", string(res.Hydration)),
		zap.Int("users", len(res.Users)))

	return nil
}

// recordSnapshot persists res when a store is configured. Synthetic, failed
// and empty result sets are skipped.
func recordSnapshot(ctx context.Context, store StoreInterface, q models.SearchQuery, res *models.RankedResultSet) error {
	if store == nil || res == nil {
		return nil
	}
	if res.RateLimited || res.Error != "" || res.Hydration == models.PathSynthetic {
		logger.Info("Skipping snapshot of degraded result",
			zap.String("location", q.Location),
			zap.Bool("rate_limited", res.RateLimited))
		return nil
	}
	if len(res.Users) == 0 {
		logger.Info("No users to snapshot", zap.String("location", q.Location))
		return nil
	}

	sort, err := models.ParseSortDimension(string(q.Sort))
	if err != nil {
		return err
	}

	return store.StoreSnapshot(ctx, &models.Snapshot{
		Location:   q.Location,
		Sort:       sort,
		Page:       q.Page,
		TotalCount: res.TotalCount,
		Hydration:  res.Hydration,
		Users:      res.Users,
	})
}
