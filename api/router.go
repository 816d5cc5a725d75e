// Package api exposes location rankings and handle lookups over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"devrank/db"
	"devrank/fetcher"
	"devrank/logger"
	"devrank/models"
)

// Ranker is the pair of inbound operations served over HTTP
type Ranker interface {
	SearchByLocation(ctx context.Context, q models.SearchQuery, token string) (*models.RankedResultSet, error)
	LookupByHandle(ctx context.Context, handle, token string) (*models.ProfileDetail, bool)
}

// SnapshotReader serves stored leaderboards
type SnapshotReader interface {
	GetLatestSnapshot(ctx context.Context, location string, sort models.SortDimension) (*models.Snapshot, error)
	GetProfile(ctx context.Context, login string) (*models.ProfileDetail, error)
}

// Handler holds the collaborators behind the routes. store may be nil.
type Handler struct {
	ranker Ranker
	store  SnapshotReader
}

// NewHandler creates a handler
func NewHandler(ranker Ranker, store SnapshotReader) *Handler {
	return &Handler{ranker: ranker, store: store}
}

// NewRouter registers every route on a fresh mux router
func NewRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(recoverMiddleware)

	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/rankings", h.Rankings).Methods(http.MethodGet)
	v1.HandleFunc("/users/{handle}", h.User).Methods(http.MethodGet)
	if h.store != nil {
		v1.HandleFunc("/snapshots/latest", h.LatestSnapshot).Methods(http.MethodGet)
		v1.HandleFunc("/profiles/{handle}", h.StoredProfile).Methods(http.MethodGet)
	}

	return router
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"store":     h.store != nil,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Rankings handles GET /api/v1/rankings?location=&sort=&page=
func (h *Handler) Rankings(w http.ResponseWriter, r *http.Request) {
	q, err := parseSearchQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.ranker.SearchByLocation(r.Context(), q, bearerToken(r))
	if err != nil {
		if errors.Is(err, fetcher.ErrEmptyLocation) || errors.Is(err, fetcher.ErrInvalidSort) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Warn("Ranking request failed",
			zap.String("location", q.Location),
			zap.Error(err))
		writeJSON(w, http.StatusBadGateway, res)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// User handles GET /api/v1/users/{handle}
func (h *Handler) User(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]

	profile, ok := h.ranker.LookupByHandle(r.Context(), handle, bearerToken(r))
	if !ok {
		writeError(w, http.StatusNotFound, "no profile found for "+handle)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// LatestSnapshot handles GET /api/v1/snapshots/latest?location=&sort=
func (h *Handler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	q, err := parseSearchQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Location == "" {
		writeError(w, http.StatusBadRequest, fetcher.ErrEmptyLocation.Error())
		return
	}

	snap, err := h.store.GetLatestSnapshot(r.Context(), q.Location, q.Sort)
	if err != nil {
		if errors.Is(err, db.ErrSnapshotNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Error("Failed to read snapshot", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// StoredProfile handles GET /api/v1/profiles/{handle}
func (h *Handler) StoredProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.store.GetProfile(r.Context(), mux.Vars(r)["handle"])
	if err != nil {
		if errors.Is(err, db.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.Error("Failed to read profile", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func parseSearchQuery(r *http.Request) (models.SearchQuery, error) {
	values := r.URL.Query()

	sort, err := models.ParseSortDimension(values.Get("sort"))
	if err != nil {
		return models.SearchQuery{}, err
	}

	page := 1
	if raw := values.Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return models.SearchQuery{}, errors.New("page must be a positive integer")
		}
	}

	return models.SearchQuery{
		Location: values.Get("location"),
		Sort:     sort,
		Page:     page,
	}, nil
}

// bearerToken reads the credential for this request only. Both the
// "Bearer" and legacy "token" schemes are accepted.
func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok {
		return ""
	}
	switch strings.ToLower(scheme) {
	case "bearer", "token":
		return strings.TrimSpace(token)
	}
	return ""
}
