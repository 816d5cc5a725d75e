package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"devrank/logger"
	"devrank/models"
)

const upsertProfileQuery = `
	INSERT INTO profiles (
		login, id, avatar_url, html_url, name, company, blog, location, email, bio,
		public_repos, public_gists, followers, following, created_at,
		recent_activity_count, activity_source, total_stars, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	ON CONFLICT (login) DO UPDATE SET
		id = EXCLUDED.id,
		avatar_url = EXCLUDED.avatar_url,
		html_url = EXCLUDED.html_url,
		name = EXCLUDED.name,
		company = EXCLUDED.company,
		blog = EXCLUDED.blog,
		location = EXCLUDED.location,
		email = EXCLUDED.email,
		bio = EXCLUDED.bio,
		public_repos = EXCLUDED.public_repos,
		public_gists = EXCLUDED.public_gists,
		followers = EXCLUDED.followers,
		following = EXCLUDED.following,
		created_at = EXCLUDED.created_at,
		recent_activity_count = EXCLUDED.recent_activity_count,
		activity_source = EXCLUDED.activity_source,
		total_stars = EXCLUDED.total_stars,
		updated_at = EXCLUDED.updated_at
	WHERE profiles.updated_at <= EXCLUDED.updated_at
`

const insertEntryQuery = `
	INSERT INTO snapshot_entries (snapshot_id, position, login, followers, public_repos)
	VALUES ($1, $2, $3, $4, $5)
`

const profileColumns = `
	p.login, p.id, p.avatar_url, p.html_url, p.name, p.company, p.blog, p.location,
	p.email, p.bio, p.public_gists, p.following, p.created_at,
	p.recent_activity_count, p.activity_source, p.total_stars
`

// StoreSnapshot persists a ranked page and upserts every profile in it.
// Missing IDs and capture times are filled in on snap.
func (db *DB) StoreSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil || strings.TrimSpace(snap.Location) == "" {
		return fmt.Errorf("%w: snapshot location cannot be empty", ErrInvalidInput)
	}
	if len(snap.Users) == 0 {
		return fmt.Errorf("%w: snapshot has no users", ErrInvalidInput)
	}
	if snap.Hydration == models.PathSynthetic {
		return fmt.Errorf("%w: synthetic results are not persisted", ErrInvalidInput)
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}

	logger.Info("Storing snapshot",
		zap.String("snapshot_id", snap.ID),
		zap.String("location", snap.Location),
		zap.String("sort", string(snap.Sort)),
		zap.Int("users", len(snap.Users)))

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, location, sort, page, total_count, hydration, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		snap.ID, snap.Location, string(snap.Sort), snap.Page, snap.TotalCount,
		string(snap.Hydration), snap.CapturedAt,
	); err != nil {
		return fmt.Errorf("failed to insert snapshot %s: %w", snap.ID, err)
	}

	profileStmt, err := tx.PreparexContext(ctx, upsertProfileQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare profile upsert statement: %w", err)
	}
	defer profileStmt.Close()

	entryStmt, err := tx.PreparexContext(ctx, insertEntryQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot entry statement: %w", err)
	}
	defer entryStmt.Close()

	for i, u := range snap.Users {
		if _, err := profileStmt.ExecContext(ctx,
			u.Login, u.ID, u.AvatarURL, u.HTMLURL, u.Name, u.Company, u.Blog, u.Location,
			u.Email, u.Bio, u.PublicRepos, u.PublicGists, u.Followers, u.Following, u.CreatedAt,
			nullInt(u.RecentActivityCount), string(u.ActivitySource), nullInt(u.TotalStars),
			snap.CapturedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert profile %s: %w", u.Login, err)
		}
		if _, err := entryStmt.ExecContext(ctx, snap.ID, i+1, u.Login, u.Followers, u.PublicRepos); err != nil {
			return fmt.Errorf("failed to insert snapshot entry %s: %w", u.Login, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", ErrTransactionFailed, err)
	}

	logger.Info("Snapshot stored", zap.String("snapshot_id", snap.ID))
	return nil
}

// GetLatestSnapshot returns the most recent snapshot for location and sort.
// Each entry carries the follower and repository counts captured with it.
func (db *DB) GetLatestSnapshot(ctx context.Context, location string, sort models.SortDimension) (*models.Snapshot, error) {
	if strings.TrimSpace(location) == "" {
		return nil, fmt.Errorf("%w: location cannot be empty", ErrInvalidInput)
	}

	var snap models.Snapshot
	query := `
		SELECT id, location, sort, page, total_count, hydration, captured_at
		FROM snapshots
		WHERE lower(location) = lower($1) AND sort = $2
		ORDER BY captured_at DESC
		LIMIT 1
	`
	if err := db.conn.GetContext(ctx, &snap, query, location, string(sort)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s by %s", ErrSnapshotNotFound, location, sort)
		}
		return nil, fmt.Errorf("failed to get snapshot for %s: %w", location, err)
	}

	users := []models.ProfileDetail{}
	entriesQuery := `SELECT ` + profileColumns + `, e.followers, e.public_repos
		FROM snapshot_entries e
		JOIN profiles p ON p.login = e.login
		WHERE e.snapshot_id = $1
		ORDER BY e.position
	`
	if err := db.conn.SelectContext(ctx, &users, entriesQuery, snap.ID); err != nil {
		return nil, fmt.Errorf("failed to get entries for snapshot %s: %w", snap.ID, err)
	}
	snap.Users = users

	return &snap, nil
}

// GetProfile returns the last stored version of a profile
func (db *DB) GetProfile(ctx context.Context, login string) (*models.ProfileDetail, error) {
	if login == "" {
		return nil, fmt.Errorf("%w: login cannot be empty", ErrInvalidInput)
	}

	stmt, err := db.getStmt(ctx, `SELECT `+profileColumns+`, p.followers, p.public_repos
		FROM profiles p
		WHERE lower(p.login) = lower($1)`)
	if err != nil {
		return nil, err
	}

	var profile models.ProfileDetail
	if err := stmt.GetContext(ctx, &profile, login); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, login)
		}
		return nil, fmt.Errorf("failed to get profile %s: %w", login, err)
	}
	return &profile, nil
}

// ListTrackedLocations returns every location and sort with a stored snapshot
func (db *DB) ListTrackedLocations(ctx context.Context) ([]models.TrackedLocation, error) {
	var tracked []models.TrackedLocation
	if err := db.conn.SelectContext(ctx, &tracked,
		`SELECT DISTINCT location, sort FROM snapshots ORDER BY location, sort`); err != nil {
		return nil, fmt.Errorf("failed to list tracked locations: %w", err)
	}
	return tracked, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
