package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devrank/logger"
	"devrank/models"
)

func init() {
	logger.Initialize("debug")
}

// setupTestDB creates a new test database connection with a mock
func setupTestDB(t *testing.T) (*DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	database := NewWithConn(sqlx.NewDb(db, "sqlmock"))

	cleanup := func() {
		database.Close()
	}

	return database, mock, cleanup
}

var capturedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		ID:         "5f0c6f0e-8a43-4c1f-9a55-8a2f7f0b1c11",
		Location:   "Phnom Penh",
		Sort:       models.SortFollowers,
		Page:       1,
		TotalCount: 120,
		Hydration:  models.PathBatched,
		CapturedAt: capturedAt,
		Users: []models.ProfileDetail{
			{Login: "dara", ID: 2, Followers: 900, PublicRepos: 12, CreatedAt: capturedAt, RecentActivityCount: models.IntPtr(40), ActivitySource: models.ActivityContributions, TotalStars: models.IntPtr(11)},
			{Login: "sokha", ID: 1, Followers: 40, PublicRepos: 3, CreatedAt: capturedAt},
		},
	}
}

func TestStoreSnapshot(t *testing.T) {
	tests := []struct {
		name        string
		snapshot    func() *models.Snapshot
		mockSetup   func(sqlmock.Sqlmock)
		expectedErr error
	}{
		{
			name:     "successful store",
			snapshot: testSnapshot,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO snapshots").
					WithArgs("5f0c6f0e-8a43-4c1f-9a55-8a2f7f0b1c11", "Phnom Penh", "followers", 1, 120, "batched", capturedAt).
					WillReturnResult(sqlmock.NewResult(0, 1))
				profile := mock.ExpectPrepare("INSERT INTO profiles")
				entry := mock.ExpectPrepare("INSERT INTO snapshot_entries")
				profile.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
				entry.ExpectExec().
					WithArgs("5f0c6f0e-8a43-4c1f-9a55-8a2f7f0b1c11", 1, "dara", 900, 12).
					WillReturnResult(sqlmock.NewResult(0, 1))
				profile.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
				entry.ExpectExec().
					WithArgs("5f0c6f0e-8a43-4c1f-9a55-8a2f7f0b1c11", 2, "sokha", 40, 3).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "empty location",
			snapshot: func() *models.Snapshot {
				s := testSnapshot()
				s.Location = "  "
				return s
			},
			mockSetup:   func(sqlmock.Sqlmock) {},
			expectedErr: ErrInvalidInput,
		},
		{
			name: "no users",
			snapshot: func() *models.Snapshot {
				s := testSnapshot()
				s.Users = nil
				return s
			},
			mockSetup:   func(sqlmock.Sqlmock) {},
			expectedErr: ErrInvalidInput,
		},
		{
			name: "synthetic results rejected",
			snapshot: func() *models.Snapshot {
				s := testSnapshot()
				s.Hydration = models.PathSynthetic
				return s
			},
			mockSetup:   func(sqlmock.Sqlmock) {},
			expectedErr: ErrInvalidInput,
		},
		{
			name:     "begin fails",
			snapshot: testSnapshot,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(errors.New("connection reset"))
			},
			expectedErr: ErrTransactionFailed,
		},
		{
			name:     "profile upsert fails and rolls back",
			snapshot: testSnapshot,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO snapshots").WillReturnResult(sqlmock.NewResult(0, 1))
				profile := mock.ExpectPrepare("INSERT INTO profiles")
				mock.ExpectPrepare("INSERT INTO snapshot_entries")
				profile.ExpectExec().WillReturnError(errors.New("constraint violation"))
				mock.ExpectRollback()
			},
		},
		{
			name:     "commit fails",
			snapshot: testSnapshot,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO snapshots").WillReturnResult(sqlmock.NewResult(0, 1))
				profile := mock.ExpectPrepare("INSERT INTO profiles")
				entry := mock.ExpectPrepare("INSERT INTO snapshot_entries")
				for i := 0; i < 2; i++ {
					profile.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
					entry.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
				}
				mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))
			},
			expectedErr: ErrTransactionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()

			tt.mockSetup(mock)

			err := db.StoreSnapshot(context.Background(), tt.snapshot())
			switch {
			case tt.expectedErr != nil:
				assert.ErrorIs(t, err, tt.expectedErr)
			case tt.name == "profile upsert fails and rolls back":
				assert.ErrorContains(t, err, "failed to upsert profile dara")
			default:
				assert.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStoreSnapshotFillsIDAndTime(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	snap := testSnapshot()
	snap.ID = ""
	snap.CapturedAt = time.Time{}
	snap.Users = snap.Users[:1]

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO snapshots").WillReturnResult(sqlmock.NewResult(0, 1))
	profile := mock.ExpectPrepare("INSERT INTO profiles")
	entry := mock.ExpectPrepare("INSERT INTO snapshot_entries")
	profile.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	entry.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, db.StoreSnapshot(context.Background(), snap))
	assert.Len(t, snap.ID, 36)
	assert.False(t, snap.CapturedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

var entryColumns = []string{
	"login", "id", "avatar_url", "html_url", "name", "company", "blog", "location",
	"email", "bio", "public_gists", "following", "created_at",
	"recent_activity_count", "activity_source", "total_stars", "followers", "public_repos",
}

func TestGetLatestSnapshot(t *testing.T) {
	tests := []struct {
		name        string
		location    string
		mockSetup   func(sqlmock.Sqlmock)
		expectedLen int
		expectedErr error
	}{
		{
			name:     "successful retrieval",
			location: "phnom penh",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM snapshots\\s").
					WithArgs("phnom penh", "followers").
					WillReturnRows(sqlmock.NewRows([]string{"id", "location", "sort", "page", "total_count", "hydration", "captured_at"}).
						AddRow("snap-1", "Phnom Penh", "followers", 1, 120, "batched", capturedAt))
				mock.ExpectQuery("FROM snapshot_entries e").
					WithArgs("snap-1").
					WillReturnRows(sqlmock.NewRows(entryColumns).
						AddRow("dara", 2, "", "", "Dara", "", "", "Phnom Penh", "", "", 0, 1, capturedAt, 40, "contributions", 11, 900, 12).
						AddRow("sokha", 1, "", "", "", "", "", "", "", "", 0, 0, capturedAt, nil, "", nil, 40, 3))
			},
			expectedLen: 2,
		},
		{
			name:     "no snapshot",
			location: "Nowhere",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM snapshots\\s").
					WithArgs("Nowhere", "followers").
					WillReturnError(sql.ErrNoRows)
			},
			expectedErr: ErrSnapshotNotFound,
		},
		{
			name:        "empty location",
			location:    "",
			mockSetup:   func(sqlmock.Sqlmock) {},
			expectedErr: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()

			tt.mockSetup(mock)

			snap, err := db.GetLatestSnapshot(context.Background(), tt.location, models.SortFollowers)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Nil(t, snap)
			} else {
				require.NoError(t, err)
				require.Len(t, snap.Users, tt.expectedLen)
				assert.Equal(t, "dara", snap.Users[0].Login)
				assert.Equal(t, 900, snap.Users[0].Followers)
				require.NotNil(t, snap.Users[0].RecentActivityCount)
				assert.Equal(t, 40, *snap.Users[0].RecentActivityCount)
				assert.Nil(t, snap.Users[1].TotalStars)
				assert.Equal(t, models.PathBatched, snap.Hydration)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetProfile(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	prep := mock.ExpectPrepare("FROM profiles p")
	prep.ExpectQuery().
		WithArgs("Dara").
		WillReturnRows(sqlmock.NewRows(entryColumns).
			AddRow("dara", 2, "", "", "Dara", "", "", "Phnom Penh", "", "", 0, 1, capturedAt, 40, "contributions", 11, 900, 12))
	prep.ExpectQuery().
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	profile, err := db.GetProfile(context.Background(), "Dara")
	require.NoError(t, err)
	assert.Equal(t, "dara", profile.Login)
	assert.Equal(t, 12, profile.PublicRepos)

	// second call reuses the cached statement
	_, err = db.GetProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = db.GetProfile(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTrackedLocations(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT DISTINCT location, sort FROM snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"location", "sort"}).
			AddRow("Phnom Penh", "followers").
			AddRow("Siem Reap", "joined"))

	tracked, err := db.ListTrackedLocations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.TrackedLocation{
		{Location: "Phnom Penh", Sort: models.SortFollowers},
		{Location: "Siem Reap", Sort: models.SortJoined},
	}, tracked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshLocations(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT DISTINCT location, sort FROM snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"location", "sort"}).
			AddRow("Phnom Penh", "followers").
			AddRow("Siem Reap", "joined"))

	seen := make(chan models.TrackedLocation, 2)
	err := db.refreshLocations(context.Background(), nil, func(_ context.Context, loc models.TrackedLocation) error {
		seen <- loc
		if loc.Location == "Siem Reap" {
			return errors.New("upstream unavailable")
		}
		return nil
	})
	close(seen)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Siem Reap")
	assert.Len(t, seen, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshLocationsIncludesConfigured(t *testing.T) {
	testCases := []struct {
		name      string
		mockSetup func(sqlmock.Sqlmock)
		expected  []models.TrackedLocation
	}{
		{
			name: "empty store still refreshes configured locations",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT DISTINCT location, sort FROM snapshots").
					WillReturnRows(sqlmock.NewRows([]string{"location", "sort"}))
			},
			expected: []models.TrackedLocation{
				{Location: "Cambodia", Sort: models.SortFollowers},
				{Location: "Phnom Penh", Sort: models.SortFollowers},
			},
		},
		{
			name: "stored locations merge without duplicates",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT DISTINCT location, sort FROM snapshots").
					WillReturnRows(sqlmock.NewRows([]string{"location", "sort"}).
						AddRow("cambodia", "followers").
						AddRow("Siem Reap", "joined"))
			},
			expected: []models.TrackedLocation{
				{Location: "Cambodia", Sort: models.SortFollowers},
				{Location: "Phnom Penh", Sort: models.SortFollowers},
				{Location: "Siem Reap", Sort: models.SortJoined},
			},
		},
		{
			name: "list failure still refreshes configured locations",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT DISTINCT location, sort FROM snapshots").
					WillReturnError(errors.New("connection reset"))
			},
			expected: []models.TrackedLocation{
				{Location: "Cambodia", Sort: models.SortFollowers},
				{Location: "Phnom Penh", Sort: models.SortFollowers},
			},
		},
	}

	configured := []models.TrackedLocation{
		{Location: "Cambodia", Sort: models.SortFollowers},
		{Location: "Phnom Penh", Sort: models.SortFollowers},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()

			tc.mockSetup(mock)

			seen := make(chan models.TrackedLocation, 10)
			err := db.refreshLocations(context.Background(), configured, func(_ context.Context, loc models.TrackedLocation) error {
				seen <- loc
				return nil
			})
			close(seen)
			require.NoError(t, err)

			var got []models.TrackedLocation
			for loc := range seen {
				got = append(got, loc)
			}
			assert.ElementsMatch(t, tc.expected, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMonitorLocationsRefreshesConfiguredOnTick(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT DISTINCT location, sort FROM snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"location", "sort"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan models.TrackedLocation, 1)
	db.MonitorLocations(ctx, 10*time.Millisecond,
		[]models.TrackedLocation{{Location: "Cambodia", Sort: models.SortJoined}},
		func(_ context.Context, loc models.TrackedLocation) error {
			select {
			case seen <- loc:
			default:
			}
			cancel()
			return nil
		})

	select {
	case loc := <-seen:
		assert.Equal(t, "Cambodia", loc.Location)
		assert.Equal(t, models.SortJoined, loc.Sort)
	case <-time.After(2 * time.Second):
		t.Fatal("configured location was not refreshed")
	}
}

func TestMigrate(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, db.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
