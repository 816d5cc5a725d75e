package mockdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devrank/models"
)

var refTime = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestGenerateIsDeterministic(t *testing.T) {
	a := Generate(42, 50, refTime)
	b := Generate(42, 50, refTime)
	c := Generate(43, 50, refTime)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestGenerateShape(t *testing.T) {
	users := Generate(7, 50, refTime)
	require.Len(t, users, 50)

	assert.Equal(t, "tharith-p", users[0].Login)
	for _, u := range users {
		assert.NotEmpty(t, u.Login)
		assert.GreaterOrEqual(t, u.Followers, 0)
		assert.GreaterOrEqual(t, u.PublicRepos, 0)
		require.NotNil(t, u.RecentActivityCount)
		assert.GreaterOrEqual(t, *u.RecentActivityCount, 0)
		assert.Equal(t, models.ActivitySynthetic, u.ActivitySource)
		assert.False(t, u.CreatedAt.After(refTime))
	}
}

func TestGenerateSmallCountKeepsBase(t *testing.T) {
	users := Generate(1, 2, refTime)
	assert.Len(t, users, len(base))
}

func TestDatasetUsersIsCopy(t *testing.T) {
	d := New(1, 10, 500, refTime)
	users := d.Users()
	users[0].Followers = -1

	assert.NotEqual(t, -1, d.Users()[0].Followers)
	assert.Equal(t, 500, d.TotalCount())
}

func TestDefaultIsStable(t *testing.T) {
	assert.Same(t, Default(), Default())
	assert.NotEmpty(t, Default().Users())
}
