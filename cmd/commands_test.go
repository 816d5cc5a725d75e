package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devrank/logger"
	"devrank/models"
)

func run(t *testing.T, upstream string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Setenv("CONFIG_FILE", t.TempDir()+"/missing.env")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GITHUB_API_URL", upstream)
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	return out.String(), err
}

func TestSearchCommandPrintsAPIError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	out, err := run(t, upstream.URL, "search", "--location", "Cambodia")
	require.Error(t, err)

	var res models.RankedResultSet
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "API Error (500): Internal Server Error", res.Error)
	assert.Empty(t, res.Users)
}

func TestSearchCommandRateLimited(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	out, err := run(t, upstream.URL, "search", "--location", "Cambodia", "--sort", "joined")
	require.NoError(t, err)

	var res models.RankedResultSet
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.RateLimited)
	assert.NotEmpty(t, res.Users)
}

func TestSearchCommandRejectsSort(t *testing.T) {
	_, err := run(t, "http://127.0.0.1:1", "search", "--sort", "stars")
	assert.ErrorContains(t, err, "unsupported sort dimension")
}

func TestLookupCommand(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/users/dara":
			w.Write([]byte(`{"login":"dara","id":2,"followers":900,"public_repos":12,"created_at":"2015-06-01T00:00:00Z"}`))
		case "/users/dara/events":
			w.Write([]byte(`[{"type":"PushEvent","payload":{"size":3}}]`))
		case "/users/dara/repos":
			w.Write([]byte(`[{"name":"a","stargazers_count":4},{"name":"b","stargazers_count":7}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	out, err := run(t, upstream.URL, "lookup", "dara")
	require.NoError(t, err)

	var profile models.ProfileDetail
	require.NoError(t, json.Unmarshal([]byte(out), &profile))
	assert.Equal(t, "dara", profile.Login)
	require.NotNil(t, profile.TotalStars)
	assert.Equal(t, 11, *profile.TotalStars)

	_, err = run(t, upstream.URL, "lookup", "ghost")
	assert.ErrorContains(t, err, `no profile found for "ghost"`)
}

func TestLookupCommandRequiresHandle(t *testing.T) {
	_, err := run(t, "http://127.0.0.1:1", "lookup")
	assert.Error(t, err)
}

func TestLogLevelFlagOverridesConfig(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	_, err := run(t, upstream.URL, "search", "--location", "Cambodia")
	require.NoError(t, err)
	assert.False(t, logger.Logger.Core().Enabled(zapcore.DebugLevel))

	_, err = run(t, upstream.URL, "--log-level", "debug", "search", "--location", "Cambodia")
	require.NoError(t, err)
	assert.True(t, logger.Logger.Core().Enabled(zapcore.DebugLevel))

	_, err = run(t, upstream.URL, "--log-level", "loud", "search", "--location", "Cambodia")
	assert.ErrorContains(t, err, "invalid --log-level")
}
