package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"devrank/logger"
	"devrank/models"
)

// profileFragment requests every field the batched path hydrates. The
// repository sample is ordered by stars so the summed total favours the
// largest contributors when an account owns more than the sample size.
const profileFragment = `fragment ProfileFields on User {
  login
  databaseId
  avatarUrl
  url
  name
  company
  websiteUrl
  location
  email
  bio
  createdAt
  followers { totalCount }
  following { totalCount }
  gists(privacy: PUBLIC) { totalCount }
  repositories(first: %d, ownerAffiliations: OWNER, privacy: PUBLIC, orderBy: {field: STARGAZERS, direction: DESC}) {
    totalCount
    nodes { stargazerCount }
  }
  contributionsCollection {
    contributionCalendar { totalContributions }
  }
}`

type totalCount struct {
	TotalCount int `json:"totalCount"`
}

// GraphQLUser is one aliased user from a batched query
type GraphQLUser struct {
	Login        string     `json:"login"`
	DatabaseID   int64      `json:"databaseId"`
	AvatarURL    string     `json:"avatarUrl"`
	URL          string     `json:"url"`
	Name         string     `json:"name"`
	Company      string     `json:"company"`
	WebsiteURL   string     `json:"websiteUrl"`
	Location     string     `json:"location"`
	Email        string     `json:"email"`
	Bio          string     `json:"bio"`
	CreatedAt    time.Time  `json:"createdAt"`
	Followers    totalCount `json:"followers"`
	Following    totalCount `json:"following"`
	Gists        totalCount `json:"gists"`
	Repositories struct {
		TotalCount int `json:"totalCount"`
		Nodes      []struct {
			StargazerCount int `json:"stargazerCount"`
		} `json:"nodes"`
	} `json:"repositories"`
	ContributionsCollection struct {
		ContributionCalendar struct {
			TotalContributions int `json:"totalContributions"`
		} `json:"contributionCalendar"`
	} `json:"contributionsCollection"`
}

// ToProfile converts a batched record. Stars are summed over the sampled
// repositories and activity is the authoritative contribution total.
func (u GraphQLUser) ToProfile() models.ProfileDetail {
	stars := 0
	for _, node := range u.Repositories.Nodes {
		stars += max(node.StargazerCount, 0)
	}
	contributions := max(u.ContributionsCollection.ContributionCalendar.TotalContributions, 0)

	return models.ProfileDetail{
		Login:               u.Login,
		ID:                  u.DatabaseID,
		AvatarURL:           u.AvatarURL,
		HTMLURL:             u.URL,
		Name:                u.Name,
		Company:             u.Company,
		Blog:                u.WebsiteURL,
		Location:            u.Location,
		Email:               u.Email,
		Bio:                 u.Bio,
		PublicRepos:         max(u.Repositories.TotalCount, 0),
		PublicGists:         max(u.Gists.TotalCount, 0),
		Followers:           max(u.Followers.TotalCount, 0),
		Following:           max(u.Following.TotalCount, 0),
		CreatedAt:           u.CreatedAt,
		RecentActivityCount: models.IntPtr(contributions),
		ActivitySource:      models.ActivityContributions,
		TotalStars:          models.IntPtr(stars),
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   map[string]*GraphQLUser `json:"data"`
	Errors []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"errors"`
}

// buildProfilesQuery returns one aliased sub-query per handle. Handles are
// passed as variables, never spliced into the query text.
func buildProfilesQuery(handles []string, starSample int) (string, map[string]any) {
	var b strings.Builder
	vars := make(map[string]any, len(handles))

	b.WriteString("query(")
	for i := range handles {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$l%d: String!", i)
	}
	b.WriteString(") {\n")
	for i, handle := range handles {
		fmt.Fprintf(&b, "  u%d: user(login: $l%d) { ...ProfileFields }\n", i, i)
		vars[fmt.Sprintf("l%d", i)] = handle
	}
	b.WriteString("}\n")
	fmt.Fprintf(&b, profileFragment, starSample)

	return b.String(), vars
}

// QueryProfiles resolves handles with a single batched query. The result is
// keyed by lower-cased login; handles that do not resolve are absent.
func (c *Client) QueryProfiles(ctx context.Context, handles []string, starSample int, token string) (map[string]GraphQLUser, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}

	valid := make([]string, 0, len(handles))
	for _, h := range handles {
		if ValidHandle(h) {
			valid = append(valid, h)
			continue
		}
		logger.Warn("Skipping invalid handle in batched query", zap.String("handle", h))
	}
	if len(valid) == 0 {
		return map[string]GraphQLUser{}, nil
	}

	query, vars := buildProfilesQuery(valid, starSample)
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("failed to encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	logger.Debug("Running batched profile query", zap.Int("handles", len(valid)))

	resp, err := c.do(ctx, req, token)
	if err != nil {
		return nil, fmt.Errorf("batched profile query: %w", err)
	}
	defer resp.Body.Close()

	var decoded graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode graphql response: %w", err)
	}

	out := make(map[string]GraphQLUser, len(valid))
	for _, user := range decoded.Data {
		if user == nil || user.Login == "" {
			continue
		}
		out[strings.ToLower(user.Login)] = *user
	}

	if len(decoded.Errors) > 0 {
		messages := make([]string, 0, len(decoded.Errors))
		rateLimited := false
		for _, e := range decoded.Errors {
			messages = append(messages, e.Message)
			if e.Type == "RATE_LIMITED" {
				rateLimited = true
			}
		}
		if len(out) == 0 {
			if rateLimited {
				return nil, fmt.Errorf("batched profile query: %w", ErrQuotaExceeded)
			}
			return nil, &GraphQLError{Messages: messages}
		}
		logger.Debug("Batched query returned partial errors",
			zap.Int("resolved", len(out)),
			zap.Strings("errors", messages))
	}

	return out, nil
}
