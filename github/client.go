package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"devrank/logger"
	"devrank/models"
)

const (
	defaultBaseURL    = "https://api.github.com"
	defaultGraphQLURL = "https://api.github.com/graphql"
	acceptHeader      = "application/vnd.github.v3+json"
	userAgent         = "devrank/1.0"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,38}$`)

// ValidHandle reports whether handle matches the platform login grammar
func ValidHandle(handle string) bool {
	return handlePattern.MatchString(handle)
}

// RateLimit represents GitHub's rate limit information
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Options configures a Client
type Options struct {
	BaseURL           string
	GraphQLURL        string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client talks to the REST and GraphQL endpoints. It holds no credential;
// every call takes the token by value.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	graphqlURL *url.URL
	limiter    *rate.Limiter
}

// SearchResult is the decoded user search response
type SearchResult struct {
	TotalCount        int                      `json:"total_count"`
	IncompleteResults bool                     `json:"incomplete_results"`
	Items             []models.IdentitySummary `json:"items"`
}

// UserResponse is the basic record returned by /users/{handle}
type UserResponse struct {
	Login       string    `json:"login"`
	ID          int64     `json:"id"`
	AvatarURL   string    `json:"avatar_url"`
	HTMLURL     string    `json:"html_url"`
	Name        string    `json:"name"`
	Company     string    `json:"company"`
	Blog        string    `json:"blog"`
	Location    string    `json:"location"`
	Email       string    `json:"email"`
	Bio         string    `json:"bio"`
	PublicRepos int       `json:"public_repos"`
	PublicGists int       `json:"public_gists"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToProfile converts the basic record; activity and stars are left unset
func (u UserResponse) ToProfile() models.ProfileDetail {
	return models.ProfileDetail{
		Login:       u.Login,
		ID:          u.ID,
		AvatarURL:   u.AvatarURL,
		HTMLURL:     u.HTMLURL,
		Name:        u.Name,
		Company:     u.Company,
		Blog:        u.Blog,
		Location:    u.Location,
		Email:       u.Email,
		Bio:         u.Bio,
		PublicRepos: max(u.PublicRepos, 0),
		PublicGists: max(u.PublicGists, 0),
		Followers:   max(u.Followers, 0),
		Following:   max(u.Following, 0),
		CreatedAt:   u.CreatedAt,
	}
}

// Event is one entry of the public events feed
type Event struct {
	Type    string `json:"type"`
	Payload struct {
		Size int `json:"size"`
	} `json:"payload"`
}

// RepoResponse is one owned repository
type RepoResponse struct {
	Name            string `json:"name"`
	StargazersCount int    `json:"stargazers_count"`
	Fork            bool   `json:"fork"`
}

// NewClient creates a client. Empty URLs fall back to the public endpoints.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.GraphQLURL == "" {
		opts.GraphQLURL = defaultGraphQLURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", opts.BaseURL, err)
	}
	graphqlURL, err := url.Parse(opts.GraphQLURL)
	if err != nil {
		return nil, fmt.Errorf("invalid graphql url %q: %w", opts.GraphQLURL, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = max(1, int(opts.RequestsPerSecond))
	}

	logger.Info("Initializing GitHub client",
		zap.String("base_url", baseURL.String()),
		zap.String("graphql_url", graphqlURL.String()),
		zap.Float64("requests_per_second", opts.RequestsPerSecond))

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		graphqlURL: graphqlURL,
		limiter:    rate.NewLimiter(limit, burst),
	}, nil
}

// SearchUsers runs one location-scoped user search
func (c *Client) SearchUsers(ctx context.Context, location string, sort models.SortDimension, page, perPage int, token string) (*SearchResult, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf(`location:"%s"`, strings.ReplaceAll(location, `"`, "")))
	q.Set("sort", string(sort))
	q.Set("order", "desc")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))

	logger.Info("Searching users",
		zap.String("location", location),
		zap.String("sort", string(sort)),
		zap.Int("page", page))

	var result SearchResult
	if err := c.get(ctx, "/search/users", q, token, &result); err != nil {
		return nil, fmt.Errorf("search users in %q: %w", location, err)
	}

	logger.Info("Search completed",
		zap.String("location", location),
		zap.Int("total_count", result.TotalCount),
		zap.Int("items", len(result.Items)),
		zap.Bool("incomplete_results", result.IncompleteResults))

	return &result, nil
}

// FetchUser fetches the basic record for handle
func (c *Client) FetchUser(ctx context.Context, handle, token string) (*UserResponse, error) {
	if !ValidHandle(handle) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}

	var user UserResponse
	if err := c.get(ctx, "/users/"+url.PathEscape(handle), nil, token, &user); err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", handle, err)
	}
	return &user, nil
}

// FetchEvents fetches up to perPage recent public events for handle
func (c *Client) FetchEvents(ctx context.Context, handle string, perPage int, token string) ([]Event, error) {
	if !ValidHandle(handle) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}

	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage))

	var events []Event
	if err := c.get(ctx, "/users/"+url.PathEscape(handle)+"/events", q, token, &events); err != nil {
		return nil, fmt.Errorf("fetch events for %s: %w", handle, err)
	}
	return events, nil
}

// FetchOwnedRepos fetches up to perPage owned repositories, most recently pushed first
func (c *Client) FetchOwnedRepos(ctx context.Context, handle string, perPage int, token string) ([]RepoResponse, error) {
	if !ValidHandle(handle) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}

	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("type", "owner")
	q.Set("sort", "pushed")

	var repos []RepoResponse
	if err := c.get(ctx, "/users/"+url.PathEscape(handle)+"/repos", q, token, &repos); err != nil {
		return nil, fmt.Errorf("fetch repos for %s: %w", handle, err)
	}
	return repos, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, token string, out any) error {
	reqURL := c.baseURL.JoinPath(path)
	if query != nil {
		reqURL.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)

	resp, err := c.do(ctx, req, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// do paces, authenticates, and sends req. Non-2xx responses are closed and
// mapped onto the error taxonomy.
func (c *Client) do(ctx context.Context, req *http.Request, token string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectivity, err)
	}

	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("Request failed",
			zap.Error(err),
			zap.String("url", req.URL.Redacted()))
		return nil, fmt.Errorf("%w: %w", ErrConnectivity, err)
	}

	rl := parseRateLimit(resp)
	logger.Debug("GitHub response",
		zap.String("url", req.URL.Redacted()),
		zap.Int("status_code", resp.StatusCode),
		zap.Int("rate_remaining", rl.Remaining))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		logger.Warn("Rate limit exceeded",
			zap.Int("status_code", resp.StatusCode),
			zap.Int("limit", rl.Limit),
			zap.Time("reset_time", rl.Reset))
		return nil, fmt.Errorf("%w (status %d)", ErrQuotaExceeded, resp.StatusCode)
	}

	apiErr := newAPIError(resp)
	logger.Warn("GitHub API error",
		zap.Int("status_code", apiErr.StatusCode),
		zap.String("reason", apiErr.Reason),
		zap.String("url", req.URL.Redacted()))
	return nil, apiErr
}

// parseRateLimit parses rate limit information from response headers
func parseRateLimit(resp *http.Response) RateLimit {
	limit, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))
	remaining, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	reset, _ := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)

	return RateLimit{
		Limit:     limit,
		Remaining: remaining,
		Reset:     time.Unix(reset, 0),
	}
}
