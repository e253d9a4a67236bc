package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vilaca/reciprocity-bot/internal/api"
	"github.com/vilaca/reciprocity-bot/internal/domain"
)

// ErrMalformedSearch is returned when a search response has no items field.
var ErrMalformedSearch = errors.New("search response missing items")

// Requester is the transport the client issues calls through.
// *api.RequestClient satisfies it.
type Requester interface {
	Do(ctx context.Context, method, path string, query url.Values) (*api.Response, error)
}

// Client implements api.Client for the GitHub REST API.
type Client struct {
	requester Requester
}

// NewClient creates a new GitHub client on top of a rate-limited requester.
func NewClient(requester Requester) *Client {
	return &Client{requester: requester}
}

// SearchRepositories runs a repository search sorted by most recent update.
func (c *Client) SearchRepositories(ctx context.Context, query string, perPage, page int) ([]domain.Candidate, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "updated")
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("page", strconv.Itoa(page))

	resp, err := c.requester.Do(ctx, http.MethodGet, "/search/repositories", params)
	if err != nil {
		return nil, fmt.Errorf("failed to search repositories: %w", err)
	}

	var result githubSearchResponse
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to search repositories: %w", err)
	}
	if result.Items == nil {
		return nil, ErrMalformedSearch
	}

	return convertCandidates(*result.Items), nil
}

// StarRepository stars fullName. Already-starred repositories succeed too.
func (c *Client) StarRepository(ctx context.Context, fullName string) error {
	path, err := repoPath("/user/starred", fullName)
	if err != nil {
		return err
	}
	if _, err := c.requester.Do(ctx, http.MethodPut, path, nil); err != nil {
		return fmt.Errorf("failed to star %s: %w", fullName, err)
	}
	return nil
}

// UnstarRepository removes the star from fullName.
func (c *Client) UnstarRepository(ctx context.Context, fullName string) error {
	path, err := repoPath("/user/starred", fullName)
	if err != nil {
		return err
	}
	if _, err := c.requester.Do(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("failed to unstar %s: %w", fullName, err)
	}
	return nil
}

// IsFollowing reports whether follower follows target.
// GitHub answers 204 for yes and 404 for no.
func (c *Client) IsFollowing(ctx context.Context, follower, target string) (bool, error) {
	path := fmt.Sprintf("/users/%s/following/%s", url.PathEscape(follower), url.PathEscape(target))

	resp, err := c.requester.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		if api.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check whether %s follows %s: %w", follower, target, err)
	}
	return resp.StatusCode == http.StatusNoContent, nil
}

// FollowUser follows login.
func (c *Client) FollowUser(ctx context.Context, login string) error {
	if _, err := c.requester.Do(ctx, http.MethodPut, "/user/following/"+url.PathEscape(login), nil); err != nil {
		return fmt.Errorf("failed to follow %s: %w", login, err)
	}
	return nil
}

// UnfollowUser unfollows login. Unfollowing someone not followed succeeds.
func (c *Client) UnfollowUser(ctx context.Context, login string) error {
	if _, err := c.requester.Do(ctx, http.MethodDelete, "/user/following/"+url.PathEscape(login), nil); err != nil {
		return fmt.Errorf("failed to unfollow %s: %w", login, err)
	}
	return nil
}

// GetUser retrieves the public profile of login.
func (c *Client) GetUser(ctx context.Context, login string) (*domain.OwnerProfile, error) {
	resp, err := c.requester.Do(ctx, http.MethodGet, "/users/"+url.PathEscape(login), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", login, err)
	}

	var user githubUser
	if err := resp.Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", login, err)
	}

	return &domain.OwnerProfile{
		Login:     user.Login,
		Name:      user.Name,
		Followers: user.Followers,
		Following: user.Following,
		HTMLURL:   user.HTMLURL,
	}, nil
}

// HasReadme reports whether the repository has a README.
func (c *Client) HasReadme(ctx context.Context, fullName string) (bool, error) {
	path, err := repoPath("/repos", fullName)
	if err != nil {
		return false, err
	}

	if _, err := c.requester.Do(ctx, http.MethodGet, path+"/readme", nil); err != nil {
		if api.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get readme for %s: %w", fullName, err)
	}
	return true, nil
}

// repoPath joins prefix with an escaped owner/name pair.
func repoPath(prefix, fullName string) (string, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("invalid repository name %q", fullName)
	}
	return fmt.Sprintf("%s/%s/%s", prefix, url.PathEscape(owner), url.PathEscape(name)), nil
}

// convertCandidates converts GitHub repositories to domain models.
func convertCandidates(repos []githubRepository) []domain.Candidate {
	candidates := make([]domain.Candidate, 0, len(repos))
	for _, repo := range repos {
		if repo.FullName == "" || repo.Owner.Login == "" {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			FullName:   repo.FullName,
			Name:       repo.Name,
			OwnerLogin: repo.Owner.Login,
			Stars:      repo.StargazersCount,
			PushedAt:   repo.PushedAt,
			HTMLURL:    repo.HTMLURL,
		})
	}
	return candidates
}

// GitHub API response types
type githubSearchResponse struct {
	TotalCount int                 `json:"total_count"`
	Items      *[]githubRepository `json:"items"`
}

type githubRepository struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	FullName        string      `json:"full_name"`
	HTMLURL         string      `json:"html_url"`
	StargazersCount int         `json:"stargazers_count"`
	PushedAt        time.Time   `json:"pushed_at"`
	Owner           githubOwner `json:"owner"`
}

type githubOwner struct {
	Login string `json:"login"`
}

type githubUser struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	Followers int    `json:"followers"`
	Following int    `json:"following"`
	HTMLURL   string `json:"html_url"`
}
