package service

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/vilaca/reciprocity-bot/internal/domain"
)

// mockClient is a test double for api.Client that records every call.
type mockClient struct {
	mu sync.Mutex

	searchFunc      func(ctx context.Context, query string, perPage, page int) ([]domain.Candidate, error)
	starFunc        func(ctx context.Context, fullName string) error
	unstarFunc      func(ctx context.Context, fullName string) error
	isFollowingFunc func(ctx context.Context, follower, target string) (bool, error)
	followFunc      func(ctx context.Context, login string) error
	unfollowFunc    func(ctx context.Context, login string) error
	getUserFunc     func(ctx context.Context, login string) (*domain.OwnerProfile, error)
	hasReadmeFunc   func(ctx context.Context, fullName string) (bool, error)

	searches   []searchCall
	stars      []string
	unstars    []string
	checks     []string
	follows    []string
	unfollows  []string
	userLooks  []string
	readmeLook []string
}

type searchCall struct {
	query   string
	perPage int
	page    int
}

func (m *mockClient) SearchRepositories(ctx context.Context, query string, perPage, page int) ([]domain.Candidate, error) {
	m.mu.Lock()
	m.searches = append(m.searches, searchCall{query: query, perPage: perPage, page: page})
	m.mu.Unlock()
	if m.searchFunc != nil {
		return m.searchFunc(ctx, query, perPage, page)
	}
	return []domain.Candidate{}, nil
}

func (m *mockClient) StarRepository(ctx context.Context, fullName string) error {
	m.mu.Lock()
	m.stars = append(m.stars, fullName)
	m.mu.Unlock()
	if m.starFunc != nil {
		return m.starFunc(ctx, fullName)
	}
	return nil
}

func (m *mockClient) UnstarRepository(ctx context.Context, fullName string) error {
	m.mu.Lock()
	m.unstars = append(m.unstars, fullName)
	m.mu.Unlock()
	if m.unstarFunc != nil {
		return m.unstarFunc(ctx, fullName)
	}
	return nil
}

func (m *mockClient) IsFollowing(ctx context.Context, follower, target string) (bool, error) {
	m.mu.Lock()
	m.checks = append(m.checks, follower)
	m.mu.Unlock()
	if m.isFollowingFunc != nil {
		return m.isFollowingFunc(ctx, follower, target)
	}
	return false, nil
}

func (m *mockClient) FollowUser(ctx context.Context, login string) error {
	m.mu.Lock()
	m.follows = append(m.follows, login)
	m.mu.Unlock()
	if m.followFunc != nil {
		return m.followFunc(ctx, login)
	}
	return nil
}

func (m *mockClient) UnfollowUser(ctx context.Context, login string) error {
	m.mu.Lock()
	m.unfollows = append(m.unfollows, login)
	m.mu.Unlock()
	if m.unfollowFunc != nil {
		return m.unfollowFunc(ctx, login)
	}
	return nil
}

func (m *mockClient) GetUser(ctx context.Context, login string) (*domain.OwnerProfile, error) {
	m.mu.Lock()
	m.userLooks = append(m.userLooks, login)
	m.mu.Unlock()
	if m.getUserFunc != nil {
		return m.getUserFunc(ctx, login)
	}
	return &domain.OwnerProfile{Login: login}, nil
}

func (m *mockClient) HasReadme(ctx context.Context, fullName string) (bool, error) {
	m.mu.Lock()
	m.readmeLook = append(m.readmeLook, fullName)
	m.mu.Unlock()
	if m.hasReadmeFunc != nil {
		return m.hasReadmeFunc(ctx, fullName)
	}
	return true, nil
}

// mockStore is a test double for Persister.
type mockStore struct {
	mu      sync.Mutex
	saveErr error
	saves   [][]domain.TrackedEngagement
}

func (m *mockStore) Save(ctx context.Context, records []domain.TrackedEngagement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, records)
	return m.saveErr
}

func (m *mockStore) last() []domain.TrackedEngagement {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return nil
	}
	return m.saves[len(m.saves)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func candidate(owner, name string) domain.Candidate {
	return domain.Candidate{FullName: owner + "/" + name, Name: name, OwnerLogin: owner}
}
