package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"blogger/internal/models"
	"blogger/internal/repository"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProfileRepository is a mock implementation of ProfileRepository
type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) GetByUID(ctx context.Context, uid string) (*models.UserProfile, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserProfile), args.Error(1)
}

func (m *MockProfileRepository) FindByUsername(ctx context.Context, username string) ([]models.UserProfile, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UserProfile), args.Error(1)
}

func (m *MockProfileRepository) UpsertMerge(ctx context.Context, uid string, patch models.ProfilePatch) error {
	args := m.Called(ctx, uid, patch)
	return args.Error(0)
}

func (m *MockProfileRepository) Create(ctx context.Context, profile *models.UserProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

// MockPostRepository is a mock implementation of PostRepository
type MockPostRepository struct {
	mock.Mock
}

func (m *MockPostRepository) Create(ctx context.Context, post *models.Post) error {
	args := m.Called(ctx, post)
	return args.Error(0)
}

func (m *MockPostRepository) List(ctx context.Context, q repository.PostQuery) ([]models.Post, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Post), args.Error(1)
}

func (m *MockPostRepository) CountByAuthor(ctx context.Context, username string) (int64, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(int64), args.Error(1)
}

type noPrincipal struct{}

func (noPrincipal) Current(context.Context) (*models.Principal, error) { return nil, nil }

func stringsReader(s string) io.Reader { return strings.NewReader(s) }

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
