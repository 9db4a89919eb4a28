package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"blogger/internal/models"
	"blogger/internal/repository"
	"blogger/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMockServer() (*Server, *MockProfileRepository, *MockPostRepository) {
	profiles := new(MockProfileRepository)
	posts := new(MockPostRepository)
	s := &Server{
		profileRepo: profiles,
		postRepo:    posts,
		postService: service.NewPostService(posts, profiles, nil),
	}
	return s, profiles, posts
}

func TestGetUserProfile(t *testing.T) {
	app := fiber.New()
	s, profiles, posts := newMockServer()
	app.Get("/users/:username", s.GetUserProfile)

	profiles.On("FindByUsername", mock.Anything, "alice").
		Return([]models.UserProfile{{UID: "u1", Username: "alice", Followers: 3}}, nil)
	posts.On("CountByAuthor", mock.Anything, "alice").Return(int64(7), nil)
	profiles.On("FindByUsername", mock.Anything, "ghost").Return([]models.UserProfile{}, nil)
	profiles.On("FindByUsername", mock.Anything, "broken").Return(nil, errors.New("connection reset"))

	tests := []struct {
		name           string
		username       string
		expectedStatus int
	}{
		{"Success", "alice", http.StatusOK},
		{"Not Found", "ghost", http.StatusNotFound},
		{"Repository failure", "broken", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users/"+tt.username, nil)
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}

	t.Run("stats are derived", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/users/alice", nil))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		view := decode[models.ProfileView](t, resp)
		assert.Equal(t, int64(7), view.Stats.Posts)
		assert.Equal(t, 3, view.Stats.Followers)
	})
}

func TestGetMyProfile(t *testing.T) {
	app := fiber.New()
	s, profiles, _ := newMockServer()

	// Middleware to set userID in Locals
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userID", c.Get("X-Test-User"))
		return c.Next()
	})
	app.Get("/users/me", s.GetMyProfile)

	profiles.On("GetByUID", mock.Anything, "u1").Return(&models.UserProfile{UID: "u1", Username: "me"}, nil)
	profiles.On("GetByUID", mock.Anything, "u2").Return(nil, models.NewNotFoundError("Profile", "u2"))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("X-Test-User", "u1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("X-Test-User", "u2")
	resp, err = app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	profiles.AssertExpectations(t)
}

func TestGetFeed(t *testing.T) {
	app := fiber.New()
	s, _, posts := newMockServer()
	app.Get("/posts", s.GetFeed)

	posts.On("List", mock.Anything, repository.PostQuery{Limit: defaultLimit}).
		Return([]models.Post{{ID: 2, Text: "b"}, {ID: 1, Text: "a"}}, nil)
	posts.On("List", mock.Anything, repository.PostQuery{AuthorUsername: "bob", Limit: maxLimit}).
		Return([]models.Post{}, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/posts", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.Post](t, resp), 2)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/posts?author=bob&limit=5000", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	posts.AssertExpectations(t)
}

func TestCreatePost_WithoutPrincipal(t *testing.T) {
	app := fiber.New()
	profiles := new(MockProfileRepository)
	posts := new(MockPostRepository)
	s := &Server{postService: service.NewPostService(posts, profiles, noPrincipal{})}
	app.Post("/posts", s.CreatePost)

	req := httptest.NewRequest(http.MethodPost, "/posts", stringsReader(`{"text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	posts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewUnauthenticatedError(), http.StatusUnauthorized},
		{models.NewUnauthorizedError("Invalid credentials"), http.StatusUnauthorized},
		{models.NewValidationError("Name is required"), http.StatusBadRequest},
		{models.NewUsernameTakenError("bob"), http.StatusConflict},
		{models.NewAccountExistsError(), http.StatusConflict},
		{models.NewStorageError(errors.New("disk")), http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", models.NewWriteError("profile", errors.New("db"))), http.StatusBadGateway},
		{models.NewNotFoundError("Profile", "x"), http.StatusNotFound},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mapServiceError(tt.err), "%v", tt.err)
	}
}

func TestBearerToken(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(bearerToken(c)) })

	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"bearer header", "Bearer abc.def", "", "abc.def"},
		{"case-insensitive scheme", "bearer abc", "", "abc"},
		{"other scheme", "Basic abc", "", ""},
		{"query fallback", "", "?token=xyz", "xyz"},
		{"header wins", "Bearer abc", "?token=xyz", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			body := readBody(t, resp)
			assert.Equal(t, tt.want, body)
		})
	}
}

func TestClampLimitAndMediaPrefix(t *testing.T) {
	assert.Equal(t, defaultLimit, clampLimit(""))
	assert.Equal(t, defaultLimit, clampLimit("-3"))
	assert.Equal(t, defaultLimit, clampLimit("ten"))
	assert.Equal(t, 7, clampLimit("7"))
	assert.Equal(t, maxLimit, clampLimit("1000"))

	assert.Equal(t, "/media", mediaRoutePrefix(""))
	assert.Equal(t, "/media", mediaRoutePrefix("/media"))
	assert.Equal(t, "/static/blobs", mediaRoutePrefix("https://cdn.example.com/static/blobs"))
	assert.Equal(t, "/files", mediaRoutePrefix("files"))
}
