package service

import (
	"context"
	"sync"

	"blogger/internal/models"
	"blogger/internal/repository"
)

type profileRepoStub struct {
	mu    sync.Mutex
	calls map[string]int

	getByUIDFn       func(context.Context, string) (*models.UserProfile, error)
	findByUsernameFn func(context.Context, string) ([]models.UserProfile, error)
	upsertMergeFn    func(context.Context, string, models.ProfilePatch) error
	createFn         func(context.Context, *models.UserProfile) error
}

func (s *profileRepoStub) count(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[name]++
}

func (s *profileRepoStub) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *profileRepoStub) GetByUID(ctx context.Context, uid string) (*models.UserProfile, error) {
	s.count("GetByUID")
	return s.getByUIDFn(ctx, uid)
}
func (s *profileRepoStub) FindByUsername(ctx context.Context, username string) ([]models.UserProfile, error) {
	s.count("FindByUsername")
	return s.findByUsernameFn(ctx, username)
}
func (s *profileRepoStub) UpsertMerge(ctx context.Context, uid string, patch models.ProfilePatch) error {
	s.count("UpsertMerge")
	return s.upsertMergeFn(ctx, uid, patch)
}
func (s *profileRepoStub) Create(ctx context.Context, profile *models.UserProfile) error {
	s.count("Create")
	return s.createFn(ctx, profile)
}

func noopProfileRepo() *profileRepoStub {
	return &profileRepoStub{
		getByUIDFn: func(_ context.Context, uid string) (*models.UserProfile, error) {
			return nil, models.NewNotFoundError("Profile", uid)
		},
		findByUsernameFn: func(context.Context, string) ([]models.UserProfile, error) { return nil, nil },
		upsertMergeFn:    func(context.Context, string, models.ProfilePatch) error { return nil },
		createFn:         func(context.Context, *models.UserProfile) error { return nil },
	}
}

type postRepoStub struct {
	createFn        func(context.Context, *models.Post) error
	listFn          func(context.Context, repository.PostQuery) ([]models.Post, error)
	countByAuthorFn func(context.Context, string) (int64, error)
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postRepoStub) List(ctx context.Context, q repository.PostQuery) ([]models.Post, error) {
	return s.listFn(ctx, q)
}
func (s *postRepoStub) CountByAuthor(ctx context.Context, username string) (int64, error) {
	return s.countByAuthorFn(ctx, username)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn:        func(context.Context, *models.Post) error { return nil },
		listFn:          func(context.Context, repository.PostQuery) ([]models.Post, error) { return nil, nil },
		countByAuthorFn: func(context.Context, string) (int64, error) { return 0, nil },
	}
}

type blobStub struct {
	uploads  []string
	resolves int

	uploadErr  error
	resolveErr error
}

func (b *blobStub) Upload(_ context.Context, path string, _ []byte) error {
	b.uploads = append(b.uploads, path)
	return b.uploadErr
}

func (b *blobStub) ResolveURL(_ context.Context, path string) (string, error) {
	b.resolves++
	if b.resolveErr != nil {
		return "", b.resolveErr
	}
	return "/media/" + path + "?v=abc123", nil
}

type sessionStub struct {
	principal *models.Principal

	currentCalls int
	updates      []models.PrincipalAttributes
	updateErr    error
}

func (s *sessionStub) Current(context.Context) (*models.Principal, error) {
	s.currentCalls++
	return s.principal, nil
}

func (s *sessionStub) UpdateAttributes(_ context.Context, _ string, attrs models.PrincipalAttributes) error {
	s.updates = append(s.updates, attrs)
	return s.updateErr
}

func signedIn(uid string) *sessionStub {
	return &sessionStub{principal: &models.Principal{UID: uid}}
}
