package service

import (
	"context"
	"strings"

	"blogger/internal/models"
	"blogger/internal/repository"
	"blogger/internal/validation"
)

type PostService struct {
	posts    repository.PostRepository
	profiles repository.ProfileRepository
	session  PrincipalSource
}

func NewPostService(
	posts repository.PostRepository,
	profiles repository.ProfileRepository,
	session PrincipalSource,
) *PostService {
	return &PostService{
		posts:    posts,
		profiles: profiles,
		session:  session,
	}
}

// CreatePost publishes text as the caller. The author fields are copied from
// the caller's profile as it is now and are not updated by later edits.
func (s *PostService) CreatePost(ctx context.Context, text string) (*models.Post, error) {
	if err := validation.ValidatePostText(text); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	principal, err := s.session.Current(ctx)
	if err != nil || principal == nil {
		return nil, models.NewUnauthenticatedError()
	}

	author, err := s.profiles.GetByUID(ctx, principal.UID)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		AuthorUID:      author.UID,
		AuthorUsername: author.Username,
		AuthorName:     author.Name,
		AuthorImage:    author.ProfileImage,
		Text:           strings.TrimSpace(text),
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// ListPosts returns posts newest first, optionally filtered by author username.
func (s *PostService) ListPosts(ctx context.Context, q repository.PostQuery) ([]models.Post, error) {
	return s.posts.List(ctx, q)
}

func (s *PostService) ListFeed(ctx context.Context, limit int) ([]models.Post, error) {
	return s.posts.List(ctx, repository.PostQuery{Limit: limit})
}

func (s *PostService) ListByAuthor(ctx context.Context, username string, limit int) ([]models.Post, error) {
	if strings.TrimSpace(username) == "" {
		return nil, models.NewValidationError("Username is required")
	}
	return s.posts.List(ctx, repository.PostQuery{AuthorUsername: username, Limit: limit})
}

// GetProfileView returns the profile holding username with its derived stats.
func (s *PostService) GetProfileView(ctx context.Context, username string) (*models.ProfileView, error) {
	if strings.TrimSpace(username) == "" {
		return nil, models.NewValidationError("Username is required")
	}

	holders, err := s.profiles.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(holders) == 0 {
		return nil, models.NewNotFoundError("Profile", username)
	}
	profile := holders[0]

	count, err := s.posts.CountByAuthor(ctx, username)
	if err != nil {
		return nil, err
	}

	return &models.ProfileView{
		Profile: profile,
		Stats: models.ProfileStats{
			Posts:     count,
			Followers: profile.Followers,
			Following: profile.Following,
		},
	}, nil
}
