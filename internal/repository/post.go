package repository

import (
	"context"
	"strconv"
	"time"

	"blogger/internal/models"

	"gorm.io/gorm"
)

// PostQuery filters and bounds a post listing. An empty AuthorUsername lists every post.
type PostQuery struct {
	AuthorUsername string
	Limit          int
}

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	List(ctx context.Context, q PostQuery) ([]models.Post, error)
	CountByAuthor(ctx context.Context, username string) (int64, error)
}

type postRepository struct {
	db        *gorm.DB
	publisher ChangePublisher
	now       func() time.Time
}

// NewPostRepository returns a new PostRepository implementation.
// publisher may be nil.
func NewPostRepository(db *gorm.DB, publisher ChangePublisher) PostRepository {
	return &postRepository{db: db, publisher: publisher, now: time.Now}
}

// Create stores a post. The server assigns CreatedAt and zeroes the counters.
func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	post.CreatedAt = r.now().UTC()
	post.LikeCount = 0
	post.CommentCount = 0

	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}

	publishChange(ctx, r.publisher, models.Change{
		Collection: models.CollectionPosts,
		Kind:       models.ChangeAdded,
		DocID:      strconv.FormatUint(uint64(post.ID), 10),
		Keys: map[string]string{
			"author_username": post.AuthorUsername,
			"author_uid":      post.AuthorUID,
		},
	})
	return nil
}

// List returns posts newest first; ties on CreatedAt break on id.
func (r *postRepository) List(ctx context.Context, q PostQuery) ([]models.Post, error) {
	var posts []models.Post
	query := r.db.WithContext(ctx).Model(&models.Post{})
	if q.AuthorUsername != "" {
		query = query.Where("author_username = ?", q.AuthorUsername)
	}
	if err := query.Order("created_at DESC, id DESC").Limit(normalizeLimit(q.Limit)).Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) CountByAuthor(ctx context.Context, username string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("author_username = ?", username).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}
