package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"blogger/internal/models"
	"blogger/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	events := &testutil.ChangeRecorder{}
	repo := NewPostRepository(db, events).(*postRepository)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, p := range []models.Post{
		{AuthorUID: "u1", AuthorUsername: "alice", Text: "first", LikeCount: 99},
		{AuthorUID: "u2", AuthorUsername: "bob", Text: "second"},
		{AuthorUID: "u1", AuthorUsername: "alice", Text: "third"},
	} {
		post := p
		require.NoError(t, repo.Create(ctx, &post))
		assert.NotZero(t, post.ID)
		assert.Zero(t, post.LikeCount, "counters start at zero")
	}

	feed, err := repo.List(ctx, PostQuery{})
	require.NoError(t, err)
	require.Len(t, feed, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{feed[0].Text, feed[1].Text, feed[2].Text})

	alice, err := repo.List(ctx, PostQuery{AuthorUsername: "alice", Limit: 1})
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, "third", alice[0].Text)

	count, err := repo.CountByAuthor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	changes := events.Changes()
	require.Len(t, changes, 3)
	assert.Equal(t, models.CollectionPosts, changes[0].Collection)
	assert.Equal(t, "alice", changes[0].Key("author_username"))
}

func TestPostRepository_ListOrdersTiesByID(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db, nil).(*postRepository)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	a := &models.Post{AuthorUID: "u1", AuthorUsername: "alice", Text: "a"}
	b := &models.Post{AuthorUID: "u1", AuthorUsername: "alice", Text: "b"}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	posts, err := repo.List(ctx, PostQuery{})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, b.ID, posts[0].ID)
}

func TestPostRepository_ListQuery(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db, nil)
	ctx := context.Background()

	t.Run("author filter and default limit", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "author_username", "text"}).AddRow(2, "alice", "hi")
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE author_username = $1 ORDER BY created_at DESC, id DESC LIMIT $2`)).
			WithArgs("alice", 20).
			WillReturnRows(rows)

		posts, err := repo.List(ctx, PostQuery{AuthorUsername: "alice"})
		require.NoError(t, err)
		assert.Len(t, posts, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("limit is capped", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" ORDER BY created_at DESC, id DESC LIMIT $1`)).
			WithArgs(100).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.List(ctx, PostQuery{Limit: 5000})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("count failure is internal", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "posts" WHERE author_username = $1`)).
			WithArgs("alice").
			WillReturnError(errors.New("timeout"))

		_, err := repo.CountByAuthor(ctx, "alice")
		assert.Equal(t, models.CodeInternal, models.ErrorCode(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNormalizeLimit(t *testing.T) {
	t.Parallel()
	assert.Equal(t, defaultListLimit, normalizeLimit(0))
	assert.Equal(t, defaultListLimit, normalizeLimit(-3))
	assert.Equal(t, 42, normalizeLimit(42))
	assert.Equal(t, maxListLimit, normalizeLimit(1000))
}
