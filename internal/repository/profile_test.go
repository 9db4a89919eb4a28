package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"blogger/internal/models"
	"blogger/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func strPtr(s string) *string { return &s }

func TestProfileRepository_GetByUID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewProfileRepository(db, nil)
	ctx := context.Background()

	tests := []struct {
		name         string
		uid          string
		mockBehavior func()
		wantUsername string
		wantCode     string
	}{
		{
			name: "Success",
			uid:  "u1",
			mockBehavior: func() {
				rows := sqlmock.NewRows([]string{"uid", "username", "name"}).AddRow("u1", "alice", "Alice")
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "profiles" WHERE uid = $1 LIMIT $2`)).
					WithArgs("u1", 1).
					WillReturnRows(rows)
			},
			wantUsername: "alice",
		},
		{
			name: "Not Found",
			uid:  "missing",
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "profiles" WHERE uid = $1 LIMIT $2`)).
					WithArgs("missing", 1).
					WillReturnError(gorm.ErrRecordNotFound)
			},
			wantCode: models.CodeNotFound,
		},
		{
			name: "Database Error",
			uid:  "u2",
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "profiles" WHERE uid = $1`)).
					WithArgs("u2", 1).
					WillReturnError(errors.New("connection timeout"))
			},
			wantCode: models.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockBehavior()
			profile, err := repo.GetByUID(ctx, tt.uid)

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, models.ErrorCode(err))
				assert.Nil(t, profile)
			} else if assert.NoError(t, err) {
				assert.Equal(t, tt.wantUsername, profile.Username)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestProfileRepository_FindByUsername(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewProfileRepository(db, nil)
	ctx := context.Background()

	t.Run("returns the full result set", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"uid", "username"}).AddRow("u1", "alice")
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "profiles" WHERE username = $1`)).
			WithArgs("alice").
			WillReturnRows(rows)

		profiles, err := repo.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, profiles, 1)
		assert.Equal(t, "u1", profiles[0].UID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "profiles" WHERE username = $1`)).
			WithArgs("nobody").
			WillReturnRows(sqlmock.NewRows([]string{"uid", "username"}))

		profiles, err := repo.FindByUsername(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, profiles)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure is internal", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "profiles" WHERE username = $1`)).
			WithArgs("bob").
			WillReturnError(errors.New("connection reset"))

		_, err := repo.FindByUsername(ctx, "bob")
		assert.Equal(t, models.CodeInternal, models.ErrorCode(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProfileRepository_UpsertMerge(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a missing profile", func(t *testing.T) {
		db := testutil.NewSQLiteDB(t)
		events := &testutil.ChangeRecorder{}
		repo := NewProfileRepository(db, events)

		err := repo.UpsertMerge(ctx, "u1", models.ProfilePatch{
			Name:     strPtr("Alice"),
			Username: strPtr("alice"),
			Bio:      strPtr(""),
		})
		require.NoError(t, err)

		profile, err := repo.GetByUID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "alice", profile.Username)
		assert.Equal(t, "Alice", profile.Name)

		changes := events.Changes()
		require.Len(t, changes, 1)
		assert.Equal(t, models.ChangeAdded, changes[0].Kind)
		assert.Equal(t, models.CollectionUsers, changes[0].Collection)
	})

	t.Run("leaves fields outside the patch untouched", func(t *testing.T) {
		db := testutil.NewSQLiteDB(t)
		repo := NewProfileRepository(db, nil)
		require.NoError(t, repo.Create(ctx, &models.UserProfile{
			UID: "u1", Username: "alice", Name: "Alice", Bio: "old bio", ProfileImage: "/media/a.jpg", Followers: 7,
		}))

		require.NoError(t, repo.UpsertMerge(ctx, "u1", models.ProfilePatch{Name: strPtr("Alice B.")}))

		profile, err := repo.GetByUID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "Alice B.", profile.Name)
		assert.Equal(t, "old bio", profile.Bio)
		assert.Equal(t, "/media/a.jpg", profile.ProfileImage)
		assert.Equal(t, 7, profile.Followers)
	})

	t.Run("rename publishes the previous username", func(t *testing.T) {
		db := testutil.NewSQLiteDB(t)
		events := &testutil.ChangeRecorder{}
		repo := NewProfileRepository(db, events)
		require.NoError(t, repo.Create(ctx, &models.UserProfile{UID: "u1", Username: "alice"}))

		require.NoError(t, repo.UpsertMerge(ctx, "u1", models.ProfilePatch{Username: strPtr("alice2")}))

		changes := events.Changes()
		require.Len(t, changes, 2)
		last := changes[1]
		assert.Equal(t, models.ChangeModified, last.Kind)
		assert.Equal(t, "alice2", last.Key("username"))
		assert.Equal(t, "alice", last.Key("previous_username"))
	})

	t.Run("username held by another profile is USERNAME_TAKEN", func(t *testing.T) {
		db := testutil.NewSQLiteDB(t)
		repo := NewProfileRepository(db, nil)
		require.NoError(t, repo.Create(ctx, &models.UserProfile{UID: "u1", Username: "alice"}))
		require.NoError(t, repo.Create(ctx, &models.UserProfile{UID: "u2", Username: "bob"}))

		err := repo.UpsertMerge(ctx, "u1", models.ProfilePatch{Username: strPtr("bob")})
		assert.Equal(t, models.CodeUsernameTaken, models.ErrorCode(err))

		profile, err := repo.GetByUID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "alice", profile.Username)
	})

	t.Run("empty uid is rejected", func(t *testing.T) {
		repo := NewProfileRepository(testutil.NewSQLiteDB(t), nil)
		err := repo.UpsertMerge(ctx, "", models.ProfilePatch{Name: strPtr("x")})
		assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
	})
}

func TestProfileRepository_Create_Conflicts(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)
	repo := NewProfileRepository(db, nil)

	require.NoError(t, repo.Create(ctx, &models.UserProfile{UID: "u1", Username: "alice"}))

	err := repo.Create(ctx, &models.UserProfile{UID: "u2", Username: "alice"})
	assert.Equal(t, models.CodeUsernameTaken, models.ErrorCode(err))

	err = repo.Create(ctx, &models.UserProfile{UID: "u1", Username: "other"})
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
}

func TestIsUniqueConstraintError(t *testing.T) {
	t.Parallel()
	assert.False(t, isUniqueConstraintError(nil))
	assert.True(t, isUniqueConstraintError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_profiles_username" (SQLSTATE 23505)`)))
	assert.True(t, isUsernameConflict(errors.New("UNIQUE constraint failed: profiles.username")))
	assert.False(t, isUsernameConflict(errors.New("UNIQUE constraint failed: profiles.uid")))
	assert.False(t, isUniqueConstraintError(errors.New("connection refused")))
}
