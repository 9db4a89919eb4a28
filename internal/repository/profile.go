package repository

import (
	"context"
	"errors"
	"time"

	"blogger/internal/cache"
	"blogger/internal/models"

	"gorm.io/gorm"
)

// ProfileRepository is the identity store: profile documents keyed by uid.
type ProfileRepository interface {
	GetByUID(ctx context.Context, uid string) (*models.UserProfile, error)
	FindByUsername(ctx context.Context, username string) ([]models.UserProfile, error)
	UpsertMerge(ctx context.Context, uid string, patch models.ProfilePatch) error
	Create(ctx context.Context, profile *models.UserProfile) error
}

type profileRepository struct {
	db        *gorm.DB
	publisher ChangePublisher
}

// NewProfileRepository returns a new ProfileRepository implementation.
// publisher may be nil.
func NewProfileRepository(db *gorm.DB, publisher ChangePublisher) ProfileRepository {
	return &profileRepository{db: db, publisher: publisher}
}

func (r *profileRepository) GetByUID(ctx context.Context, uid string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := cache.Aside(ctx, cache.ProfileKey(uid), &profile, cache.ProfileTTL, func() error {
		if err := r.db.WithContext(ctx).Where("uid = ?", uid).Take(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Profile", uid)
			}
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) FindByUsername(ctx context.Context, username string) ([]models.UserProfile, error) {
	var profiles []models.UserProfile
	if err := r.db.WithContext(ctx).Where("username = ?", username).Find(&profiles).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return profiles, nil
}

// UpsertMerge creates the profile when missing, otherwise writes only the patch's fields.
// The unique index on username turns a lost uniqueness race into USERNAME_TAKEN.
func (r *profileRepository) UpsertMerge(ctx context.Context, uid string, patch models.ProfilePatch) error {
	if uid == "" {
		return models.NewValidationError("uid is required")
	}

	var prev models.UserProfile
	existed := true
	if err := r.db.WithContext(ctx).Select("uid", "username").Where("uid = ?", uid).Take(&prev).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewInternalError(err)
		}
		existed = false
	}

	var err error
	if existed {
		values := patch.Values()
		if len(values) == 0 {
			values["updated_at"] = time.Now().UTC()
		}
		err = r.db.WithContext(ctx).Model(&models.UserProfile{}).Where("uid = ?", uid).Updates(values).Error
	} else {
		row := models.UserProfile{UID: uid}
		patch.Apply(&row)
		err = r.db.WithContext(ctx).Create(&row).Error
	}
	if err != nil {
		if patch.Username != nil && isUsernameConflict(err) {
			return models.NewUsernameTakenError(*patch.Username)
		}
		return models.NewInternalError(err)
	}

	cache.InvalidateProfile(ctx, uid)

	username := prev.Username
	if patch.Username != nil {
		username = *patch.Username
	}
	change := models.Change{
		Collection: models.CollectionUsers,
		Kind:       models.ChangeModified,
		DocID:      uid,
		Keys:       map[string]string{"username": username},
	}
	if !existed {
		change.Kind = models.ChangeAdded
	} else if prev.Username != username {
		change.Keys["previous_username"] = prev.Username
	}
	publishChange(ctx, r.publisher, change)
	return nil
}

func (r *profileRepository) Create(ctx context.Context, profile *models.UserProfile) error {
	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		if isUsernameConflict(err) {
			return models.NewUsernameTakenError(profile.Username)
		}
		if isUniqueConstraintError(err) {
			return models.NewValidationError("Profile already exists")
		}
		return models.NewInternalError(err)
	}

	publishChange(ctx, r.publisher, models.Change{
		Collection: models.CollectionUsers,
		Kind:       models.ChangeAdded,
		DocID:      profile.UID,
		Keys:       map[string]string{"username": profile.Username},
	})
	return nil
}
