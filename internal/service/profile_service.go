// Package service holds the application's use cases on top of the stores.
package service

import (
	"context"
	"log/slog"
	"strings"

	"blogger/internal/media"
	"blogger/internal/middleware"
	"blogger/internal/models"
	"blogger/internal/observability"
	"blogger/internal/repository"
	"blogger/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

// Profile edit steps, used as span, metric and log labels.
const (
	StepValidate         = "validate"
	StepAuthorize        = "authorize"
	StepCheckUsername    = "check_username"
	StepUploadAvatar     = "upload_avatar"
	StepWriteProfile     = "write_profile"
	StepUpdateAttributes = "update_attributes"
)

// BlobStore stores avatars and resolves their public URLs.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte) error
	ResolveURL(ctx context.Context, path string) (string, error)
}

// PrincipalSource reports the authenticated caller of ctx, nil when anonymous.
type PrincipalSource interface {
	Current(ctx context.Context) (*models.Principal, error)
}

// AuthSession is the session side of a profile edit.
type AuthSession interface {
	PrincipalSource
	UpdateAttributes(ctx context.Context, uid string, attrs models.PrincipalAttributes) error
}

// AvatarEncoder validates and re-encodes raw avatar bytes.
type AvatarEncoder interface {
	Process(data []byte) (*media.Avatar, error)
}

type ProfileService struct {
	profiles repository.ProfileRepository
	blobs    BlobStore
	session  AuthSession
	avatars  AvatarEncoder
}

func NewProfileService(
	profiles repository.ProfileRepository,
	blobs BlobStore,
	session AuthSession,
	avatars AvatarEncoder,
) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		blobs:    blobs,
		session:  session,
		avatars:  avatars,
	}
}

// SubmitProfileEdit applies an edit to current's profile and mirrors name and
// image into the session. Steps run in order and stop at the first failure;
// nothing already done is undone. When only the session update fails the
// merged record is returned together with the WRITE_ERROR.
//
// Name and username are stored with surrounding whitespace trimmed, so a
// username cannot differ from an existing one by padding alone. Bio is stored
// as submitted. Beyond being non-empty, name and username only have to fit
// their columns; any characters are accepted.
func (s *ProfileService) SubmitProfileEdit(
	ctx context.Context,
	current models.UserProfile,
	edits models.ProfileEdits,
	avatar []byte,
) (result *models.UserProfile, err error) {
	span, ctx := observability.NewSpan(ctx, "profile_edit",
		attribute.String("uid", current.UID),
		attribute.Bool("avatar", len(avatar) > 0),
	)
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = models.ErrorCode(err)
			if outcome == "" {
				outcome = models.CodeInternal
			}
			span.SetError(err)
		}
		observability.ProfileEditOutcomes.WithLabelValues(outcome).Inc()
		span.End()
	}()

	name := strings.TrimSpace(edits.Name)
	username := strings.TrimSpace(edits.Username)
	bio := edits.Bio

	var processed *media.Avatar
	err = s.step(ctx, StepValidate, func(context.Context) error {
		if err := validation.RequireFields("Name", name, "Username", username); err != nil {
			return models.NewValidationError(err.Error())
		}
		for _, check := range []error{
			validation.FitsColumn("Name", name, validation.NameColumnSize),
			validation.FitsColumn("Username", username, validation.UsernameColumnSize),
		} {
			if check != nil {
				return models.NewValidationError(check.Error())
			}
		}
		if len(avatar) > 0 {
			out, err := s.avatars.Process(avatar)
			if err != nil {
				return err
			}
			processed = out
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.step(ctx, StepAuthorize, func(ctx context.Context) error {
		principal, err := s.session.Current(ctx)
		if err != nil || principal == nil || principal.UID != current.UID {
			return models.NewUnauthenticatedError()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if username != current.Username {
		err = s.step(ctx, StepCheckUsername, func(ctx context.Context) error {
			holders, err := s.profiles.FindByUsername(ctx, username)
			if err != nil {
				return err
			}
			for _, h := range holders {
				if h.UID != current.UID {
					return models.NewUsernameTakenError(username)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	profileImage := current.ProfileImage
	if processed != nil {
		err = s.step(ctx, StepUploadAvatar, func(ctx context.Context) error {
			path := media.AvatarPath(current.UID, processed.Ext)
			if err := s.blobs.Upload(ctx, path, processed.Data); err != nil {
				return models.NewStorageError(err)
			}
			url, err := s.blobs.ResolveURL(ctx, path)
			if err != nil {
				return models.NewStorageError(err)
			}
			profileImage = url
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	patch := models.ProfilePatch{
		Name:         &name,
		Username:     &username,
		Bio:          &bio,
		ProfileImage: &profileImage,
	}
	err = s.step(ctx, StepWriteProfile, func(ctx context.Context) error {
		if err := s.profiles.UpsertMerge(ctx, current.UID, patch); err != nil {
			if models.IsCode(err, models.CodeUsernameTaken) {
				return err
			}
			return models.NewWriteError("profile", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	merged := current
	patch.Apply(&merged)

	err = s.step(ctx, StepUpdateAttributes, func(ctx context.Context) error {
		err := s.session.UpdateAttributes(ctx, current.UID, models.PrincipalAttributes{
			DisplayName: name,
			PhotoURL:    profileImage,
		})
		if err != nil {
			return models.NewWriteError("session attributes", err)
		}
		return nil
	})
	if err != nil {
		return &merged, err
	}

	middleware.Logger.InfoContext(ctx, "profile updated",
		slog.String("uid", current.UID),
		slog.Bool("username_changed", username != current.Username),
		slog.Bool("avatar_changed", processed != nil),
	)
	return &merged, nil
}

func (s *ProfileService) step(ctx context.Context, name string, fn func(context.Context) error) error {
	span, ctx := observability.NewSpan(ctx, "profile_edit."+name)
	defer span.End()
	defer observability.TrackStep(name)()

	if err := fn(ctx); err != nil {
		span.SetError(err)
		middleware.Logger.WarnContext(ctx, "profile edit step failed",
			slog.String("step", name),
			slog.String("code", models.ErrorCode(err)),
			slog.String("error", err.Error()),
		)
		return err
	}
	middleware.Logger.DebugContext(ctx, "profile edit step done", slog.String("step", name))
	return nil
}
