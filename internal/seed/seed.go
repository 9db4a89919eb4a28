// Package seed creates demo accounts, profiles and posts for local development.
package seed

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"blogger/internal/auth"
	"blogger/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "SeedPassword123!"

// Accounts signs demo users up.
type Accounts interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (*auth.Session, error)
}

// ProfileEditor applies profile edits as the signed-in user.
type ProfileEditor interface {
	SubmitProfileEdit(ctx context.Context, current models.UserProfile, edits models.ProfileEdits, avatar []byte) (*models.UserProfile, error)
}

// PostCreator publishes posts as the signed-in user.
type PostCreator interface {
	CreatePost(ctx context.Context, text string) (*models.Post, error)
}

// Options controls the amount of generated data.
type Options struct {
	Users        int
	PostsPerUser int
	// Seed makes the generated content reproducible when non-zero.
	Seed int64
}

// Seeder drives the same services the API uses, so seeded data passes
// validation and emits change events like real traffic.
type Seeder struct {
	db       *gorm.DB
	accounts Accounts
	profiles ProfileEditor
	posts    PostCreator
}

// NewSeeder returns a Seeder.
func NewSeeder(db *gorm.DB, accounts Accounts, profiles ProfileEditor, posts PostCreator) *Seeder {
	return &Seeder{db: db, accounts: accounts, profiles: profiles, posts: posts}
}

// ClearAll removes every post, profile and account.
func (s *Seeder) ClearAll(ctx context.Context) error {
	for _, model := range []any{&models.Post{}, &models.UserProfile{}, &models.Account{}} {
		if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	return nil
}

// Run creates opts.Users users, each with a bio and opts.PostsPerUser posts.
// It returns the created profiles.
func (s *Seeder) Run(ctx context.Context, opts Options) ([]models.UserProfile, error) {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	faker := gofakeit.New(seed)

	created := make([]models.UserProfile, 0, opts.Users)
	for i := 0; i < opts.Users; i++ {
		profile, err := s.seedUser(ctx, faker, i, opts.PostsPerUser)
		if err != nil {
			return created, err
		}
		created = append(created, *profile)
	}

	log.Printf("seeded %d users with %d posts each", len(created), opts.PostsPerUser)
	return created, nil
}

func (s *Seeder) seedUser(ctx context.Context, faker *gofakeit.Faker, i, posts int) (*models.UserProfile, error) {
	person := faker.Person()
	email := fmt.Sprintf("%s.%s.%d@example.com",
		strings.ToLower(person.FirstName), strings.ToLower(person.LastName), i)

	sess, err := s.accounts.SignUp(ctx, auth.SignUpInput{Email: email, Password: DefaultPassword})
	if err != nil {
		return nil, fmt.Errorf("sign up %s: %w", email, err)
	}

	ctx = auth.WithPrincipal(ctx, &sess.Principal)

	profile, err := s.profiles.SubmitProfileEdit(ctx, *sess.Profile, models.ProfileEdits{
		Name:     person.FirstName + " " + person.LastName,
		Username: sess.Profile.Username,
		Bio:      faker.Sentence(12),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("edit profile %s: %w", sess.Profile.Username, err)
	}

	for j := 0; j < posts; j++ {
		if _, err := s.posts.CreatePost(ctx, faker.Sentence(faker.Number(4, 20))); err != nil {
			return nil, fmt.Errorf("post as %s: %w", profile.Username, err)
		}
	}
	return profile, nil
}
