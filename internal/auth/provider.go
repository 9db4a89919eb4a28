// Package auth issues and verifies session tokens and owns the session's display attributes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"blogger/internal/cache"
	"blogger/internal/middleware"
	"blogger/internal/models"
	"blogger/internal/repository"
	"blogger/internal/validation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	Issuer   = "blogger-api"
	Audience = "blogger-client"
	TokenTTL = 7 * 24 * time.Hour

	maxUsernameAttempts = 5
)

// Session is the result of a successful sign-up or sign-in.
type Session struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expiresAt"`
	Principal models.Principal    `json:"principal"`
	Profile   *models.UserProfile `json:"profile"`
}

// SignUpInput carries sign-up credentials. Username is optional.
type SignUpInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// Provider authenticates callers against the accounts table.
type Provider struct {
	db       *gorm.DB
	rdb      *redis.Client
	profiles repository.ProfileRepository
	secret   []byte
	now      func() time.Time
}

// NewProvider returns a Provider. rdb may be nil, in which case sign-out cannot revoke tokens.
func NewProvider(db *gorm.DB, rdb *redis.Client, profiles repository.ProfileRepository, secret string) *Provider {
	return &Provider{
		db:       db,
		rdb:      rdb,
		profiles: profiles,
		secret:   []byte(secret),
		now:      time.Now,
	}
}

// SignUp creates an account and its profile, then opens a session.
func (p *Provider) SignUp(ctx context.Context, in SignUpInput) (*Session, error) {
	email := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)

	if err := validation.RequireFields("Email", email, "Password", in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if username != "" {
		if err := validation.ValidateUsername(username); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		holders, err := p.profiles.FindByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if len(holders) > 0 {
			return nil, models.NewUsernameTakenError(username)
		}
	}

	var existing int64
	if err := p.db.WithContext(ctx).Model(&models.Account{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if existing > 0 {
		return nil, models.NewAccountExistsError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	account := &models.Account{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  username,
	}
	if err := p.db.WithContext(ctx).Create(account).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, models.NewAccountExistsError()
		}
		return nil, models.NewInternalError(err)
	}

	profile, err := p.ensureProfile(ctx, account, username)
	if err != nil {
		return nil, err
	}
	return p.issue(account, profile)
}

// SignIn verifies credentials and opens a session. A missing profile is created.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var account models.Account
	err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	if cmpErr := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); cmpErr != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}

	profile, err := p.ensureProfile(ctx, &account, "")
	if err != nil {
		return nil, err
	}
	return p.issue(&account, profile)
}

// ensureProfile returns the account's profile, creating it on first authentication.
// Without a preferred username one is derived from the email and suffixed until free.
func (p *Provider) ensureProfile(ctx context.Context, account *models.Account, preferred string) (*models.UserProfile, error) {
	profile, err := p.profiles.GetByUID(ctx, account.UID)
	if err == nil {
		return profile, nil
	}
	if !models.IsCode(err, models.CodeNotFound) {
		return nil, err
	}

	base := preferred
	attempts := 1
	if base == "" {
		base = UsernameFromEmail(account.Email)
		attempts = maxUsernameAttempts
	}

	candidate := base
	for i := 0; i < attempts; i++ {
		if i > 0 {
			candidate = withSuffix(base)
		}
		profile = &models.UserProfile{
			UID:      account.UID,
			Username: candidate,
			Name:     firstNonEmpty(account.DisplayName, candidate),
		}
		err = p.profiles.Create(ctx, profile)
		if err == nil {
			middleware.Logger.InfoContext(ctx, "profile created",
				slog.String("uid", account.UID),
				slog.String("username", candidate),
			)
			return profile, nil
		}
		if !models.IsCode(err, models.CodeUsernameTaken) {
			return nil, err
		}
	}
	return nil, err
}

func (p *Provider) issue(account *models.Account, profile *models.UserProfile) (*Session, error) {
	if len(p.secret) == 0 {
		return nil, models.NewInternalError(fmt.Errorf("JWT secret not configured"))
	}

	now := p.now()
	expiresAt := now.Add(TokenTTL)
	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"sub":   account.UID,
		"email": account.Email,
		"iss":   Issuer,
		"aud":   Audience,
		"exp":   expiresAt.Unix(),
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"jti":   jti,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	return &Session{
		Token:     signed,
		ExpiresAt: expiresAt,
		Principal: models.Principal{
			UID:         account.UID,
			Email:       account.Email,
			DisplayName: account.DisplayName,
			PhotoURL:    account.PhotoURL,
			TokenID:     jti,
		},
		Profile: profile,
	}, nil
}

func (p *Provider) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return p.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !token.Valid {
		return nil, models.NewUnauthorizedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, models.NewUnauthorizedError("Invalid token claims")
	}
	return claims, nil
}

// Authenticate verifies a bearer token and loads the caller's current attributes.
func (p *Provider) Authenticate(ctx context.Context, tokenString string) (*models.Principal, error) {
	claims, err := p.parse(tokenString)
	if err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, models.NewUnauthorizedError("Invalid subject claim")
	}

	jti, _ := claims["jti"].(string)
	if jti != "" && p.rdb != nil {
		revoked, err := p.rdb.Exists(ctx, cache.RevokedKey(jti)).Result()
		if err == nil && revoked > 0 {
			return nil, models.NewUnauthorizedError("Token has been revoked")
		}
	}

	attrs, err := p.Attributes(ctx, sub)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthorizedError("Account no longer exists")
		}
		return nil, err
	}

	email, _ := claims["email"].(string)
	return &models.Principal{
		UID:         sub,
		Email:       email,
		DisplayName: attrs.DisplayName,
		PhotoURL:    attrs.PhotoURL,
		TokenID:     jti,
	}, nil
}

// Current returns the principal carried by ctx, or nil when the caller is anonymous.
func (p *Provider) Current(ctx context.Context) (*models.Principal, error) {
	principal, _ := PrincipalFromContext(ctx)
	return principal, nil
}

// Attributes reads the session's display attributes through the cache.
func (p *Provider) Attributes(ctx context.Context, uid string) (*models.PrincipalAttributes, error) {
	var attrs models.PrincipalAttributes
	err := cache.Aside(ctx, cache.AttributesKey(uid), &attrs, cache.AttributesTTL, func() error {
		var account models.Account
		err := p.db.WithContext(ctx).Select("uid", "display_name", "photo_url").Where("uid = ?", uid).Take(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("Account", uid)
		}
		if err != nil {
			return models.NewInternalError(err)
		}
		attrs = models.PrincipalAttributes{DisplayName: account.DisplayName, PhotoURL: account.PhotoURL}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &attrs, nil
}

// UpdateAttributes overwrites the account's display attributes.
func (p *Provider) UpdateAttributes(ctx context.Context, uid string, attrs models.PrincipalAttributes) error {
	result := p.db.WithContext(ctx).Model(&models.Account{}).Where("uid = ?", uid).Updates(map[string]any{
		"display_name": attrs.DisplayName,
		"photo_url":    attrs.PhotoURL,
		"updated_at":   p.now().UTC(),
	})
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Account", uid)
	}
	cache.InvalidateAttributes(ctx, uid)
	return nil
}

// SignOut revokes the token until it would have expired anyway.
func (p *Provider) SignOut(ctx context.Context, tokenString string) error {
	claims, err := p.parse(tokenString)
	if err != nil {
		return err
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil
	}
	if p.rdb == nil {
		middleware.Logger.WarnContext(ctx, "token revocation unavailable without redis", slog.String("jti", jti))
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return models.NewUnauthorizedError("Invalid token claims")
	}
	ttl := exp.Sub(p.now())
	if ttl <= 0 {
		return nil
	}
	if err := p.rdb.Set(ctx, cache.RevokedKey(jti), "1", ttl).Err(); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// UsernameFromEmail derives a valid username from the local part of an email address.
func UsernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")

	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	name := strings.Trim(b.String(), "_-")
	if len(name) > 24 {
		name = strings.TrimRight(name[:24], "_-")
	}
	if len(name) < 3 {
		name = "user" + name
	}
	return name
}

func withSuffix(base string) string {
	if len(base) > 25 {
		base = strings.TrimRight(base[:25], "_-")
	}
	return base + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}
