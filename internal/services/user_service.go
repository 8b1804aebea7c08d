package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/envault/envault/internal/models"
	"github.com/envault/envault/pkg/crypto"
	apperrors "github.com/envault/envault/pkg/errors"
	"github.com/envault/envault/pkg/validator"
)

// UserOption customises UserService behaviour.
type UserOption func(*UserService)

// WithBcryptCost overrides the work factor applied to passwords and API keys.
func WithBcryptCost(cost int) UserOption {
	return func(s *UserService) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// UserService owns account credentials: password hashes and the single active
// API key hash per user.
type UserService struct {
	db         *gorm.DB
	bcryptCost int

	// dummyHash is verified against when an email lookup misses so that the
	// absent-account path costs the same one bcrypt comparison as a password
	// mismatch.
	dummyHash string
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, opts ...UserOption) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}

	service := &UserService{
		db:         db,
		bcryptCost: crypto.DefaultCost,
	}

	for _, opt := range opts {
		opt(service)
	}

	dummy, err := crypto.HashSecretCost(crypto.GenerateKey(), service.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("user service: prepare dummy hash: %w", err)
	}
	service.dummyHash = dummy

	return service, nil
}

// CreateUserInput describes the fields accepted at signup.
type CreateUserInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// Create provisions a new account. An initial API key is generated and its
// hash stored, but the plaintext is discarded: callers must request a key
// through RotateKey to ever see one.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	input.Email = normalizeEmail(input.Email)
	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}

	passwordHash, err := crypto.HashSecretCost(input.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	keyHash, err := crypto.HashSecretCost(crypto.GenerateKey(), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("user service: hash initial key: %w", err)
	}

	user := &models.User{
		Email:        input.Email,
		PasswordHash: passwordHash,
		APIKeyHash:   keyHash,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	return user, nil
}

// ByEmail loads a user by normalized email address.
func (s *UserService) ByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", normalizeEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

// Authenticate verifies an email/password pair. The failure value is the same
// whether the email is unknown or the password mismatches, and both paths
// perform exactly one hash comparison.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", normalizeEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		crypto.VerifySecret(s.dummyHash, password)
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	if !s.ValidPassword(&user, password) {
		return nil, apperrors.ErrInvalidCredentials
	}

	return &user, nil
}

// RotateKey issues a fresh API key, returning the plaintext exactly once.
// The stored hash is replaced in a single update, so the previous key is
// invalid the moment this returns.
func (s *UserService) RotateKey(ctx context.Context, userID string) (string, *models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, apperrors.ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("user service: load user: %w", err)
	}

	key := crypto.GenerateKey()
	keyHash, err := crypto.HashSecretCost(key, s.bcryptCost)
	if err != nil {
		return "", nil, fmt.Errorf("user service: hash key: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&user).
		Update("api_key_hash", keyHash).Error; err != nil {
		return "", nil, fmt.Errorf("user service: store key hash: %w", err)
	}

	user.APIKeyHash = keyHash
	return key, &user, nil
}

// AuthenticateKey resolves a presented API key to its owning user. Keys carry
// no public lookup half (only one hash field exists per user), so every
// candidate row is verified in turn; failure is uniformly ErrUnauthorized.
func (s *UserService) AuthenticateKey(ctx context.Context, key string) (*models.User, error) {
	ctx = ensureContext(ctx)

	if key == "" {
		return nil, apperrors.ErrUnauthorized
	}

	var (
		users []models.User
		match *models.User
	)
	result := s.db.WithContext(ctx).FindInBatches(&users, 100, func(tx *gorm.DB, _ int) error {
		for i := range users {
			if s.ValidKey(&users[i], key) {
				found := users[i]
				match = &found
				return errStopIteration
			}
		}
		return nil
	})
	if result.Error != nil && !errors.Is(result.Error, errStopIteration) {
		return nil, fmt.Errorf("user service: scan keys: %w", result.Error)
	}

	if match == nil {
		return nil, apperrors.ErrUnauthorized
	}
	return match, nil
}

var errStopIteration = errors.New("stop iteration")

// ValidPassword reports whether the candidate matches the stored password hash.
func (s *UserService) ValidPassword(user *models.User, candidate string) bool {
	return user != nil && crypto.VerifySecret(user.PasswordHash, candidate)
}

// ValidKey reports whether the candidate matches the stored API key hash.
func (s *UserService) ValidKey(user *models.User, candidate string) bool {
	return user != nil && crypto.VerifySecret(user.APIKeyHash, candidate)
}
