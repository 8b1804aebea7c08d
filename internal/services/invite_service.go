package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/envault/envault/internal/models"
	"github.com/envault/envault/pkg/crypto"
	apperrors "github.com/envault/envault/pkg/errors"
	"github.com/envault/envault/pkg/token"
)

// createAttempts bounds regeneration when a fresh token collides on its
// lookup id. With 62^5 lookup values a second collision in a row is already
// implausible.
const createAttempts = 5

// InviteService issues and redeems single-use split-token invites.
type InviteService struct {
	db         *gorm.DB
	perms      *PermissionService
	bcryptCost int

	// dummyHash absorbs a verify when the lookup id misses, keeping the
	// missing-id and wrong-secret paths indistinguishable.
	dummyHash string

	now func() time.Time
}

// InviteOption customises InviteService behaviour.
type InviteOption func(*InviteService)

// WithInviteBcryptCost overrides the work factor applied to token secrets.
func WithInviteBcryptCost(cost int) InviteOption {
	return func(s *InviteService) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// WithInviteClock injects a custom clock primarily for testing.
func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *InviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewInviteService constructs an InviteService with the provided dependencies.
func NewInviteService(db *gorm.DB, perms *PermissionService, opts ...InviteOption) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}
	if perms == nil {
		return nil, errors.New("invite service: permission service is required")
	}

	service := &InviteService{
		db:         db,
		perms:      perms,
		bcryptCost: crypto.DefaultCost,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	dummy, err := crypto.HashSecretCost(crypto.GenerateKey(), service.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("invite service: prepare dummy hash: %w", err)
	}
	service.dummyHash = dummy

	return service, nil
}

// CreateInviteInput describes a new invite.
type CreateInviteInput struct {
	Email       string
	AppID       string
	Environment string
}

// Create stores a new invite and returns the plaintext token exactly once.
// Only the token's public lookup id and the hash of its secret half are
// persisted; the plaintext must be delivered out of band by the caller.
func (s *InviteService) Create(ctx context.Context, input CreateInviteInput) (string, *models.Invite, error) {
	ctx = ensureContext(ctx)

	if input.AppID == "" || input.Environment == "" {
		return "", nil, apperrors.NewBadRequest("app and environment are required")
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		tok, err := token.New()
		if err != nil {
			return "", nil, fmt.Errorf("invite service: generate token: %w", err)
		}

		secretHash, err := crypto.HashSecretCost(tok.Secret(), s.bcryptCost)
		if err != nil {
			return "", nil, fmt.Errorf("invite service: hash token secret: %w", err)
		}

		invite := &models.Invite{
			AppID:           input.AppID,
			Environment:     input.Environment,
			Email:           normalizeEmail(input.Email),
			TokenLookupID:   tok.LookupID(),
			TokenSecretHash: secretHash,
		}

		err = s.db.WithContext(ctx).Create(invite).Error
		if err == nil {
			return tok.String(), invite, nil
		}
		if isUniqueConstraintError(err) {
			// lookup id collision: regenerate rather than surface
			continue
		}
		return "", nil, fmt.Errorf("invite service: create invite: %w", err)
	}

	return "", nil, fmt.Errorf("invite service: create invite: lookup id collisions exhausted %d attempts", createAttempts)
}

// FindByToken resolves a presented token to its invite. Structurally invalid
// tokens are rejected before any storage access, and an unknown lookup id
// yields the same error as a secret mismatch.
func (s *InviteService) FindByToken(ctx context.Context, raw string) (*models.Invite, error) {
	return s.findByToken(ensureContext(ctx), s.db, raw)
}

func (s *InviteService) findByToken(ctx context.Context, db *gorm.DB, raw string) (*models.Invite, error) {
	tok, err := token.Parse(raw)
	if err != nil {
		return nil, apperrors.ErrInvalidInvite
	}

	var invite models.Invite
	err = db.WithContext(ctx).First(&invite, "token_lookup_id = ?", tok.LookupID()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		crypto.VerifySecret(s.dummyHash, tok.Secret())
		return nil, apperrors.ErrInvalidInvite
	}
	if err != nil {
		return nil, fmt.Errorf("invite service: find invite: %w", err)
	}

	if !crypto.VerifySecret(invite.TokenSecretHash, tok.Secret()) {
		return nil, apperrors.ErrInvalidInvite
	}

	return &invite, nil
}

// Redeem consumes an invite for the given user: the target environment is
// added to the user's permission set for the app and the invite is deleted,
// all inside one transaction. The delete doubles as the single-use guard:
// if a concurrent redemption already removed the row, zero rows are affected
// and the whole transaction, permission grant included, rolls back with
// ErrInvalidInvite.
func (s *InviteService) Redeem(ctx context.Context, user *models.User, raw string) error {
	ctx = ensureContext(ctx)

	if user == nil {
		return apperrors.ErrUnauthorized
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invite, err := s.findByToken(ctx, tx, raw)
		if err != nil {
			return err
		}

		var env models.Environment
		err = tx.WithContext(ctx).
			First(&env, "app_id = ? AND name = ?", invite.AppID, invite.Environment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewNotFound("No such environment")
		}
		if err != nil {
			return fmt.Errorf("invite service: resolve environment: %w", err)
		}

		// accepting an emailed invite proves control of the address
		if user.EmailVerifiedAt == nil {
			verifiedAt := s.now()
			if err := tx.WithContext(ctx).
				Model(&models.User{}).
				Where("id = ?", user.ID).
				Update("email_verified_at", verifiedAt).Error; err != nil {
				return fmt.Errorf("invite service: mark email verified: %w", err)
			}
			user.EmailVerifiedAt = &verifiedAt
		}

		if err := s.perms.ensureForEnv(ctx, tx, user.ID, invite.AppID, env.ID); err != nil {
			return err
		}

		res := tx.WithContext(ctx).Where("id = ?", invite.ID).Delete(&models.Invite{})
		if res.Error != nil {
			return fmt.Errorf("invite service: delete invite: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrInvalidInvite
		}

		return nil
	})
}

// ForEnv lists pending invites for one environment of an app.
func (s *InviteService) ForEnv(ctx context.Context, appID, envName string) ([]models.Invite, error) {
	ctx = ensureContext(ctx)

	var invites []models.Invite
	if err := s.db.WithContext(ctx).
		Where("app_id = ? AND environment = ?", appID, envName).
		Find(&invites).Error; err != nil {
		return nil, fmt.Errorf("invite service: list invites: %w", err)
	}
	return invites, nil
}
