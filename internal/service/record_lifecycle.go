package service

import (
	"context"
	"errors"

	"github.com/noah-isme/college-portal-api/internal/models"
	"github.com/noah-isme/college-portal-api/pkg/credential"
	appErrors "github.com/noah-isme/college-portal-api/pkg/errors"
)

// SaveOptions tells the lifecycle hook what kind of save is happening.
type SaveOptions struct {
	Creating         bool
	PasswordModified bool
}

// RecordLifecycle runs before a user record is persisted. It only ever touches the password hash
// and, for new students, the registration and roll numbers.
type RecordLifecycle struct {
	credentials *credential.Manager
	allocator   *IdentifierAllocator
}

// NewRecordLifecycle wires the hook to its collaborators.
func NewRecordLifecycle(credentials *credential.Manager, allocator *IdentifierAllocator) *RecordLifecycle {
	if credentials == nil {
		credentials = credential.NewManager(credential.MinCost)
	}
	return &RecordLifecycle{credentials: credentials, allocator: allocator}
}

// BeforeSave hashes a modified password and allocates missing student identifiers on creation.
func (h *RecordLifecycle) BeforeSave(ctx context.Context, user *models.User, opts SaveOptions) error {
	if opts.PasswordModified {
		hash, err := h.credentials.HashIfNeeded(user.PendingPassword)
		if err != nil {
			if errors.Is(err, credential.ErrEmptyPassword) {
				return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "password is required")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		user.PasswordHash = &hash
		user.PendingPassword = ""
	}

	if !opts.Creating || user.Role != models.RoleStudent {
		return nil
	}

	if models.StringValue(user.RegistrationNumber) == "" {
		number, err := h.allocator.AllocateRegistrationNumber(ctx)
		if err != nil {
			return err
		}
		user.RegistrationNumber = &number
	}

	if models.StringValue(user.RollNumber) == "" {
		roll, err := h.allocator.AllocateRollNumber(ctx, models.StringValue(user.ClassName))
		if err != nil {
			return err
		}
		user.RollNumber = &roll
	}

	return nil
}
