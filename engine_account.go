package phishgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tmorgan-sec/phishgate/internal"
)

// CreateAccount provisions a new account with a server-generated initial
// password. Only the hash is stored; the plaintext is delivered once through
// the [Notifier]. Authorization (admin gating) is the HTTP layer's job.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (*UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, errors.New("email required")
	}
	if req.TenantID == "" {
		return nil, errors.New("tenant id required")
	}

	plaintext, err := internal.NewPassword(e.config.Account.GeneratedPasswordLength)
	if err != nil {
		return nil, err
	}
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	user := &UserRecord{
		UserID:           uuid.NewString(),
		TenantID:         req.TenantID,
		Email:            email,
		PasswordHash:     hash,
		TwoFactorEnabled: req.TwoFactorEnabled,
		Role:             req.Role,
	}

	if err := e.credentials.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricAccountDuplicate)
			e.emitAudit(ctx, auditEventAccountCreationConflict, false, "", req.TenantID, "", ErrAccountExists, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	recipient := *user
	e.notify.Enqueue("account_created", func(ctx context.Context) error {
		return e.notifier.SendAccountCreated(ctx, &recipient, plaintext)
	})

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreationSuccess, true, user.UserID, user.TenantID, "", nil, nil)

	return user, nil
}

// UpdateAccount applies the non-nil fields of req to the account. A password
// change invalidates the user's live session; every applied change is listed
// in the SendAccountUpdated notification.
func (e *Engine) UpdateAccount(ctx context.Context, userID string, req UpdateAccountRequest) error {
	if err := e.ready(); err != nil {
		return err
	}

	user, err := e.credentials.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var changes []string

	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if email == "" {
			return errors.New("email required")
		}
		if email != user.Email {
			user.Email = email
			changes = append(changes, "email")
		}
	}

	passwordChanged := false
	if req.Password != nil {
		hash, err := e.hasher.Hash(*req.Password)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
		passwordChanged = true
		changes = append(changes, "password")
	}

	if req.TwoFactorEnabled != nil && *req.TwoFactorEnabled != user.TwoFactorEnabled {
		user.TwoFactorEnabled = *req.TwoFactorEnabled
		changes = append(changes, "two_factor")
	}

	if len(changes) == 0 {
		return nil
	}

	if err := e.credentials.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return ErrAccountExists
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if passwordChanged {
		if _, err := e.sessions.DeleteForUser(ctx, user.UserID); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.metricInc(MetricSessionInvalidated)
	}

	recipient := *user
	applied := append([]string(nil), changes...)
	e.notify.Enqueue("account_updated", func(ctx context.Context) error {
		return e.notifier.SendAccountUpdated(ctx, &recipient, applied)
	})

	e.metricInc(MetricAccountUpdated)
	e.emitAudit(ctx, auditEventAccountUpdated, true, user.UserID, user.TenantID, "", nil, func() map[string]string {
		meta := make(map[string]string, len(applied))
		for _, change := range applied {
			meta[change] = "changed"
		}
		return meta
	})

	return nil
}

// AdminResetPassword replaces the account's password with a fresh generated
// one, invalidates the user's live session, and delivers the new password
// through the [Notifier]. The user is not forced to rotate it on first use.
func (e *Engine) AdminResetPassword(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	user, err := e.credentials.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	plaintext, err := internal.NewPassword(e.config.Account.GeneratedPasswordLength)
	if err != nil {
		return err
	}
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return err
	}

	if err := e.credentials.UpdatePasswordHash(ctx, user.UserID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	user.PasswordHash = hash

	if _, err := e.sessions.DeleteForUser(ctx, user.UserID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metricInc(MetricSessionInvalidated)

	recipient := *user
	e.notify.Enqueue("admin_reset_password", func(ctx context.Context) error {
		return e.notifier.SendAdminResetPassword(ctx, &recipient, plaintext)
	})

	e.metricInc(MetricPasswordReset)
	e.emitAudit(ctx, auditEventPasswordReset, true, user.UserID, user.TenantID, "", nil, nil)

	return nil
}
