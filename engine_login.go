package phishgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tmorgan-sec/phishgate/internal"
	"github.com/tmorgan-sec/phishgate/internal/rate"
	"github.com/tmorgan-sec/phishgate/internal/stores"
)

// Login verifies credentials and issues a session bound to the caller's IP.
//
// Unknown identifiers and wrong passwords both return
// [ErrInvalidCredentials]. When the account has the second factor enabled,
// the session starts pending, a fresh challenge is stored for the (user, IP)
// pair, and the code is delivered through the [Notifier]; the result then
// reports TwoFactorPending. A successful login supersedes any previous
// session of the same user.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	ip, err := requireClientIP(ctx)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "", err, nil)
		return nil, err
	}
	email = normalizeEmail(email)

	if err := e.rateLimiter.CheckLogin(ctx, email, ip); err != nil {
		return nil, e.mapLoginThrottle(ctx, email, err)
	}

	user, err := e.credentials.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.failLogin(ctx, email, ip, nil)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil {
		// Unreadable stored hash. Fail closed without distinguishing it
		// from a wrong password.
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, user.TenantID, "", err, nil)
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, e.failLogin(ctx, email, ip, user)
	}

	e.maybeUpgradeHash(ctx, user, plaintext)
	_ = e.rateLimiter.ResetLogin(ctx, email, ip)

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := &stores.SessionRecord{
		UserID:        user.UserID,
		TenantID:      user.TenantID,
		BindingHash:   internal.HashBinding(ip),
		Authenticated: !user.TwoFactorEnabled,
		CreatedAt:     now.Unix(),
		ExpiresAt:     now.Add(e.config.Session.Lifetime).Unix(),
	}

	if user.TwoFactorEnabled {
		ref, err := e.issueChallenge(ctx, user, record.BindingHash)
		if err != nil {
			return nil, err
		}
		record.ChallengeRef = ref
	}

	superseded, err := e.sessions.Save(ctx, sid.String(), record, e.config.Session.Lifetime)
	if err != nil {
		if user.TwoFactorEnabled {
			_, _ = e.challenges.Delete(ctx, user.TenantID, user.UserID, record.BindingHash)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if superseded {
		e.metricInc(MetricSessionSuperseded)
		e.emitAudit(ctx, auditEventSessionSuperseded, true, user.UserID, user.TenantID, sid.String(), nil, nil)
	}

	token, err := e.cryptor.Encrypt(sid.String())
	if err != nil {
		_, _ = e.sessions.Delete(ctx, sid.String(), user.UserID)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	if user.TwoFactorEnabled {
		e.metricInc(MetricTwoFactorRequired)
		e.emitAudit(ctx, auditEventTwoFactorRequired, true, user.UserID, user.TenantID, sid.String(), nil, nil)
	}
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, user.TenantID, sid.String(), nil, func() map[string]string {
		return map[string]string{
			"two_factor_pending": fmt.Sprintf("%t", user.TwoFactorEnabled),
		}
	})

	return &LoginResult{
		Token:            token,
		TwoFactorPending: user.TwoFactorEnabled,
		UserID:           user.UserID,
	}, nil
}

func (e *Engine) failLogin(ctx context.Context, email, ip string, user *UserRecord) error {
	var userID, tenantID string
	if user != nil {
		userID, tenantID = user.UserID, user.TenantID
	}

	if err := e.rateLimiter.IncrementLogin(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return e.mapLoginThrottle(ctx, email, err)
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, tenantID, "", ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

func (e *Engine) mapLoginThrottle(ctx context.Context, email string, err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", "", ErrLoginRateLimited, func() map[string]string {
			return map[string]string{"identifier": email}
		})
		return ErrLoginRateLimited
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// maybeUpgradeHash re-hashes the password when the stored parameters are
// weaker than the current configuration. Best effort; a failure never blocks
// the login.
func (e *Engine) maybeUpgradeHash(ctx context.Context, user *UserRecord, plaintext string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}

	upgrade, err := e.hasher.NeedsRehash(user.PasswordHash)
	if err != nil || !upgrade {
		return
	}

	rehashed, err := e.hasher.Hash(plaintext)
	if err != nil {
		return
	}
	if err := e.credentials.UpdatePasswordHash(ctx, user.UserID, rehashed); err == nil {
		user.PasswordHash = rehashed
	}
}

// issueChallenge stores a fresh hashed code for the (user, IP) pair,
// replacing any live one, and queues delivery of the plaintext code.
// Returns the challenge reference recorded on the session.
func (e *Engine) issueChallenge(ctx context.Context, user *UserRecord, binding internal.BindingHash) (string, error) {
	code, err := internal.NewOTP(e.config.TwoFactor.CodeDigits)
	if err != nil {
		return "", err
	}

	codeHash, err := e.hasher.Hash(code)
	if err != nil {
		return "", err
	}

	now := time.Now()
	record := &stores.ChallengeRecord{
		UserID:    user.UserID,
		TenantID:  user.TenantID,
		CodeHash:  codeHash,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(e.config.TwoFactor.ChallengeTTL).Unix(),
	}
	if err := e.challenges.Save(ctx, binding, record, e.config.TwoFactor.ChallengeTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	recipient := *user
	e.notify.Enqueue("two_factor_code", func(ctx context.Context) error {
		return e.notifier.SendTwoFactorCode(ctx, &recipient, code)
	})

	return uuid.NewString(), nil
}
