package phishgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmorgan-sec/phishgate/internal"
	"github.com/tmorgan-sec/phishgate/internal/rate"
	"github.com/tmorgan-sec/phishgate/internal/stores"
)

// VerifyChallenge checks the submitted two-factor code against the pending
// session's challenge and, on success, promotes the session exactly once.
//
// A wrong code leaves the session pending until the attempt cap is hit, at
// which point the challenge and the pending session are both destroyed. A
// code arriving after the challenge was consumed or expired reports
// [ErrChallengeNotFound].
func (e *Engine) VerifyChallenge(ctx context.Context, token, code string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	ip, err := requireClientIP(ctx)
	if err != nil {
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, "", "", "", err, nil)
		return nil, err
	}

	if err := e.rateLimiter.IncrementVerify(ctx, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricTwoFactorFailure)
			e.emitAudit(ctx, auditEventTwoFactorFailure, false, "", "", "", ErrVerifyRateLimited, nil)
			return nil, ErrVerifyRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sessionID, record, err := e.loadSession(ctx, token)
	if err != nil {
		return nil, err
	}

	binding := internal.HashBinding(ip)
	if record.BindingHash != binding {
		return nil, e.rejectIPMismatch(ctx, sessionID, record)
	}

	if record.Authenticated {
		// The session already completed its second factor; a late or
		// replayed code has nothing to consume.
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, record.UserID, record.TenantID, sessionID, ErrChallengeNotFound, nil)
		return nil, ErrChallengeNotFound
	}

	challenge, err := e.challenges.Get(ctx, record.TenantID, record.UserID, record.BindingHash)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrChallengeNotFound), errors.Is(err, stores.ErrChallengeExpired):
			// The pending session is worthless without its challenge.
			_ = e.destroySession(ctx, sessionID, record)
			e.metricInc(MetricTwoFactorFailure)
			e.emitAudit(ctx, auditEventTwoFactorFailure, false, record.UserID, record.TenantID, sessionID, ErrChallengeNotFound, nil)
			return nil, ErrChallengeNotFound
		default:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	match, err := e.hasher.Verify(code, challenge.CodeHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !match {
		return nil, e.failChallenge(ctx, sessionID, record)
	}

	consumed, err := e.challenges.Delete(ctx, record.TenantID, record.UserID, record.BindingHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !consumed {
		// A concurrent verifier won the race; only the winner promotes.
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, record.UserID, record.TenantID, sessionID, ErrChallengeNotFound, nil)
		return nil, ErrChallengeNotFound
	}

	record.Authenticated = true
	record.ChallengeRef = ""
	if err := e.sessions.Update(ctx, sessionID, record); err != nil {
		if errors.Is(err, stores.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, record.UserID, record.TenantID, sessionID, nil, nil)

	return &LoginResult{
		Token:            token,
		TwoFactorPending: false,
		UserID:           record.UserID,
	}, nil
}

// ResendChallenge replaces the pending session's challenge with a fresh code
// and re-delivers it. The previous code stops working immediately.
func (e *Engine) ResendChallenge(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}

	ip, err := requireClientIP(ctx)
	if err != nil {
		return err
	}

	sessionID, record, err := e.loadSession(ctx, token)
	if err != nil {
		return err
	}

	binding := internal.HashBinding(ip)
	if record.BindingHash != binding {
		return e.rejectIPMismatch(ctx, sessionID, record)
	}
	if record.Authenticated {
		return ErrChallengeNotFound
	}

	user, err := e.credentials.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = e.destroySession(ctx, sessionID, record)
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ref, err := e.issueChallenge(ctx, user, record.BindingHash)
	if err != nil {
		return err
	}

	record.ChallengeRef = ref
	if err := e.sessions.Update(ctx, sessionID, record); err != nil {
		if errors.Is(err, stores.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricTwoFactorResent)
	e.emitAudit(ctx, auditEventTwoFactorResent, true, record.UserID, record.TenantID, sessionID, nil, nil)
	return nil
}

func (e *Engine) failChallenge(ctx context.Context, sessionID string, record *stores.SessionRecord) error {
	exceeded, err := e.challenges.RecordFailure(
		ctx,
		record.TenantID,
		record.UserID,
		record.BindingHash,
		e.config.TwoFactor.MaxAttempts,
	)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrChallengeNotFound), errors.Is(err, stores.ErrChallengeExpired):
			_ = e.destroySession(ctx, sessionID, record)
			return ErrChallengeNotFound
		default:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	if exceeded {
		_ = e.destroySession(ctx, sessionID, record)
		e.metricInc(MetricTwoFactorAttemptsExceeded)
		e.emitAudit(ctx, auditEventTwoFactorExceeded, false, record.UserID, record.TenantID, sessionID, ErrChallengeAttemptsExceeded, nil)
		return ErrChallengeAttemptsExceeded
	}

	e.metricInc(MetricTwoFactorFailure)
	e.emitAudit(ctx, auditEventTwoFactorFailure, false, record.UserID, record.TenantID, sessionID, ErrChallengeMismatch, nil)
	return ErrChallengeMismatch
}

func (e *Engine) rejectIPMismatch(ctx context.Context, sessionID string, record *stores.SessionRecord) error {
	_ = e.destroySession(ctx, sessionID, record)
	e.metricInc(MetricSessionIPMismatch)
	e.emitAudit(ctx, auditEventSessionIPMismatch, false, record.UserID, record.TenantID, sessionID, ErrSessionIPMismatch, nil)
	return ErrSessionIPMismatch
}
