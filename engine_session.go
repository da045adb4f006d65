package phishgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmorgan-sec/phishgate/internal"
)

// ValidateSession resolves a token to its session state.
//
// A session observed from a different IP than it was bound to is destroyed
// and reported as [ErrSessionIPMismatch]; later requests, including ones
// from the original IP, then see [ErrSessionNotFound]. A pending session
// validates without error but reports Authenticated=false.
func (e *Engine) ValidateSession(ctx context.Context, token string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}()

	ip, err := requireClientIP(ctx)
	if err != nil {
		return nil, err
	}

	sessionID, record, err := e.loadSession(ctx, token)
	if err != nil {
		return nil, err
	}

	if record.BindingHash != internal.HashBinding(ip) {
		return nil, e.rejectIPMismatch(ctx, sessionID, record)
	}

	user, err := e.credentials.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// The account is gone; the session must not outlive it.
			_ = e.destroySession(ctx, sessionID, record)
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &AuthResult{
		UserID:        user.UserID,
		TenantID:      user.TenantID,
		Email:         user.Email,
		Role:          user.Role,
		Authenticated: record.Authenticated,
	}, nil
}

// Logout destroys the session behind the token. It is idempotent: unknown,
// expired, and undecryptable tokens all succeed silently.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}

	sessionID, record, err := e.loadSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	if err := e.destroySession(ctx, sessionID, record); err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, record.UserID, record.TenantID, sessionID, nil, nil)
	return nil
}

// Authorize validates the session and checks it against an authorization
// tier. Tiers are strictly additive, so a lower-tier failure short-circuits:
// a pending session reports [ErrNotAuthenticated] regardless of role, and a
// non-admin never reaches the tenant check.
func (e *Engine) Authorize(ctx context.Context, token string, tier Tier) (*AuthResult, error) {
	result, err := e.ValidateSession(ctx, token)
	if err != nil {
		return nil, err
	}

	if !result.Authenticated {
		return nil, ErrNotAuthenticated
	}

	if tier >= TierAdmin && result.Role != RoleAdmin {
		e.emitAudit(ctx, auditEventPermissionDenied, false, result.UserID, result.TenantID, "", ErrPermissionDenied, func() map[string]string {
			return map[string]string{"tier": tier.String()}
		})
		return nil, ErrPermissionDenied
	}

	if tier >= TierTenantAdmin && result.TenantID != e.config.Authz.OperatorTenantID {
		return nil, ErrPermissionDenied
	}

	return result, nil
}
