package phishgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/tmorgan-sec/phishgate/cryptor"
	"github.com/tmorgan-sec/phishgate/internal"
	"github.com/tmorgan-sec/phishgate/internal/rate"
	"github.com/tmorgan-sec/phishgate/internal/stores"
	"github.com/tmorgan-sec/phishgate/password"
)

// Engine is the session and two-factor authentication state machine. All
// methods are safe for concurrent use after construction through
// [Builder.Build].
type Engine struct {
	config      Config
	cryptor     *cryptor.Cryptor
	credentials CredentialStore
	notifier    Notifier
	sessions    *stores.SessionStore
	challenges  *stores.ChallengeStore
	rateLimiter *rate.Limiter
	audit       *auditDispatcher
	notify      *notifyDispatcher
	metrics     *Metrics
	hasher      *password.Hasher

	closed atomic.Bool
}

// Close stops the audit and notification dispatchers after draining their
// queues. Engine operations return [ErrEngineClosed] afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.closed.Swap(true) {
		return
	}
	e.notify.Close()
	e.audit.Close()
}

// MetricsSnapshot exposes the in-process metrics for exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// NotifyDropped reports how many notifications were dropped under backpressure.
func (e *Engine) NotifyDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.notify.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// requireClientIP returns the bound IP or fails closed.
func requireClientIP(ctx context.Context) (string, error) {
	ip := clientIPFromContext(ctx)
	if ip == "" {
		return "", ErrClientIPMissing
	}
	return ip, nil
}

// loadSession decrypts a token and loads its record. Decryption failures map
// to [ErrTokenInvalid]; missing and expired records map to
// [ErrSessionNotFound] with the expiry observed in metrics.
func (e *Engine) loadSession(ctx context.Context, token string) (string, *stores.SessionRecord, error) {
	plaintext, err := e.cryptor.Decrypt(token)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	sid, err := internal.ParseSessionID(plaintext)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	sessionID := sid.String()

	record, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrSessionExpired):
			e.metricInc(MetricSessionExpired)
			e.emitAudit(ctx, auditEventSessionExpired, false, "", "", sessionID, ErrSessionNotFound, nil)
			return "", nil, ErrSessionNotFound
		case errors.Is(err, stores.ErrSessionNotFound):
			return "", nil, ErrSessionNotFound
		default:
			return "", nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return sessionID, record, nil
}

// destroySession tears down a session and, for pending sessions, the
// challenge bound to it. Best effort: the session delete drives the result,
// the challenge reap is opportunistic.
func (e *Engine) destroySession(ctx context.Context, sessionID string, record *stores.SessionRecord) error {
	if !record.Authenticated {
		_, _ = e.challenges.Delete(ctx, record.TenantID, record.UserID, record.BindingHash)
	}

	if _, err := e.sessions.Delete(ctx, sessionID, record.UserID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metricInc(MetricSessionInvalidated)
	return nil
}

func (e *Engine) notifyFailed(kind string, err error) {
	e.metricInc(MetricNotifyFailure)
	e.emitAudit(context.Background(), auditEventNotifyFailure, false, "", "", "", nil, func() map[string]string {
		return map[string]string{
			"kind":   kind,
			"reason": err.Error(),
		}
	})
}
