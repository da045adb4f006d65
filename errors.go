package phishgate

import "errors"

var (
	// ErrInvalidCredentials is returned for unknown identifiers and wrong
	// passwords alike; callers cannot distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is the sentinel a [CredentialStore] returns for lookups
	// that match no account.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountExists is returned when account creation collides with an
	// existing email within the tenant.
	ErrAccountExists = errors.New("account already exists")
	// ErrSessionNotFound is returned when a token decrypts to a session that
	// no longer exists, has expired, or belongs to a deleted user.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionIPMismatch is returned when a request arrives from an IP
	// other than the one the session is bound to. The session is destroyed.
	ErrSessionIPMismatch = errors.New("session ip mismatch")
	// ErrChallengeNotFound is returned when no live challenge matches the
	// pending session, including replays of an already consumed code.
	ErrChallengeNotFound = errors.New("two-factor challenge not found")
	// ErrChallengeMismatch is returned for a wrong code while attempts remain.
	ErrChallengeMismatch = errors.New("two-factor code mismatch")
	// ErrChallengeAttemptsExceeded is returned when the attempt cap is hit.
	// The challenge and its pending session are destroyed.
	ErrChallengeAttemptsExceeded = errors.New("two-factor attempts exceeded")
	// ErrNotAuthenticated is returned by Authorize for sessions that have not
	// completed their second factor.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrPermissionDenied is returned when the session's user does not hold
	// the required tier.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTokenInvalid is returned when a presented token cannot be decrypted.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrLoginRateLimited is returned when the login attempt budget for the
	// identifier or IP is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrVerifyRateLimited is returned when the two-factor verification
	// budget for the IP is exhausted.
	ErrVerifyRateLimited = errors.New("two-factor verification rate limited")
	// ErrClientIPMissing is returned when an operation that binds or checks
	// an IP is called without [WithClientIP] on the context.
	ErrClientIPMissing = errors.New("client ip missing from context")
	// ErrStoreUnavailable wraps backend faults from the session, challenge,
	// and credential stores.
	ErrStoreUnavailable = errors.New("backend store unavailable")
	// ErrEngineClosed is returned after [Engine.Close].
	ErrEngineClosed = errors.New("engine closed")
)
