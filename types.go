package phishgate

import "context"

// Role is the stored role of an account.
type Role uint8

const (
	// RoleMember is a regular trainee account.
	RoleMember Role = iota
	// RoleAdmin administers campaigns within its own tenant.
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Tier is an authorization level checked by [Engine.Authorize].
// Tiers are strictly additive: TierUser < TierAdmin < TierTenantAdmin.
type Tier uint8

const (
	// TierUser requires an authenticated session.
	TierUser Tier = iota
	// TierAdmin additionally requires [RoleAdmin].
	TierAdmin
	// TierTenantAdmin additionally requires membership in the operator
	// tenant (Config.Authz.OperatorTenantID).
	TierTenantAdmin
)

func (t Tier) String() string {
	switch t {
	case TierUser:
		return "user"
	case TierAdmin:
		return "admin"
	case TierTenantAdmin:
		return "tenant_admin"
	default:
		return "unknown"
	}
}

// UserRecord is the account shape the Engine reads and writes through a
// [CredentialStore]. PasswordHash always holds an argon2id PHC string.
type UserRecord struct {
	UserID           string
	TenantID         string
	Email            string
	PasswordHash     string
	TwoFactorEnabled bool
	Role             Role
}

// CredentialStore is implemented by the host application over its user
// database. Lookups by email are case-insensitive; the Engine normalizes
// identifiers before calling.
//
// Emails must be unique across ALL tenants, not merely within one: login
// resolves an account by email alone, so an email held by two accounts
// would make authentication ambiguous. Implementations return
// [ErrUserNotFound] for missing accounts and [ErrAccountExists] when a
// create or update would claim an email that another account holds.
type CredentialStore interface {
	GetUserByEmail(ctx context.Context, email string) (*UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (*UserRecord, error)
	CreateUser(ctx context.Context, user *UserRecord) error
	UpdateUser(ctx context.Context, user *UserRecord) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// Notifier delivers outbound mail for the Engine. Calls are dispatched
// asynchronously; a delivery failure never rolls back the state change that
// triggered it and is surfaced through the audit log instead.
type Notifier interface {
	SendTwoFactorCode(ctx context.Context, user *UserRecord, code string) error
	SendAccountCreated(ctx context.Context, user *UserRecord, password string) error
	SendAccountUpdated(ctx context.Context, user *UserRecord, changes []string) error
	SendAdminResetPassword(ctx context.Context, user *UserRecord, password string) error
}

// NoOpNotifier discards all notifications.
type NoOpNotifier struct{}

func (NoOpNotifier) SendTwoFactorCode(context.Context, *UserRecord, string) error { return nil }

func (NoOpNotifier) SendAccountCreated(context.Context, *UserRecord, string) error { return nil }

func (NoOpNotifier) SendAccountUpdated(context.Context, *UserRecord, []string) error { return nil }

func (NoOpNotifier) SendAdminResetPassword(context.Context, *UserRecord, string) error { return nil }

// LoginResult is returned by [Engine.Login] and [Engine.VerifyChallenge].
type LoginResult struct {
	// Token is the encrypted opaque session token, the single artifact the
	// client holds.
	Token string
	// TwoFactorPending reports whether a second factor must be verified
	// before the session authenticates.
	TwoFactorPending bool
	// UserID identifies the account the session belongs to.
	UserID string
}

// AuthResult is the outcome of validating a session token.
type AuthResult struct {
	UserID        string
	TenantID      string
	Email         string
	Role          Role
	Authenticated bool
}

// CreateAccountRequest describes a new account. The initial password is
// generated server-side and delivered through the [Notifier].
type CreateAccountRequest struct {
	Email            string
	TenantID         string
	Role             Role
	TwoFactorEnabled bool
}

// UpdateAccountRequest carries the optional field updates for
// [Engine.UpdateAccount]. Nil fields are left unchanged.
type UpdateAccountRequest struct {
	Email            *string
	Password         *string
	TwoFactorEnabled *bool
}
