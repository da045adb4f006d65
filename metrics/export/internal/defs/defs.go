// Package defs carries the shared metric name table for the
// Prometheus and OpenTelemetry exporters.
package defs

import (
	phishgate "github.com/tmorgan-sec/phishgate"
)

// CounterDef binds a [phishgate.MetricID] to its exported name.
type CounterDef struct {
	ID   phishgate.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram [phishgate.MetricID] to its exported name.
type HistogramDef struct {
	ID   phishgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: phishgate.MetricLoginSuccess, Name: "phishgate_login_success_total", Help: "Successful login attempts."},
	{ID: phishgate.MetricLoginFailure, Name: "phishgate_login_failure_total", Help: "Failed login attempts."},
	{ID: phishgate.MetricLoginRateLimited, Name: "phishgate_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: phishgate.MetricTwoFactorRequired, Name: "phishgate_two_factor_required_total", Help: "Logins that required a second factor."},
	{ID: phishgate.MetricTwoFactorSuccess, Name: "phishgate_two_factor_success_total", Help: "Successful two-factor verifications."},
	{ID: phishgate.MetricTwoFactorFailure, Name: "phishgate_two_factor_failure_total", Help: "Failed two-factor verifications."},
	{ID: phishgate.MetricTwoFactorResent, Name: "phishgate_two_factor_resent_total", Help: "Replaced and re-delivered challenges."},
	{ID: phishgate.MetricTwoFactorAttemptsExceeded, Name: "phishgate_two_factor_attempts_exceeded_total", Help: "Challenges invalidated by the attempt cap."},
	{ID: phishgate.MetricSessionCreated, Name: "phishgate_session_created_total", Help: "Created sessions."},
	{ID: phishgate.MetricSessionSuperseded, Name: "phishgate_session_superseded_total", Help: "Sessions replaced by a newer login."},
	{ID: phishgate.MetricSessionInvalidated, Name: "phishgate_session_invalidated_total", Help: "Sessions destroyed before expiry."},
	{ID: phishgate.MetricSessionIPMismatch, Name: "phishgate_session_ip_mismatch_total", Help: "Sessions destroyed on IP binding mismatch."},
	{ID: phishgate.MetricSessionExpired, Name: "phishgate_session_expired_total", Help: "Sessions observed past their absolute lifetime."},
	{ID: phishgate.MetricLogout, Name: "phishgate_logout_total", Help: "Logout operations."},
	{ID: phishgate.MetricAccountCreated, Name: "phishgate_account_created_total", Help: "Successful account creations."},
	{ID: phishgate.MetricAccountDuplicate, Name: "phishgate_account_duplicate_total", Help: "Account creations rejected as duplicate."},
	{ID: phishgate.MetricAccountUpdated, Name: "phishgate_account_updated_total", Help: "Account update operations."},
	{ID: phishgate.MetricPasswordReset, Name: "phishgate_password_reset_total", Help: "Administrative password resets."},
	{ID: phishgate.MetricNotifyFailure, Name: "phishgate_notify_failure_total", Help: "Failed outbound notification deliveries."},
}

// HistogramDefs lists every exported histogram in a stable order.
var HistogramDefs = []HistogramDef{
	{ID: phishgate.MetricValidateLatency, Name: "phishgate_validate_latency_seconds", Help: "Session validation latency histogram."},
}

// HistogramBounds are the Prometheus upper bounds, aligned with the core
// registry's bucket thresholds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are the bound labels usable in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
