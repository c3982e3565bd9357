package internaldefs

import (
	"github.com/MrEthical07/authgate"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Successful logins."},
	{ID: authgate.MetricLoginFailure, Name: "authgate_login_failure_total", Help: "Failed logins."},
	{ID: authgate.MetricLoginRateLimited, Name: "authgate_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authgate.MetricSessionCreated, Name: "authgate_session_created_total", Help: "Created sessions."},
	{ID: authgate.MetricSessionSuperseded, Name: "authgate_session_superseded_total", Help: "Sessions displaced by a newer login."},
	{ID: authgate.MetricAuthenticateSuccess, Name: "authgate_authenticate_success_total", Help: "Accepted access tokens."},
	{ID: authgate.MetricAuthenticateFailure, Name: "authgate_authenticate_failure_total", Help: "Rejected access tokens."},
	{ID: authgate.MetricIdentityCacheHit, Name: "authgate_identity_cache_hit_total", Help: "Identity lookups served from Redis."},
	{ID: authgate.MetricIdentityCacheMiss, Name: "authgate_identity_cache_miss_total", Help: "Identity lookups that reached the durable store."},
	{ID: authgate.MetricRefreshSuccess, Name: "authgate_refresh_success_total", Help: "Successful access renewals."},
	{ID: authgate.MetricRefreshFailure, Name: "authgate_refresh_failure_total", Help: "Failed access renewals."},
	{ID: authgate.MetricRefreshReuseDetected, Name: "authgate_refresh_reuse_detected_total", Help: "Replayed refresh tokens."},
	{ID: authgate.MetricCSRFIssued, Name: "authgate_csrf_issued_total", Help: "Issued CSRF tokens."},
	{ID: authgate.MetricCSRFRejected, Name: "authgate_csrf_rejected_total", Help: "Requests rejected by the CSRF check."},
	{ID: authgate.MetricLogout, Name: "authgate_logout_total", Help: "Logouts."},
	{ID: authgate.MetricRegistrationRequested, Name: "authgate_registration_requested_total", Help: "Staged registrations."},
	{ID: authgate.MetricRegistrationDuplicate, Name: "authgate_registration_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authgate.MetricRegistrationRateLimited, Name: "authgate_registration_rate_limited_total", Help: "Rate-limited registrations."},
	{ID: authgate.MetricEmailVerificationSuccess, Name: "authgate_email_verification_success_total", Help: "Verified registrations."},
	{ID: authgate.MetricEmailVerificationReplay, Name: "authgate_email_verification_replay_total", Help: "Verification links presented again."},
	{ID: authgate.MetricEmailVerificationFailure, Name: "authgate_email_verification_failure_total", Help: "Failed verifications."},
	{ID: authgate.MetricPasswordResetRequest, Name: "authgate_password_reset_request_total", Help: "Password reset requests for known emails."},
	{ID: authgate.MetricPasswordResetConfirmSuccess, Name: "authgate_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: authgate.MetricPasswordResetConfirmFailure, Name: "authgate_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: authgate.MetricRateLimitHit, Name: "authgate_rate_limit_hit_total", Help: "Requests denied by any rate limit."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricAuthenticateLatency, Name: "authgate_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets, in
// seconds.
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

// HistogramBoundSuffix names each bucket for backends without labels.
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

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
