package internaldefs

import (
	"strconv"

	"github.com/MrEthical07/authcore"
)

type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricTokenIssued, Name: "authcore_token_issued_total", Help: "Token pairs issued."},
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful password logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed password logins."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh-token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Presentations of rotated, revoked or expired refresh tokens."},
	{ID: authcore.MetricRefreshFamilyRevoked, Name: "authcore_refresh_family_revoked_total", Help: "Token families revoked after reuse."},
	{ID: authcore.MetricTokensRevoked, Name: "authcore_tokens_revoked_total", Help: "Refresh tokens revoked."},
	{ID: authcore.MetricCodeIssued, Name: "authcore_code_issued_total", Help: "One-time codes issued."},
	{ID: authcore.MetricCodeVerified, Name: "authcore_code_verified_total", Help: "One-time codes accepted."},
	{ID: authcore.MetricCodeInvalid, Name: "authcore_code_invalid_total", Help: "Wrong one-time code submissions."},
	{ID: authcore.MetricCodeExpired, Name: "authcore_code_expired_total", Help: "Expired one-time code submissions."},
	{ID: authcore.MetricCodeAttemptsExceeded, Name: "authcore_code_attempts_exceeded_total", Help: "One-time codes locked by the attempt cap."},
	{ID: authcore.MetricVerificationSent, Name: "authcore_verification_sent_total", Help: "Verification codes sent."},
	{ID: authcore.MetricVerificationConfirmed, Name: "authcore_verification_confirmed_total", Help: "Emails and phone numbers verified."},
	{ID: authcore.MetricMagicLinkSent, Name: "authcore_magic_link_sent_total", Help: "Magic links sent."},
	{ID: authcore.MetricMagicLinkVerified, Name: "authcore_magic_link_verified_total", Help: "Magic-link sign-ins."},
	{ID: authcore.MetricMagicLinkBrowserMismatch, Name: "authcore_magic_link_browser_mismatch_total", Help: "Magic links opened in a different browser."},
	{ID: authcore.MetricPasswordResetRequested, Name: "authcore_password_reset_requested_total", Help: "Password reset codes sent."},
	{ID: authcore.MetricPasswordResetConfirmed, Name: "authcore_password_reset_confirmed_total", Help: "Passwords reset."},
	{ID: authcore.MetricDeliverySync, Name: "authcore_delivery_sync_total", Help: "Messages sent synchronously."},
	{ID: authcore.MetricDeliveryQueued, Name: "authcore_delivery_queued_total", Help: "Messages handed to the job queue."},
	{ID: authcore.MetricDeliveryFailure, Name: "authcore_delivery_failure_total", Help: "Message deliveries that failed."},
	{ID: authcore.MetricDeliverySuppressed, Name: "authcore_delivery_suppressed_total", Help: "Delivery failures logged and not returned."},
	{ID: authcore.MetricFederatedReturning, Name: "authcore_federated_returning_total", Help: "Federated logins of already linked users."},
	{ID: authcore.MetricFederatedLinked, Name: "authcore_federated_linked_total", Help: "Federated identities linked to existing users."},
	{ID: authcore.MetricFederatedCreated, Name: "authcore_federated_created_total", Help: "Users created from federated identities."},
	{ID: authcore.MetricFederatedSelectionRequired, Name: "authcore_federated_selection_required_total", Help: "Federated logins waiting for an account choice."},
	{ID: authcore.MetricRegistration, Name: "authcore_registration_total", Help: "Users registered with a password."},
	{ID: authcore.MetricAuditDropped, Name: "authcore_audit_dropped_total", Help: "Audit events dropped because the buffer was full."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricRefreshLatency, Name: "authcore_refresh_latency_seconds", Help: "Refresh-token rotation latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// in-process bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BucketLabel renders the upper bound of bucket i the way Prometheus
// writes its le label.
func BucketLabel(i int) string {
	if i >= len(HistogramUpperBounds) {
		return "+Inf"
	}
	return strconv.FormatFloat(HistogramUpperBounds[i], 'g', -1, 64)
}

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
