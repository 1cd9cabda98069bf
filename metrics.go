package authcore

import (
	internalmetrics "github.com/MrEthical07/authcore/internal/metrics"
)

// MetricID identifies a counter or histogram in the in-process metrics
// system.
type MetricID = internalmetrics.MetricID

// MetricsSnapshot is a point-in-time copy of every metric.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricTokenIssued                = internalmetrics.MetricTokenIssued
	MetricLoginSuccess               = internalmetrics.MetricLoginSuccess
	MetricLoginFailure               = internalmetrics.MetricLoginFailure
	MetricRefreshSuccess             = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure             = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseDetected       = internalmetrics.MetricRefreshReuseDetected
	MetricRefreshFamilyRevoked       = internalmetrics.MetricRefreshFamilyRevoked
	MetricTokensRevoked              = internalmetrics.MetricTokensRevoked
	MetricCodeIssued                 = internalmetrics.MetricCodeIssued
	MetricCodeVerified               = internalmetrics.MetricCodeVerified
	MetricCodeInvalid                = internalmetrics.MetricCodeInvalid
	MetricCodeExpired                = internalmetrics.MetricCodeExpired
	MetricCodeAttemptsExceeded       = internalmetrics.MetricCodeAttemptsExceeded
	MetricVerificationSent           = internalmetrics.MetricVerificationSent
	MetricVerificationConfirmed      = internalmetrics.MetricVerificationConfirmed
	MetricMagicLinkSent              = internalmetrics.MetricMagicLinkSent
	MetricMagicLinkVerified          = internalmetrics.MetricMagicLinkVerified
	MetricMagicLinkBrowserMismatch   = internalmetrics.MetricMagicLinkBrowserMismatch
	MetricPasswordResetRequested     = internalmetrics.MetricPasswordResetRequested
	MetricPasswordResetConfirmed     = internalmetrics.MetricPasswordResetConfirmed
	MetricDeliverySync               = internalmetrics.MetricDeliverySync
	MetricDeliveryQueued             = internalmetrics.MetricDeliveryQueued
	MetricDeliveryFailure            = internalmetrics.MetricDeliveryFailure
	MetricDeliverySuppressed         = internalmetrics.MetricDeliverySuppressed
	MetricFederatedReturning         = internalmetrics.MetricFederatedReturning
	MetricFederatedLinked            = internalmetrics.MetricFederatedLinked
	MetricFederatedCreated           = internalmetrics.MetricFederatedCreated
	MetricFederatedSelectionRequired = internalmetrics.MetricFederatedSelectionRequired
	MetricRegistration               = internalmetrics.MetricRegistration
	MetricAuditDropped               = internalmetrics.MetricAuditDropped
	MetricRefreshLatency             = internalmetrics.MetricRefreshLatency
	MetricIDCount                    = internalmetrics.MetricIDCount
)
