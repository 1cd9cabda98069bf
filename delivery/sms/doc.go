// Package sms implements delivery.SMSSender.
//
// LogSender writes messages to a slog.Logger and is meant for development.
// WebhookSender posts each message as JSON to an HTTP endpoint, which is how
// most SMS gateways are fronted.
package sms
