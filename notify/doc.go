// Package notify delivers verification and password-reset links.
//
// [Templates] renders the messages, a [Notifier] delivers them and
// [Dispatcher] moves delivery off the request path. Two notifiers ship:
// [ResendNotifier] for the Resend HTTP API and [LogNotifier] for local
// development, which writes the message to a slog.Logger instead.
package notify
