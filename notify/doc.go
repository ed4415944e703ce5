// Package notify delivers run lifecycle events (started, paused, completed,
// failed, cancelled, human input required) to external channels.
//
// Implementations:
//   - SlackNotifier: Slack incoming webhooks
//   - WebhookNotifier: generic JSON webhooks
//   - LogNotifier: slog output
//   - MultiNotifier: fan-out to several notifiers
//   - NopNotifier: discards everything
//
// Example usage:
//
//	notifier := notify.NewMultiNotifier(
//	    notify.NewLogNotifier(logger),
//	    notify.NewSlackNotifier(webhookURL, notify.WithSlackChannel("#agents")),
//	)
//	deps := graph.RuntimeDependencies{Notifier: notifier}
package notify
