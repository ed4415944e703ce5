package notify

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	json "github.com/goccy/go-json"
)

// =============================================================================
// SlackNotifier
// =============================================================================

// SlackNotifier posts events to a Slack incoming webhook.
type SlackNotifier struct {
	WebhookURL string
	Channel    string
	Username   string
	Client     *http.Client
}

// SlackOption configures SlackNotifier.
type SlackOption func(*SlackNotifier)

// WithSlackChannel sets the channel to post to.
func WithSlackChannel(channel string) SlackOption {
	return func(n *SlackNotifier) { n.Channel = channel }
}

// WithSlackUsername sets the bot username.
func WithSlackUsername(username string) SlackOption {
	return func(n *SlackNotifier) { n.Username = username }
}

// NewSlackNotifier creates a Slack webhook notifier.
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	n := &SlackNotifier{
		WebhookURL: webhookURL,
		Username:   "agentgraph",
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	severity := event.Severity
	if severity == "" {
		severity = SeverityFor(event.Type)
	}

	footer := fmt.Sprintf("Graph: %s | Execution: %s", event.Graph, event.ExecutionID)
	if event.NodeID != "" {
		footer += " | Node: " + event.NodeID
	}

	payload := slackPayload{
		Username: n.Username,
		Channel:  n.Channel,
		Attachments: []slackAttachment{{
			Color:     colorForSeverity(severity),
			Title:     fmt.Sprintf("%s %s", emojiForEvent(event.Type), event.Type),
			Text:      event.Message,
			Footer:    footer,
			Timestamp: event.Timestamp.Unix(),
			Fields:    fieldsFromMetadata(event.Metadata),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	return post(ctx, n.Client, n.WebhookURL, nil, body)
}

func emojiForEvent(t EventType) string {
	switch t {
	case EventRunStarted, EventRunResumed:
		return ":rocket:"
	case EventRunCompleted:
		return ":white_check_mark:"
	case EventRunFailed, EventNodeFailed:
		return ":x:"
	case EventRunCancelled:
		return ":no_entry_sign:"
	case EventRunPaused, EventHumanInputRequired:
		return ":raising_hand:"
	case EventContextWarning:
		return ":warning:"
	default:
		return ":loudspeaker:"
	}
}

func colorForSeverity(severity string) string {
	switch severity {
	case SeverityError:
		return "danger"
	case SeverityWarning:
		return "warning"
	default:
		return "good"
	}
}

// fieldsFromMetadata renders metadata as short fields in key order.
func fieldsFromMetadata(metadata map[string]any) []slackField {
	if len(metadata) == 0 {
		return nil
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]slackField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, slackField{
			Title: k,
			Value: fmt.Sprintf("%v", metadata[k]),
			Short: true,
		})
	}
	return fields
}

type slackPayload struct {
	Username    string            `json:"username,omitempty"`
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
	Fields    []slackField `json:"fields,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}
