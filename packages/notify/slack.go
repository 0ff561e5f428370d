package notify

import (
	"fmt"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/requester/packages/http"
)

// SlackNotifier sends notifications to Slack via webhook
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	options    []http.ClientOption
	client     *http.Client
	now        func() time.Time
}

// SlackOption is a functional option for SlackNotifier
type SlackOption func(*SlackNotifier)

// WithSlackChannel sets the Slack channel
func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

// WithSlackUsername sets the Slack bot username
func WithSlackUsername(username string) SlackOption {
	return func(s *SlackNotifier) {
		s.username = username
	}
}

func WithSlackIconEmoji(emoji string) SlackOption {
	return func(s *SlackNotifier) {
		s.iconEmoji = emoji
	}
}

// WithSlackClientOptions configures the requester that posts to the webhook
func WithSlackClientOptions(opts ...http.ClientOption) SlackOption {
	return func(s *SlackNotifier) {
		s.options = append(s.options, opts...)
	}
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		username:   "requester",
		iconEmoji:  ":satellite:",
		options:    []http.ClientOption{http.WithTimeout(10 * time.Second)},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}
	s.client = http.NewClient(s.options...)

	return s
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Notify sends a notification to Slack
func (s *SlackNotifier) Notify(summary *Summary) error {
	color := "good"
	emoji := ":white_check_mark:"
	switch {
	case summary.Failed > 0:
		color = "danger"
		emoji = ":x:"
	case summary.IsRecovery:
		emoji = ":tada:"
	}

	fields := []slackField{
		{Title: "Checks", Value: fmt.Sprintf("%d", summary.Total), Short: true},
		{Title: "Passed", Value: fmt.Sprintf("%d", summary.Passed), Short: true},
		{Title: "Failed", Value: fmt.Sprintf("%d", summary.Failed), Short: true},
		{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String(), Short: true},
	}
	if summary.StatusCode > 0 {
		fields = append(fields, slackField{
			Title: "Status",
			Value: fmt.Sprintf("%d", summary.StatusCode),
			Short: true,
		})
	}

	var text strings.Builder
	if len(summary.Failures) > 0 {
		text.WriteString("*Failed:*\n")
		for _, f := range summary.Failures {
			fmt.Fprintf(&text, "• `%s`\n", f.Name)
			for _, err := range f.Errors {
				fmt.Fprintf(&text, "  - %s\n", err)
			}
		}
	}

	msg := slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  fmt.Sprintf("%s %s: %s", emoji, summary.Title, summary.headline()),
			Text:   text.String(),
			Fields: fields,
			Footer: "requester",
			TS:     s.now().Unix(),
		}},
	}

	if err := post(s.client, s.webhookURL, msg, nethttp.StatusOK); err != nil {
		return fmt.Errorf("failed to send Slack notification: %w", err)
	}
	return nil
}
