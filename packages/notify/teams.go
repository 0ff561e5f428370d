package notify

import (
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/abdul-hamid-achik/requester/packages/http"
)

// TeamsNotifier sends notifications to Microsoft Teams via webhook
type TeamsNotifier struct {
	webhookURL string
	options    []http.ClientOption
	client     *http.Client
	now        func() time.Time
}

// TeamsOption is a functional option for TeamsNotifier
type TeamsOption func(*TeamsNotifier)

// WithTeamsClientOptions configures the requester that posts to the webhook
func WithTeamsClientOptions(opts ...http.ClientOption) TeamsOption {
	return func(t *TeamsNotifier) {
		t.options = append(t.options, opts...)
	}
}

// NewTeamsNotifier creates a new Teams notifier
func NewTeamsNotifier(webhookURL string, opts ...TeamsOption) *TeamsNotifier {
	t := &TeamsNotifier{
		webhookURL: webhookURL,
		options:    []http.ClientOption{http.WithTimeout(10 * time.Second)},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}
	t.client = http.NewClient(t.options...)

	return t
}

func (t *TeamsNotifier) Name() string {
	return "teams"
}

// teamsMessage is a message carrying one Adaptive Card
type teamsMessage struct {
	Type        string      `json:"type"`
	Attachments []teamsCard `json:"attachments"`
}

type teamsCard struct {
	ContentType string           `json:"contentType"`
	ContentURL  *string          `json:"contentUrl"`
	Content     teamsCardContent `json:"content"`
}

type teamsCardContent struct {
	Schema  string       `json:"$schema"`
	Type    string       `json:"type"`
	Version string       `json:"version"`
	Body    []teamsBlock `json:"body"`
}

type teamsBlock struct {
	Type      string        `json:"type"`
	Size      string        `json:"size,omitempty"`
	Weight    string        `json:"weight,omitempty"`
	Text      string        `json:"text,omitempty"`
	Color     string        `json:"color,omitempty"`
	Wrap      bool          `json:"wrap,omitempty"`
	Columns   []teamsColumn `json:"columns,omitempty"`
	Items     []teamsBlock  `json:"items,omitempty"`
	Spacing   string        `json:"spacing,omitempty"`
	Separator bool          `json:"separator,omitempty"`
}

type teamsColumn struct {
	Type  string       `json:"type"`
	Width string       `json:"width"`
	Items []teamsBlock `json:"items"`
}

func teamsFact(label, value, color string) teamsColumn {
	return teamsColumn{
		Type:  "Column",
		Width: "stretch",
		Items: []teamsBlock{
			{Type: "TextBlock", Text: "**" + label + "**", Wrap: true},
			{Type: "TextBlock", Text: value, Color: color, Wrap: true},
		},
	}
}

// Notify sends a notification to Microsoft Teams
func (t *TeamsNotifier) Notify(summary *Summary) error {
	color := "good"
	if summary.Failed > 0 {
		color = "attention"
	}

	columns := []teamsColumn{
		teamsFact("Checks", fmt.Sprintf("%d", summary.Total), ""),
		teamsFact("Passed", fmt.Sprintf("%d", summary.Passed), "good"),
		teamsFact("Failed", fmt.Sprintf("%d", summary.Failed), "attention"),
		teamsFact("Duration", summary.Duration.Round(time.Millisecond).String(), ""),
	}
	if summary.StatusCode > 0 {
		columns = append(columns, teamsFact("Status", fmt.Sprintf("%d", summary.StatusCode), ""))
	}

	body := []teamsBlock{
		{
			Type:   "TextBlock",
			Size:   "Large",
			Weight: "Bolder",
			Text:   summary.headline(),
			Color:  color,
		},
		{
			Type: "TextBlock",
			Text: summary.Title,
			Wrap: true,
		},
		{
			Type:      "ColumnSet",
			Separator: true,
			Spacing:   "Medium",
			Columns:   columns,
		},
	}

	if len(summary.Failures) > 0 {
		body = append(body, teamsBlock{
			Type:      "TextBlock",
			Text:      "**Failed:**",
			Separator: true,
			Spacing:   "Medium",
		})
		for _, f := range summary.Failures {
			body = append(body, teamsBlock{Type: "TextBlock", Text: fmt.Sprintf("- `%s`", f.Name), Wrap: true})
			for _, err := range f.Errors {
				body = append(body, teamsBlock{Type: "TextBlock", Text: "  - " + err, Wrap: true})
			}
		}
	}

	body = append(body, teamsBlock{
		Type:      "TextBlock",
		Text:      fmt.Sprintf("_requester - %s_", t.now().Format(time.RFC3339)),
		Separator: true,
		Spacing:   "Medium",
	})

	msg := teamsMessage{
		Type: "message",
		Attachments: []teamsCard{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: teamsCardContent{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.2",
				Body:    body,
			},
		}},
	}

	if err := post(t.client, t.webhookURL, msg, nethttp.StatusOK, nethttp.StatusAccepted); err != nil {
		return fmt.Errorf("failed to send Teams notification: %w", err)
	}
	return nil
}
