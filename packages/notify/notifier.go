// Package notify posts the outcome of a request or stress run to chat
// webhooks.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/requester/packages/http"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when a run fails
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when a run passes
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends notifications on failures and on the first pass
	// after a failure
	NotifyRecovery NotifyOn = "recovery"
)

// ParseNotifyOn resolves a --notify-on value
func ParseNotifyOn(s string) (NotifyOn, error) {
	switch n := NotifyOn(strings.ToLower(strings.TrimSpace(s))); n {
	case "":
		return NotifyFailure, nil
	case NotifyAlways, NotifyFailure, NotifySuccess, NotifyRecovery:
		return n, nil
	default:
		return "", fmt.Errorf("unknown notify-on value %q (want always, failure, success or recovery)", s)
	}
}

// Summary describes one finished run
type Summary struct {
	// Title names what ran, usually "METHOD url"
	Title      string        `json:"title"`
	StatusCode int           `json:"status_code,omitempty"`
	Total      int           `json:"total"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
	Failures   []Failure     `json:"failures,omitempty"`
	IsRecovery bool          `json:"is_recovery,omitempty"`
}

// Failure is one failed check or threshold
type Failure struct {
	Name   string   `json:"name"`
	Errors []string `json:"errors,omitempty"`
}

// Success reports whether nothing failed
func (s *Summary) Success() bool {
	return s.Failed == 0
}

func (s *Summary) headline() string {
	switch {
	case s.Failed > 0:
		return fmt.Sprintf("%d of %d check(s) failed", s.Failed, s.Total)
	case s.IsRecovery:
		return "Recovered"
	default:
		return "All checks passed"
	}
}

// Notifier is the interface for notification services
type Notifier interface {
	// Notify sends a notification about a run
	Notify(summary *Summary) error

	// Name returns the name of the notifier
	Name() string
}

// Manager manages multiple notifiers
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
	lastState bool // true if last run was successful
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		lastState: true,
	}
}

// AddNotifier adds a notifier to the manager
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Len returns the number of notifiers
func (m *Manager) Len() int {
	return len(m.notifiers)
}

// Notify sends notifications based on the configured policy. The manager
// remembers the outcome so repeated runs can report a recovery.
func (m *Manager) Notify(summary *Summary) error {
	shouldNotify := false
	currentSuccess := summary.Success()

	switch m.notifyOn {
	case NotifyAlways:
		shouldNotify = true
	case NotifyFailure:
		shouldNotify = !currentSuccess
	case NotifySuccess:
		shouldNotify = currentSuccess
	case NotifyRecovery:
		if !m.lastState && currentSuccess {
			shouldNotify = true
			summary.IsRecovery = true
		}
		if !currentSuccess {
			shouldNotify = true
		}
	}

	m.lastState = currentSuccess

	if !shouldNotify {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Notify(summary); err != nil {
			lastErr = fmt.Errorf("%s: %w", n.Name(), err)
		}
	}

	return lastErr
}

// post sends payload as JSON to a webhook and accepts any of the given
// statuses
func post(client *http.Client, webhookURL string, payload any, accepted ...int) error {
	r := client.New(webhookURL).WithJSON(payload).Frozen()
	defer r.Close()

	if _, err := r.Post(); err != nil {
		return err
	}
	for _, code := range accepted {
		if r.StatusCode() == code {
			return nil
		}
	}
	body, _ := r.Response()
	return fmt.Errorf("webhook returned status %d: %s", r.StatusCode(), string(body))
}
