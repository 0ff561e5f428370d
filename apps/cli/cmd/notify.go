package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/requester/packages/http"
	"github.com/abdul-hamid-achik/requester/packages/notify"
	"github.com/abdul-hamid-achik/requester/packages/output"
	"github.com/abdul-hamid-achik/requester/packages/stress"
	"github.com/spf13/pflag"
)

type notifyOptions struct {
	service      string
	on           string
	slackWebhook string
	slackChannel string
	teamsWebhook string
}

func (o *notifyOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.service, "notify", getEnvString("REQUESTER_NOTIFY", ""), "Notification services, comma-separated: slack, teams (env: REQUESTER_NOTIFY)")
	fs.StringVar(&o.on, "notify-on", getEnvString("REQUESTER_NOTIFY_ON", "failure"), "When to notify: always, failure, success, recovery (env: REQUESTER_NOTIFY_ON)")
	fs.StringVar(&o.slackWebhook, "slack-webhook", getEnvString("SLACK_WEBHOOK", ""), "Slack webhook URL (env: SLACK_WEBHOOK)")
	fs.StringVar(&o.slackChannel, "slack-channel", getEnvString("SLACK_CHANNEL", ""), "Slack channel override (env: SLACK_CHANNEL)")
	fs.StringVar(&o.teamsWebhook, "teams-webhook", getEnvString("TEAMS_WEBHOOK", ""), "Microsoft Teams webhook URL (env: TEAMS_WEBHOOK)")
}

// manager returns nil when no service is selected
func (o *notifyOptions) manager(g *globalOptions) (*notify.Manager, error) {
	if strings.TrimSpace(o.service) == "" {
		return nil, nil
	}

	on, err := notify.ParseNotifyOn(o.on)
	if err != nil {
		return nil, usageError(err)
	}

	clientOpts := []http.ClientOption{http.WithTimeout(10 * time.Second), http.WithLogger(g.logger)}
	m := notify.NewManager(on)
	for _, service := range strings.Split(o.service, ",") {
		switch strings.ToLower(strings.TrimSpace(service)) {
		case "":
		case "slack":
			if o.slackWebhook == "" {
				return nil, usageError(errors.New("--notify slack needs --slack-webhook"))
			}
			var opts []notify.SlackOption
			if o.slackChannel != "" {
				opts = append(opts, notify.WithSlackChannel(o.slackChannel))
			}
			opts = append(opts, notify.WithSlackClientOptions(clientOpts...))
			m.AddNotifier(notify.NewSlackNotifier(o.slackWebhook, opts...))
		case "teams":
			if o.teamsWebhook == "" {
				return nil, usageError(errors.New("--notify teams needs --teams-webhook"))
			}
			m.AddNotifier(notify.NewTeamsNotifier(o.teamsWebhook, notify.WithTeamsClientOptions(clientOpts...)))
		default:
			return nil, usageError(fmt.Errorf("unknown notification service %q (want slack or teams)", service))
		}
	}
	return m, nil
}

// exchangeSummary counts each check, plus the request itself when it
// failed or ran without checks
func exchangeSummary(title string, e *output.Exchange, failStatus bool) *notify.Summary {
	s := &notify.Summary{Title: title, Duration: e.Duration()}
	if e.Dump != nil && e.Dump.Incoming.Info != nil {
		s.StatusCode = e.Dump.Incoming.Info.StatusCode
	}

	add := func(name string, passed bool, errs ...string) {
		s.Total++
		if passed {
			s.Passed++
			return
		}
		s.Failed++
		s.Failures = append(s.Failures, notify.Failure{Name: name, Errors: errs})
	}

	if e.Err != nil {
		add("request", false, e.Err.Error())
		return s
	}
	for _, c := range e.Checks {
		var errs []string
		if c.Message != "" {
			errs = append(errs, c.Message)
		}
		add(strings.TrimSpace(c.Subject+" "+c.Operator), c.Passed, errs...)
	}
	if failStatus && (s.StatusCode < 200 || s.StatusCode > 299) {
		add("status", false, fmt.Sprintf("server responded with %d", s.StatusCode))
	}
	if s.Total == 0 {
		add("request", true)
	}
	return s
}

// stressSummary counts each threshold; a run without thresholds passes
func stressSummary(title string, report *stress.Report) *notify.Summary {
	s := &notify.Summary{Title: title, Duration: report.Duration}
	for _, t := range report.Thresholds {
		s.Total++
		if t.Passed {
			s.Passed++
			continue
		}
		s.Failed++
		s.Failures = append(s.Failures, notify.Failure{
			Name:   t.Name,
			Errors: []string{fmt.Sprintf("expected %s, got %s", t.Expected, t.Actual)},
		})
	}
	if s.Total == 0 {
		s.Total, s.Passed = 1, 1
	}
	return s
}
