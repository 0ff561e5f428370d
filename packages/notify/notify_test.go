package notify

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	calls []*Summary
	err   error
}

func (r *recordingNotifier) Notify(s *Summary) error {
	r.calls = append(r.calls, s)
	return r.err
}

func (r *recordingNotifier) Name() string { return "recording" }

func passing() *Summary {
	return &Summary{Title: "GET http://example.test", Total: 2, Passed: 2}
}

func failing() *Summary {
	return &Summary{
		Title:    "GET http://example.test",
		Total:    2,
		Passed:   1,
		Failed:   1,
		Failures: []Failure{{Name: "status ==", Errors: []string{"expected 200, got 500"}}},
	}
}

func TestParseNotifyOn(t *testing.T) {
	for in, want := range map[string]NotifyOn{
		"":          NotifyFailure,
		"always":    NotifyAlways,
		"FAILURE":   NotifyFailure,
		" success ": NotifySuccess,
		"recovery":  NotifyRecovery,
	} {
		got, err := ParseNotifyOn(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseNotifyOn("sometimes")
	assert.Error(t, err)
}

func TestManager_Policies(t *testing.T) {
	tests := []struct {
		on   NotifyOn
		runs []*Summary
		want int
	}{
		{NotifyAlways, []*Summary{passing(), failing()}, 2},
		{NotifyFailure, []*Summary{passing(), failing(), passing()}, 1},
		{NotifySuccess, []*Summary{passing(), failing(), passing()}, 2},
		{NotifyRecovery, []*Summary{passing(), failing(), passing(), passing()}, 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.on), func(t *testing.T) {
			rec := &recordingNotifier{}
			m := NewManager(tt.on, rec)
			for _, s := range tt.runs {
				require.NoError(t, m.Notify(s))
			}
			assert.Len(t, rec.calls, tt.want)
		})
	}
}

func TestManager_RecoveryFlag(t *testing.T) {
	rec := &recordingNotifier{}
	m := NewManager(NotifyRecovery)
	m.AddNotifier(rec)
	assert.Equal(t, 1, m.Len())

	require.NoError(t, m.Notify(failing()))
	require.NoError(t, m.Notify(passing()))

	require.Len(t, rec.calls, 2)
	assert.False(t, rec.calls[0].IsRecovery)
	assert.True(t, rec.calls[1].IsRecovery)
	assert.Equal(t, "Recovered", rec.calls[1].headline())
}

func TestManager_ReportsNotifierErrors(t *testing.T) {
	m := NewManager(NotifyAlways, &recordingNotifier{err: errors.New("down")})
	err := m.Notify(passing())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording: down")
}

func webhook(t *testing.T, status int) (*httptest.Server, *map[string]any) {
	t.Helper()
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &received))
		w.WriteHeader(status)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)
	return server, &received
}

func TestSlackNotifier(t *testing.T) {
	server, received := webhook(t, http.StatusOK)

	s := NewSlackNotifier(server.URL, WithSlackChannel("#api"), WithSlackUsername("bot"))
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	require.NoError(t, s.Notify(failing()))

	msg := *received
	assert.Equal(t, "#api", msg["channel"])
	assert.Equal(t, "bot", msg["username"])

	attachments := msg["attachments"].([]any)
	require.Len(t, attachments, 1)
	attachment := attachments[0].(map[string]any)
	assert.Equal(t, "danger", attachment["color"])
	assert.Contains(t, attachment["title"], "1 of 2 check(s) failed")
	assert.Contains(t, attachment["text"], "expected 200, got 500")
	assert.Equal(t, float64(1700000000), attachment["ts"])
}

func TestSlackNotifier_RejectedStatus(t *testing.T) {
	server, _ := webhook(t, http.StatusForbidden)

	err := NewSlackNotifier(server.URL).Notify(passing())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestTeamsNotifier(t *testing.T) {
	server, received := webhook(t, http.StatusAccepted)

	summary := passing()
	summary.StatusCode = 200
	require.NoError(t, NewTeamsNotifier(server.URL).Notify(summary))

	msg := *received
	assert.Equal(t, "message", msg["type"])
	card := msg["attachments"].([]any)[0].(map[string]any)
	assert.Equal(t, "application/vnd.microsoft.card.adaptive", card["contentType"])

	body := card["content"].(map[string]any)["body"].([]any)
	headline := body[0].(map[string]any)
	assert.Equal(t, "All checks passed", headline["text"])
	assert.Equal(t, "good", headline["color"])

	columns := body[2].(map[string]any)["columns"].([]any)
	assert.Len(t, columns, 5)
}
