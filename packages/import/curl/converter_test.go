package curl

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParse_SimpleGet(t *testing.T) {
	parsed, err := NewConverter().Parse(`curl https://api.example.com/users`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if parsed.Method != "GET" {
		t.Errorf("expected method GET, got %s", parsed.Method)
	}
	if parsed.URL != "https://api.example.com/users" {
		t.Errorf("expected URL https://api.example.com/users, got %s", parsed.URL)
	}
}

func TestParse_PostWithData(t *testing.T) {
	parsed, err := NewConverter().Parse(`curl -X POST https://api.example.com/users -d '{"name":"John"}'`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if parsed.Method != "POST" {
		t.Errorf("expected method POST, got %s", parsed.Method)
	}
	if parsed.Body != `{"name":"John"}` {
		t.Errorf("expected body {\"name\":\"John\"}, got %s", parsed.Body)
	}
}

func TestParse_WithHeaders(t *testing.T) {
	parsed, err := NewConverter().Parse(`curl -H "Content-Type: application/json" -H "Authorization: Bearer token123" https://api.example.com/users`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Header{{"Content-Type", "application/json"}, {"Authorization", "Bearer token123"}}
	if !reflect.DeepEqual(parsed.Headers, want) {
		t.Errorf("expected headers %v, got %v", want, parsed.Headers)
	}
	if got := parsed.Header("authorization"); got != "Bearer token123" {
		t.Errorf("Header(authorization) = %q", got)
	}
}

func TestParse_MethodInference(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{`curl -d "name=John" https://api.example.com/users`, "POST"},
		{`curl -G -d "q=go" https://api.example.com/search`, "GET"},
		{`curl -I https://api.example.com/health`, "HEAD"},
		{`curl -X delete https://api.example.com/users/1`, "DELETE"},
		{`curl --json '{"a":1}' https://api.example.com/users`, "POST"},
	}

	for _, tt := range tests {
		parsed, err := NewConverter().Parse(tt.cmd)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.cmd, err)
		}
		if parsed.Method != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.cmd, tt.want, parsed.Method)
		}
	}
}

func TestParse_Flags(t *testing.T) {
	parsed, err := NewConverter().Parse(`curl -sS -k -L -m 2.5 -u admin:secret -A bot -b "a=1" --url https://api.example.com/admin`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !parsed.Insecure || !parsed.FollowRedirects {
		t.Errorf("expected insecure and follow redirects, got %+v", parsed)
	}
	if parsed.Timeout != 2500*time.Millisecond {
		t.Errorf("expected timeout 2.5s, got %s", parsed.Timeout)
	}
	if parsed.BasicAuth != "admin:secret" {
		t.Errorf("expected basicAuth admin:secret, got %s", parsed.BasicAuth)
	}
	if parsed.Header("User-Agent") != "bot" || parsed.Header("Cookie") != "a=1" {
		t.Errorf("unexpected headers %v", parsed.Headers)
	}
	if parsed.URL != "https://api.example.com/admin" {
		t.Errorf("unexpected URL %s", parsed.URL)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, cmd := range []string{
		`curl`,
		`curl -X`,
		`curl -H "no colon" https://api.example.com`,
		`curl -m soon https://api.example.com`,
	} {
		if _, err := NewConverter().Parse(cmd); err == nil {
			t.Errorf("%s: expected error", cmd)
		}
	}
}

func TestConvertCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		opts []Option
		want string
	}{
		{
			name: "get",
			cmd:  `curl -L https://api.example.com/users`,
			want: `requester get https://api.example.com/users`,
		},
		{
			name: "json body drops content type",
			cmd:  `curl -L -X POST -H 'Content-Type: application/json' -d '{"name":"John"}' https://api.example.com/users`,
			want: `requester post https://api.example.com/users --json '{"name":"John"}'`,
		},
		{
			name: "form body",
			cmd:  `curl -L -d a=1 -d b=2 https://api.example.com/form`,
			want: `requester post https://api.example.com/form --data 'a=1&b=2'`,
		},
		{
			name: "query data",
			cmd:  `curl -L -G -d q=go -d page=2 https://api.example.com/search`,
			want: `requester get https://api.example.com/search -q q=go -q page=2`,
		},
		{
			name: "basic auth and no redirects",
			cmd:  `curl -u user:pass https://api.example.com/me`,
			want: `requester get https://api.example.com/me -H 'Authorization: Basic dXNlcjpwYXNz' --no-follow`,
		},
		{
			name: "unusual method",
			cmd:  `curl -L -X OPTIONS https://api.example.com/`,
			want: `requester request OPTIONS https://api.example.com/`,
		},
		{
			name: "timeout and fail",
			cmd:  `curl -L -k -m 3 https://api.example.com/`,
			opts: []Option{WithExpectSuccess(true)},
			want: `requester get https://api.example.com/ -k --timeout 3s --fail`,
		},
		{
			name: "quotes in body",
			cmd:  `curl -L -d "it's" https://api.example.com/`,
			want: `requester post https://api.example.com/ --data 'it'\''s'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewConverter(tt.opts...).ConvertCommand(tt.cmd)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ConvertCommand()\n got: %s\nwant: %s", got, tt.want)
			}
		})
	}
}

func TestConvertFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.sh")
	content := "# exported from the browser\ncurl -L https://api.example.com/a\n\ncurl -L \\\n  -X DELETE \\\n  https://api.example.com/b\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := NewConverter().ConvertFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "requester get https://api.example.com/a\nrequester delete https://api.example.com/b\n"
	if got != want {
		t.Errorf("ConvertFile()\n got: %q\nwant: %q", got, want)
	}

	if _, err := NewConverter().ConvertReader(strings.NewReader("curl -X")); err == nil {
		t.Error("expected error for invalid command")
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize(`curl -d '' -H "A: \"b\"" 'x\y'`)
	want := []string{"curl", "-d", "", "-H", `A: "b"`, `x\y`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tokenize() = %q, want %q", got, want)
	}
}
