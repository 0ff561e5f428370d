package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exampleAuth = &AWSAuth{
	AccessKey: "AKIDEXAMPLE",
	SecretKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
	Region:    "us-east-1",
	Service:   "service",
}

var exampleTime = time.Date(2015, 8, 30, 12, 36, 0, 0, time.UTC)

func TestSignAWS_Vectors(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		signature string
	}{
		{
			name:      "get vanilla",
			url:       "https://example.amazonaws.com/",
			signature: "5fa00fa31553b73ebf1942676e86291e8372ff2a2260956d9b8aae1d763fbf31",
		},
		{
			name:      "query keys are sorted",
			url:       "https://example.amazonaws.com/?Param2=value2&Param1=value1",
			signature: "b97d918cfa904a5beff61c982a1b6f458b799221646efd99d3219ec94cdf2500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, tt.url, nil)
			require.NoError(t, err)

			signAWS(req, nil, exampleAuth, exampleTime)

			assert.Equal(t, "20150830T123600Z", req.Header.Get("X-Amz-Date"))
			assert.Equal(t,
				"AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20150830/us-east-1/service/aws4_request, "+
					"SignedHeaders=host;x-amz-date, Signature="+tt.signature,
				req.Header.Get("Authorization"))
			assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", req.Header.Get("X-Amz-Content-Sha256"))
		})
	}
}

func TestSignAWS_SessionToken(t *testing.T) {
	auth := *exampleAuth
	auth.SessionToken = "token"

	req, err := http.NewRequest(http.MethodGet, "https://example.amazonaws.com/", nil)
	require.NoError(t, err)
	signAWS(req, nil, &auth, exampleTime)

	assert.Equal(t, "token", req.Header.Get("X-Amz-Security-Token"))
	assert.Contains(t, req.Header.Get("Authorization"), "SignedHeaders=host;x-amz-date;x-amz-security-token,")
}

func TestCreateCanonicalQueryString(t *testing.T) {
	assert.Equal(t, "", createCanonicalQueryString(nil))
	assert.Equal(t, "a=1&a=2&b=x%20y",
		createCanonicalQueryString(map[string][]string{"b": {"x y"}, "a": {"2", "1"}}))
}

func TestRequester_AWSAuth(t *testing.T) {
	var authorization, amzDate string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		amzDate = r.Header.Get("X-Amz-Date")
	}))
	t.Cleanup(server.Close)

	r := New(server.URL, WithAWSAuth(*exampleAuth)).WithJSON(map[string]int{"a": 1})
	defer r.Close()
	_, err := r.Post()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(authorization, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/"))
	assert.Len(t, amzDate, len("20060102T150405Z"))

	require.NoError(t, r.SetOption(OptionAWSAuth, *exampleAuth))
	assert.Error(t, r.SetOption(OptionAWSAuth, "nope"))
}
