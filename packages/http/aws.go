package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// AWSAuth holds the credentials for AWS Signature Version 4 signing
type AWSAuth struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
	Region       string
	Service      string
}

// WithAWSAuth signs every request with AWS Signature Version 4
func WithAWSAuth(auth AWSAuth) ClientOption {
	return func(r *Requester) {
		r.settings.AWSAuth = &auth
	}
}

// signAWS signs req in place. It sets X-Amz-Date, X-Amz-Content-Sha256,
// X-Amz-Security-Token when a session token is present, and Authorization.
func signAWS(req *http.Request, body []byte, auth *AWSAuth, now time.Time) {
	t := now.UTC()
	amzDate := t.Format("20060102T150405Z")
	dateStamp := t.Format("20060102")

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	payloadHash := sha256Hash(body)

	signed := []string{"host", "x-amz-date"}
	canonicalHeaders := fmt.Sprintf("host:%s\nx-amz-date:%s\n", host, amzDate)
	if auth.SessionToken != "" {
		signed = append(signed, "x-amz-security-token")
		canonicalHeaders += fmt.Sprintf("x-amz-security-token:%s\n", auth.SessionToken)
	}
	signedHeaders := strings.Join(signed, ";")

	canonicalURI := req.URL.EscapedPath()
	if canonicalURI == "" {
		canonicalURI = "/"
	}

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI,
		createCanonicalQueryString(req.URL.Query()),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	credentialScope := fmt.Sprintf("%s/%s/%s/aws4_request", dateStamp, auth.Region, auth.Service)

	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		credentialScope,
		sha256Hash([]byte(canonicalRequest)),
	}, "\n")

	signingKey := getSignatureKey(auth.SecretKey, dateStamp, auth.Region, auth.Service)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	if auth.SessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", auth.SessionToken)
	}
	req.Header.Set("Authorization", fmt.Sprintf("AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		auth.AccessKey, credentialScope, signedHeaders, signature))
}

// createCanonicalQueryString sorts keys and values and percent-encodes
// spaces as %20
func createCanonicalQueryString(values url.Values) string {
	if len(values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	escape := func(s string) string {
		return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
	}

	var pairs []string
	for _, k := range keys {
		vals := append([]string(nil), values[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			pairs = append(pairs, escape(k)+"="+escape(v))
		}
	}

	return strings.Join(pairs, "&")
}

func sha256Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func getSignatureKey(secretKey, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretKey), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}
