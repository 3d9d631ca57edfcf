// Package httpx holds the HTTP client shared by every outbound integration
// (model endpoints, Google Sheets, Slack).
package httpx

import (
	"net/http"
	"time"
)

const (
	defaultExternalHTTPTimeout = 90 * time.Second
	minExternalHTTPTimeout     = 5 * time.Second
)

var externalHTTPClient = &http.Client{
	Timeout: defaultExternalHTTPTimeout,
}

// ConfigureExternalHTTPClient applies the configured timeout and returns the
// value in effect. Non-positive values keep the default; anything shorter
// than five seconds is raised to five.
func ConfigureExternalHTTPClient(timeoutSeconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = max(time.Duration(timeoutSeconds)*time.Second, minExternalHTTPTimeout)
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}

func ExternalHTTPClient() *http.Client {
	return externalHTTPClient
}
