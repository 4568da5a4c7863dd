package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"
)

// Product names this software in User-Agent headers.
const Product = "MeterSync"

//go:embed VERSION
var version string

// Version returns the trimmed release version embedded at build time.
func Version() string {
	return strings.TrimSpace(version)
}

// UserAgent is the value sent to every vendor and storage API.
func UserAgent() string {
	return Product + "/" + Version()
}

// agentTransport stamps the MeterSync user agent on requests. The caller's
// request is cloned first since RoundTrippers must not modify it.
type agentTransport struct {
	next http.RoundTripper
}

func (t agentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", UserAgent())
	return t.next.RoundTrip(req)
}

// HTTPClient returns a client for the SolarEdge API. A zero timeout means no
// timeout.
func HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: agentTransport{next: http.DefaultTransport},
		Timeout:   timeout,
	}
}
