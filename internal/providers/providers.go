// Package providers contains the external content API clients. Clients are
// pure I/O: one outbound HTTP call per invocation, no retries, no
// persistence. Failures come back as error values that include the
// underlying cause; nothing in this package panics past its boundary.
package providers

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBody caps how much of an upstream error response is echoed into
// error messages and logs.
const maxErrorBody = 512

// newHTTPClient returns the default client used when a provider is
// constructed without one. The timeout is the only cancellation layer below
// the request context.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// statusError formats a non-2xx upstream response into an error carrying the
// status code and a snippet of the body.
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%s: API call failed with status code %d: %s", provider, resp.StatusCode, string(body))
}
