// Package httputil holds request and response helpers shared by the
// feed adapters.
package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// UserAgent is sent on every outbound request.
const UserAgent = `vulnfeed/2.0`

// NewRequest constructs a GET request for the provided URL with the
// service User-Agent set.
func NewRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	return req, nil
}

// CheckResponse reports an error unless the response's status code is
// one of the acceptable codes. The error attempts to include some
// content from the server's response.
func CheckResponse(resp *http.Response, acceptableCodes ...int) error {
	for _, code := range acceptableCodes {
		if resp.StatusCode == code {
			return nil
		}
	}
	limitBody, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err == nil {
		return fmt.Errorf("unexpected status code: %s (body starts: %q)", resp.Status, limitBody)
	}
	return fmt.Errorf("unexpected status code: %s", resp.Status)
}
