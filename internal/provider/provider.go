// Package provider holds what the external lookup clients share. Each
// client lives in a subpackage.
package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/piwi3910/trackcache/internal/metrics"
)

// ErrNotFound is returned when a provider has no result for a lookup.
var ErrNotFound = errors.New("not found")

// maxBody bounds how much of a provider response is read.
const maxBody = 8 << 20

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	Provider string
	Status   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.Provider, e.Status, http.StatusText(e.Status))
}

// CheckStatus maps a response status to an error. 404 maps to ErrNotFound.
func CheckStatus(name string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	default:
		return &StatusError{Provider: name, Status: resp.StatusCode}
	}
}

// Do sends req and returns the body of a successful response.
func Do(client *http.Client, name string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckStatus(name, resp); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", name, err)
	}
	return body, nil
}

// DoJSON sends req and decodes a successful JSON response into out.
func DoJSON(client *http.Client, name string, req *http.Request, out any) error {
	body, err := Do(client, name, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", name, err)
	}
	return nil
}

// Observe records the outcome of a lookup. A missing result is not a
// provider failure.
func Observe(name string, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	metrics.RecordProviderRequest(name, err)
}
