package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"campuscard/pkg/platform/sentinel"
)

// HTTPStore talks to the external blob backend over plain HTTP:
// PUT/GET/HEAD/DELETE /objects/{key}. The backend has untrusted latency, so
// every call runs under the caller's context deadline and 5xx responses are
// marked transient for the retrying client.
type HTTPStore struct {
	base   string
	client *http.Client
}

// NewHTTP constructs an adapter against baseURL (no trailing slash required).
func NewHTTP(baseURL string, client *http.Client) *HTTPStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{base: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *HTTPStore) objectURL(ref string) string {
	return s.base + "/objects/" + url.PathEscape(ref)
}

func (s *HTTPStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(key), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", wrapNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", Transient(fmt.Errorf("backend returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return "", fmt.Errorf("backend rejected put: %d", resp.StatusCode)
	}
	return key, nil
}

func (s *HTTPStore) URL(_ context.Context, ref string) (string, error) {
	return s.objectURL(ref), nil
}

func (s *HTTPStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(ref), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, wrapNetErr(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("blob %s: %w", ref, sentinel.ErrNotFound)
	case resp.StatusCode >= 500:
		return nil, Transient(fmt.Errorf("backend returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("backend rejected fetch: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *HTTPStore) Exists(ctx context.Context, ref string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.objectURL(ref), nil)
	if err != nil {
		return false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, wrapNetErr(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 500:
		return false, Transient(fmt.Errorf("backend returned %d", resp.StatusCode))
	default:
		return false, fmt.Errorf("backend rejected head: %d", resp.StatusCode)
	}
}

func (s *HTTPStore) Delete(ctx context.Context, ref string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(ref), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return wrapNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Transient(fmt.Errorf("backend returned %d", resp.StatusCode))
	}
	// 404 on delete is idempotent success.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("backend rejected delete: %d", resp.StatusCode)
	}
	return nil
}

// wrapNetErr marks network-level failures (timeouts, refused connections) as
// transient so the client retries them.
func wrapNetErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}
	// url.Error wraps dial failures that don't implement net.Error timeouts.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Transient(err)
	}
	return err
}
