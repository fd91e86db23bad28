// Package blob defines the capability interface to the remote object store
// and the retrying client the pipeline talks through. Concrete backends are
// external collaborators; the renderer and guard depend only on Store.
package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"campuscard/internal/platform/metrics"
	"campuscard/pkg/platform/sentinel"
)

// Store is the minimal object-store capability.
type Store interface {
	// Put writes data under key and returns the committed reference.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// URL resolves a reference to a fetchable URL. Backends without
	// addressable URLs return sentinel.ErrUnavailable.
	URL(ctx context.Context, ref string) (string, error)
	// Fetch reads the object bytes behind a reference.
	Fetch(ctx context.Context, ref string) ([]byte, error)
	// Exists reports whether the reference still resolves.
	Exists(ctx context.Context, ref string) (bool, error)
	// Delete removes the object. Deleting an absent reference is not an error.
	Delete(ctx context.Context, ref string) error
}

// RetryPolicy is the single injectable backoff policy for transient failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
}

// Client wraps a Store with bounded retry, write verification, a per-call
// timeout, and latency metrics. All pipeline code goes through Client, never
// a raw adapter.
type Client struct {
	store   Store
	policy  RetryPolicy
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewClient builds the retrying client. metrics may be nil in tests.
func NewClient(store Store, policy RetryPolicy, timeout time.Duration, m *metrics.Metrics) *Client {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 200 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{store: store, policy: policy, timeout: timeout, metrics: m}
}

// transientError marks a failure worth retrying. Adapters wrap timeouts and
// 5xx responses with this.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so the client retries it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked retryable by an adapter.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func (c *Client) backoff() retry.Backoff {
	b := retry.NewExponential(c.policy.BaseDelay)
	if c.policy.MaxJitter > 0 {
		b = retry.WithJitter(c.policy.MaxJitter, b)
	}
	// MaxRetries counts retries after the first attempt.
	return retry.WithMaxRetries(uint64(c.policy.MaxAttempts-1), b)
}

func (c *Client) observe(op string, start time.Time) {
	if c.metrics != nil {
		c.metrics.BlobOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// Put stores data under key with retry on transient failures and verifies the
// write by re-reading the committed reference before declaring success. An
// unverifiable write is a storage error, never success.
func (c *Client) Put(ctx context.Context, key string, data []byte) (string, error) {
	defer c.observe("put", time.Now())

	var ref string
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		r, err := c.store.Put(opCtx, key, data)
		if err != nil {
			if IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
				return retry.RetryableError(err)
			}
			return err
		}
		ref = r
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("blob put %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ok, err := c.store.Exists(verifyCtx, ref)
	if err != nil {
		return "", fmt.Errorf("blob put %s: verify write: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	if !ok {
		return "", fmt.Errorf("blob put %s: write not verifiable: %w", key, sentinel.ErrUnavailable)
	}
	return ref, nil
}

// URL resolves a reference to a fetchable URL.
func (c *Client) URL(ctx context.Context, ref string) (string, error) {
	defer c.observe("url", time.Now())
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.store.URL(opCtx, ref)
}

// Fetch reads the bytes behind a reference.
func (c *Client) Fetch(ctx context.Context, ref string) ([]byte, error) {
	defer c.observe("fetch", time.Now())
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	data, err := c.store.Fetch(opCtx, ref)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("blob fetch %s: %w", ref, sentinel.ErrUnavailable)
	}
	return data, nil
}

// Exists reports whether a reference still resolves. Used by self-heal as the
// cheap validity probe.
func (c *Client) Exists(ctx context.Context, ref string) (bool, error) {
	defer c.observe("exists", time.Now())
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.store.Exists(opCtx, ref)
}

// Delete removes the object behind a reference, best effort on retries.
func (c *Client) Delete(ctx context.Context, ref string) error {
	defer c.observe("delete", time.Now())
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.store.Delete(opCtx, ref)
}
