package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
)

// ConsulKV is a KVStore backed by Consul's HTTP KV and health APIs. No Go
// Consul client exists in this project's dependency corpus, so it talks to
// the documented REST endpoints directly over net/http, matching the shape
// of the original system's consul_client.py (kv.put/kv.delete/health.service).
type ConsulKV struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewConsulKV constructs a ConsulKV client from the process configuration
// (scheme, host, port, token).
func NewConsulKV(scheme, host string, port int, token string) *ConsulKV {
	return &ConsulKV{
		baseURL: fmt.Sprintf("%s://%s:%d", scheme, host, port),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Put writes value at key, retrying transient failures with backoff.
func (c *ConsulKV) Put(ctx context.Context, key string, value []byte) error {
	return c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.kvURL(key), bytes.NewReader(value))
		if err != nil {
			return err
		}
		return c.do(req)
	})
}

// Delete removes key.
func (c *ConsulKV) Delete(ctx context.Context, key string) error {
	return c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.kvURL(key), nil)
		if err != nil {
			return err
		}
		return c.do(req)
	})
}

// HealthySiblingCount queries Consul's passing-health-check service list and
// counts instances, following consul_client.py's register/deregister
// last-instance check.
func (c *ConsulKV) HealthySiblingCount(ctx context.Context, serviceName string) (int, error) {
	u := fmt.Sprintf("%s/v1/health/service/%s?passing=true", c.baseURL, url.PathEscape(serviceName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	if c.token != "" {
		req.Header.Set("X-Consul-Token", c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("schema: consul health query: unexpected status %d", resp.StatusCode)
	}
	var nodes []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&nodes); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

func (c *ConsulKV) kvURL(key string) string {
	return fmt.Sprintf("%s/v1/kv/%s", c.baseURL, key)
}

func (c *ConsulKV) do(req *http.Request) error {
	if c.token != "" {
		req.Header.Set("X-Consul-Token", c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return errors.Errorf("schema: consul request failed: status %d", resp.StatusCode)
	}
	return nil
}

// withRetry retries a transient-failure-prone call with the teacher's
// jpillora/backoff policy, capped at a handful of attempts so startup and
// shutdown do not hang indefinitely on a down discovery store.
func (c *ConsulKV) withRetry(ctx context.Context, fn func() error) error {
	b := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 5 * time.Second, Factor: 2}
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return errors.Wrap(lastErr, "schema: exhausted retries")
}
