package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// client calls the ragd HTTP API.
type client struct {
	base   string
	tenant string
	http   *http.Client
}

func newClient() *client {
	return &client{
		base:   strings.TrimRight(serverURL, "/"),
		tenant: tenantToken,
		http:   &http.Client{Timeout: timeout},
	}
}

// apiError is a non-2xx response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

func (c *client) requireTenant() error {
	if c.tenant == "" {
		return errors.New("tenant token required: pass --tenant or set " + tenantEnv)
	}
	return nil
}

// do sends a request and decodes a JSON response into out, which may be nil.
func (c *client) do(ctx context.Context, method, path string, query url.Values, headers map[string]string, body io.Reader, contentType string, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.tenant != "" {
		req.Header.Set("tenant", c.tenant)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{Status: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
		}
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr == nil {
			if json.Unmarshal(raw, &msg) == nil && msg.Message != "" {
				apiErr.Message = msg.Message
			} else {
				apiErr.Message = strings.TrimSpace(string(raw))
			}
		}
		return apiErr
	}

	if out == nil || method == http.MethodHead {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// printJSON writes v pretty-printed to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
