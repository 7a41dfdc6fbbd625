package portalsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// response is a fully read HTTP answer. Bodies are small JSON documents,
// so reading them eagerly keeps retries and error parsing simple.
type response struct {
	status int
	body   []byte
}

func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// send performs one request. payload is replayable because it is a byte
// slice rather than a reader.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, bearer string) (response, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return response{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("failed to read response body: %w", err)
	}
	return response{status: resp.StatusCode, body: b}, nil
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.([]byte); ok {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return b, nil
}

// decode turns a response into out, or into an APIError for any non-2xx
// status.
func decode(resp response, out any) error {
	if resp.status < 200 || resp.status >= 300 {
		return parseErrorResponse(resp.status, resp.body)
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// call is the unauthenticated round trip used by Client.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	payload, err := encodeBody(in)
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, method, path, payload, "")
	if err != nil {
		return err
	}
	return decode(resp, out)
}
