// Package httprequest provides the HTTP request action.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukex/flowexec/pkg/protocol"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultMaxResponseSize = 10 << 20
	maxErrorBodySize       = 512
)

var (
	// ErrHTTPRequestURLInvalid is returned when the url is missing or not a string.
	ErrHTTPRequestURLInvalid = errors.New("invalid HTTP request url")
	// ErrHTTPMethodInvalid is returned when the HTTP method is not supported.
	ErrHTTPMethodInvalid = errors.New("invalid HTTP method")
	// ErrHTTPServerError is returned when the server keeps answering with 5xx.
	ErrHTTPServerError = errors.New("server error during HTTP request")
)

var supportedMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodHead:    {},
	http.MethodOptions: {},
}

// Action performs one HTTP call described by an already interpolated node config.
type Action struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration
	Retry   RetryConfig
	// MaxResponseBytes bounds the response body; larger bodies fail the node.
	MaxResponseBytes int64
}

// RetryConfig defines retry behaviour on transport errors and 5xx answers.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// NewAction builds an Action from config.
// body may be a string or any JSON value; non-string bodies are encoded as JSON.
func NewAction(config map[string]any) (*Action, error) {
	url, _ := config["url"].(string)
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("missing or invalid 'url' in configuration: %w", ErrHTTPRequestURLInvalid)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	method = strings.ToUpper(method)
	if _, ok := supportedMethods[method]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrHTTPMethodInvalid, method)
	}

	headers := make(map[string]string)
	if headersMap, ok := config["headers"].(map[string]any); ok {
		for k, v := range headersMap {
			if v == nil {
				continue
			}

			headers[k] = fmt.Sprintf("%v", v)
		}
	}

	body, err := encodeBody(config["body"])
	if err != nil {
		return nil, err
	}

	timeout := defaultTimeout
	if seconds := toInt(config["timeout_seconds"]); seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	maxResponse := int64(defaultMaxResponseSize)
	if limit := toInt(config["max_response_bytes"]); limit > 0 {
		maxResponse = int64(limit)
	}

	return &Action{
		Method:           method,
		URL:              url,
		Headers:          headers,
		Body:             body,
		Timeout:          timeout,
		Retry:            parseRetryConfig(config["retry"]),
		MaxResponseBytes: maxResponse,
	}, nil
}

func encodeBody(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal body: %w", err)
		}

		return string(b), nil
	}
}

func parseRetryConfig(raw any) RetryConfig {
	retry := RetryConfig{Attempts: 1}

	retryMap, ok := raw.(map[string]any)
	if !ok {
		return retry
	}

	if attempts := toInt(retryMap["attempts"]); attempts > 0 {
		retry.Attempts = attempts
	}

	if delay := toInt(retryMap["delay"]); delay > 0 {
		retry.Delay = time.Duration(delay) * time.Millisecond
	}

	return retry
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()

		return int(i)
	case string:
		i, _ := strconv.Atoi(n)

		return i
	default:
		return 0
	}
}

// Execute performs the request with retries. Credentials may carry a bearer
// "token", "username"/"password" for basic auth or an "api_key".
func (a *Action) Execute(
	ctx context.Context,
	client *http.Client,
	credentials map[string]string,
	logger *slog.Logger,
) protocol.Result {
	logger = logger.With("module", "http_request_action", "method", a.Method)

	var (
		lastErr error
		resp    *http.Response
	)

	for attempt := 1; attempt <= a.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying HTTP request", "attempt", attempt, "max_attempts", a.Retry.Attempts)

			select {
			case <-ctx.Done():
				return protocol.Fail("http request canceled: %v", ctx.Err())
			case <-time.After(a.Retry.Delay):
			}
		}

		req, err := a.buildRequest(ctx, credentials)
		if err != nil {
			return protocol.Fail("%v", err)
		}

		resp, err = client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed: %w", err)
			resp = nil

			continue
		}

		if resp.StatusCode >= 500 && attempt < a.Retry.Attempts {
			if err := resp.Body.Close(); err != nil {
				logger.ErrorContext(ctx, "failed to close response body", "error", err)
			}

			lastErr = fmt.Errorf("status %d: %w", resp.StatusCode, ErrHTTPServerError)
			resp = nil

			continue
		}

		break
	}

	if resp == nil {
		return protocol.Fail("all retry attempts failed, last error: %v", lastErr)
	}

	return a.processResponse(ctx, resp, logger)
}

func (a *Action) buildRequest(ctx context.Context, credentials map[string]string) (*http.Request, error) {
	var body io.Reader
	if a.Body != "" {
		body = strings.NewReader(a.Body)
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, a.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range a.Headers {
		req.Header.Set(key, value)
	}

	if a.Body != "" && req.Header.Get("Content-Type") == "" && json.Valid([]byte(a.Body)) {
		req.Header.Set("Content-Type", "application/json")
	}

	applyCredentials(req, credentials)

	return req, nil
}

func applyCredentials(req *http.Request, credentials map[string]string) {
	switch {
	case credentials["token"] != "":
		req.Header.Set("Authorization", "Bearer "+credentials["token"])
	case credentials["username"] != "":
		req.SetBasicAuth(credentials["username"], credentials["password"])
	case credentials["api_key"] != "":
		header := credentials["api_key_header"]
		if header == "" {
			header = "X-API-Key"
		}

		req.Header.Set(header, credentials["api_key"])
	}
}

func (a *Action) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) protocol.Result {
	defer func() {
		_ = resp.Body.Close()
	}()

	limit := a.MaxResponseBytes
	if limit <= 0 {
		limit = defaultMaxResponseSize
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return protocol.Fail("failed to read response body: %v", err)
	}

	if int64(len(bodyBytes)) > limit {
		return protocol.Fail("response body from status %d exceeds %d bytes", resp.StatusCode, limit)
	}

	var body any
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	headers := make(map[string]any, len(resp.Header))
	for k, v := range resp.Header {
		headers[k] = strings.Join(v, ", ")
	}

	logger.InfoContext(ctx, "HTTP request completed", "status", resp.StatusCode, "body_length", len(bodyBytes))

	if resp.StatusCode >= 400 {
		return protocol.Fail("request failed with status %d: %s", resp.StatusCode, truncate(bodyBytes, maxErrorBodySize))
	}

	return protocol.Ok(map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     headers,
	})
}

// truncate cuts b to at most n bytes without splitting a UTF-8 sequence.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}

	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}

	return string(b[:n])
}
