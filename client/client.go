// Package client sends requests to the API and decodes the JSON responses.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// Version of the SDK, sent in the x-sdk-version header.
const Version = "0.1.0"

// Client ...
type Client struct {
	endpoint   string
	headers    map[string]string
	httpClient *retryablehttp.Client

	// uploadClient sends chunk requests. It never retries, failed chunks are
	// surfaced to the caller which can resume from them.
	uploadClient *retryablehttp.Client
	logger       log.Logger
}

// New creates a client for the API at cfg.Endpoint.
func New(cfg Config, logger log.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint must not be empty")
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	httpClient := retryhttp.NewClient(logger)
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.RetryMax < 0 {
		httpClient.RetryMax = 0
	} else if cfg.RetryMax > 0 {
		httpClient.RetryMax = cfg.RetryMax
	}
	if cfg.SelfSigned {
		if transport, ok := httpClient.HTTPClient.Transport.(*http.Transport); ok {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
	}

	uploadClient := retryhttp.NewClient(logger)
	uploadClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	uploadClient.RetryMax = 0
	uploadClient.HTTPClient = httpClient.HTTPClient

	return &Client{
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		headers:      defaultHeaders(cfg),
		httpClient:   httpClient,
		uploadClient: uploadClient,
		logger:       logger,
	}, nil
}

func defaultHeaders(cfg Config) map[string]string {
	headers := map[string]string{
		"x-sdk-name":                 "Go",
		"x-sdk-platform":             "server",
		"x-sdk-language":             "go",
		"x-sdk-version":              Version,
		"x-appwrite-response-format": "1.0.0",
	}
	if cfg.Project != "" {
		headers["x-appwrite-project"] = cfg.Project
	}
	if cfg.Key != "" {
		headers["x-appwrite-key"] = string(cfg.Key)
	}
	if cfg.JWT != "" {
		headers["x-appwrite-jwt"] = string(cfg.JWT)
	}
	if cfg.Locale != "" {
		headers["x-appwrite-locale"] = cfg.Locale
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return headers
}

// Call sends a request with params in the query string (GET, DELETE) or as a JSON body.
func (c *Client) Call(ctx context.Context, method, path string, headers map[string]string, params map[string]interface{}) (map[string]interface{}, error) {
	endpoint := c.endpoint + path
	var body interface{}

	if method == http.MethodGet || method == http.MethodDelete {
		if query := queryValues(params).Encode(); query != "" {
			endpoint += "?" + query
		}
	} else {
		encoded, err := json.Marshal(withoutNils(params))
		if err != nil {
			return nil, fmt.Errorf("encode params: %w", err)
		}
		body = encoded
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.applyHeaders(req, headers)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(c.httpClient, req, method, path)
}

func (c *Client) applyHeaders(req *retryablehttp.Request, headers map[string]string) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

func (c *Client) do(httpClient *retryablehttp.Client, req *retryablehttp.Request, method, path string) (map[string]interface{}, error) {
	dump, err := httputil.DumpRequest(req.Request, false)
	if err != nil {
		c.logger.Warnf("error while dumping request: %s", err)
	}
	c.logger.Debugf("Request dump: %s", string(dump))

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Warnf("close response body: %s", err)
		}
	}(resp.Body)

	c.logger.Debugf("%s %s: %s", method, path, resp.Status)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, unwrapError(resp)
	}

	return decodeResponse(resp)
}

func decodeResponse(resp *http.Response) (map[string]interface{}, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	result := map[string]interface{}{}
	if len(strings.TrimSpace(string(body))) == 0 {
		return result, nil
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return nil, fmt.Errorf("unexpected response content type %q", resp.Header.Get("Content-Type"))
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return result, nil
}

func withoutNils(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func queryValues(params map[string]interface{}) url.Values {
	values := url.Values{}
	for k, v := range params {
		for _, field := range formFields(k, v) {
			values.Add(field.key, field.value)
		}
	}
	return values
}
