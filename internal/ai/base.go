package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/snusnumrick/robie/internal/logger"
)

type baseHTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  logger.Logger
}

func newBaseHTTPClient(client *http.Client, baseURL, apiKey string, log logger.Logger) *baseHTTPClient {
	return &baseHTTPClient{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  log,
	}
}

func (c *baseHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.baseURL != "" && !strings.HasPrefix(req.URL.String(), "http") {
		req.URL, _ = url.Parse(fmt.Sprintf(
			"%s/%s",
			strings.TrimSuffix(c.baseURL, "/"),
			strings.TrimPrefix(req.URL.String(), "/"),
		))
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewBuffer(body))
	}

	c.logRequest(req, body)

	return c.client.Do(req)
}

func (c *baseHTTPClient) logRequest(req *http.Request, body []byte) {
	var bodyData any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &bodyData); err == nil {
			if m, ok := bodyData.(map[string]any); ok {
				truncateLargeFields(m)
			}
		}
	}

	c.logger.WithFields(logger.Fields{
		"url":    req.URL.String(),
		"method": req.Method,
		"body":   bodyData,
	}).Debug("HTTP request")
}

func truncateLargeFields(data map[string]any) {
	for k, v := range data {
		switch val := v.(type) {
		case string:
			if (k == "url" || k == "content" || k == "text" || k == "image") && len(val) > 1000 {
				data[k] = val[:1000] + "...[truncated]"
			}
		case map[string]any:
			truncateLargeFields(val)
		case []any:
			for _, item := range val {
				if m, ok := item.(map[string]any); ok {
					truncateLargeFields(m)
				}
			}
		}
	}
}
