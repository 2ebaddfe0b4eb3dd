package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/snusnumrick/robie/internal/chat"
	"github.com/snusnumrick/robie/internal/config"
	"github.com/snusnumrick/robie/internal/logger"
)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient *baseHTTPClient
	model      string
	logger     logger.Logger
}

// Completion is the part of a provider response the bot cares about.
type Completion struct {
	Role        chat.Role
	Content     string
	TotalTokens int
}

type completionRequest struct {
	Model       string         `json:"model"`
	Messages    []chat.Message `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float64        `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

func NewClient(httpClient *http.Client, cfg config.OpenAIConfig, log logger.Logger) *Client {
	return &Client{
		httpClient: newBaseHTTPClient(httpClient, cfg.BaseURL, cfg.Key, log),
		model:      cfg.Model,
		logger:     log,
	}
}

func (c *Client) Complete(ctx context.Context, messages []chat.Message, temperature float64, maxTokens int) (*Completion, error) {
	request := completionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("create request error: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response error: %w", err)
	}

	var result completionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response (status %d): %w", resp.StatusCode, err)
	}

	// some providers return API errors inside a 200 body
	if result.Error != nil {
		return nil, fmt.Errorf("%s", result.Error.Message)
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response (status %d)", resp.StatusCode)
	}

	choice := result.Choices[0].Message
	return &Completion{
		Role:        chat.Role(choice.Role),
		Content:     choice.Content,
		TotalTokens: result.Usage.TotalTokens,
	}, nil
}
