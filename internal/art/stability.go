package art

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/snusnumrick/robie/internal/config"
	"github.com/snusnumrick/robie/internal/logger"
)

// Client generates images through the Stability AI text-to-image REST
// API.
type Client struct {
	client *http.Client
	host   string
	key    string
	engine string
	logger logger.Logger
}

// Result carries either the generated image or a user-facing status
// describing why generation failed. Provider failures are a status,
// not an error.
type Result struct {
	OK     bool
	Status string
	Data   []byte
}

type generationRequest struct {
	CfgScale           int          `json:"cfg_scale"`
	ClipGuidancePreset string       `json:"clip_guidance_preset"`
	Height             int          `json:"height"`
	Width              int          `json:"width"`
	Samples            int          `json:"samples"`
	Steps              int          `json:"steps"`
	TextPrompts        []TextPrompt `json:"text_prompts"`
}

func NewClient(client *http.Client, cfg config.StabilityConfig, log logger.Logger) *Client {
	return &Client{
		client: client,
		host:   cfg.Host,
		key:    cfg.Key,
		engine: cfg.Engine,
		logger: log,
	}
}

// Generate parses the subject into weighted prompts and renders one
// 512x512 image.
func (c *Client) Generate(ctx context.Context, subject string) (*Result, error) {
	request := generationRequest{
		CfgScale:           7,
		ClipGuidancePreset: "FAST_BLUE",
		Height:             512,
		Width:              512,
		Samples:            1,
		Steps:              50,
		TextPrompts:        ParsePrompts(subject),
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal error: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/generation/%s/text-to-image", c.host, c.engine)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("create request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")
	req.Header.Set("Authorization", c.key)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Result{Status: fmt.Sprintf("Stability AI error: %v", err)}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response error: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		status := fmt.Sprintf("Stability AI error: %s", extractAPIMessage(body))
		c.logger.WithField("status_code", resp.StatusCode).Error(status)
		return &Result{Status: status}, nil
	}

	return &Result{OK: true, Status: "ok", Data: body}, nil
}

func extractAPIMessage(body []byte) string {
	var apiError struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Message != "" {
		return apiError.Message
	}
	return string(body)
}
