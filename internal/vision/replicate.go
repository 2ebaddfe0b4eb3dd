package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/snusnumrick/robie/internal/config"
	"github.com/snusnumrick/robie/internal/logger"
)

const defaultBaseURL = "https://api.replicate.com"

// Client runs an image-to-prompt model on Replicate and returns the
// derived caption.
type Client struct {
	client  *http.Client
	baseURL string
	token   string
	model   string
	logger  logger.Logger
}

type predictionRequest struct {
	Input predictionInput `json:"input"`
}

type predictionInput struct {
	Image string `json:"image"`
}

type prediction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output string `json:"output"`
	Error  string `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func NewClient(client *http.Client, cfg config.ReplicateConfig, log logger.Logger) *Client {
	return &Client{
		client:  client,
		baseURL: defaultBaseURL,
		token:   cfg.Token,
		model:   cfg.Model,
		logger:  log,
	}
}

// Caption submits the image and blocks until the prediction settles.
// An absent caption is returned as "", not as an error.
func (c *Client) Caption(ctx context.Context, imageURL string) (string, error) {
	requestBody, err := json.Marshal(predictionRequest{
		Input: predictionInput{Image: imageURL},
	})
	if err != nil {
		return "", fmt.Errorf("marshal error: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s/predictions", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("create request error: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}

	result, err := decodePrediction(resp)
	if err != nil {
		return "", err
	}

	// "Prefer: wait" usually settles the prediction in one round trip;
	// poll when the provider hands back a still-running one.
	for result.Status == "starting" || result.Status == "processing" {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}

		result, err = c.getPrediction(ctx, result.URLs.Get)
		if err != nil {
			return "", err
		}
	}

	if result.Status != "succeeded" {
		c.logger.WithFields(logger.Fields{
			"status": result.Status,
			"error":  result.Error,
		}).Warn("Caption prediction did not succeed")
		return "", nil
	}

	return result.Output, nil
}

func (c *Client) getPrediction(ctx context.Context, url string) (*prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request error: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	return decodePrediction(resp)
}

func decodePrediction(resp *http.Response) (*prediction, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response error: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("replicate error: status %d: %s", resp.StatusCode, body)
	}

	var result prediction
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prediction: %w", err)
	}
	return &result, nil
}
