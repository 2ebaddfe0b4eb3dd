package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/snusnumrick/robie/internal/config"
	"github.com/snusnumrick/robie/internal/logger"
)

const bingChatURL = "https://www.bing.com/turing/conversation/chats"

var (
	citationRe     = regexp.MustCompile(`\s*\[\^\d+\^\]`)
	boldRe         = regexp.MustCompile(`\*\*(.*?)\*\*`)
	markdownLinkRe = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
)

// BingChat asks the conversational search endpoint a single question.
// Auth is the user's _U session cookie.
type BingChat struct {
	client *http.Client
	cookie string
	logger logger.Logger
}

type bingRequest struct {
	Message string `json:"message"`
	Locale  string `json:"locale,omitempty"`
}

type bingResponse struct {
	Text string `json:"text"`
}

func NewBingChat(client *http.Client, cfg config.BingConfig, log logger.Logger) *BingChat {
	return &BingChat{
		client: client,
		cookie: cfg.Cookie,
		logger: log,
	}
}

// Ask sends one message and returns the reply with the `[^n^]` citation
// markers stripped. An empty reply is a normal negative outcome.
func (b *BingChat) Ask(ctx context.Context, query, locale string) (string, error) {
	requestBody, err := json.Marshal(bingRequest{
		Message: query,
		Locale:  locale,
	})
	if err != nil {
		return "", fmt.Errorf("marshal error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, bingChatURL, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("create request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", RandomUserAgent())
	req.AddCookie(&http.Cookie{Name: "_U", Value: b.cookie})

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("conversational search failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response error: %w", err)
	}

	var result bingResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return StripCitations(result.Text), nil
}

// StripCitations removes the `[^n^]` reference markers and any space
// directly before them.
func StripCitations(text string) string {
	return citationRe.ReplaceAllString(text, "")
}

// ToHTML converts the reply's markdown bold spans and links into the
// HTML the transport's HTML parse mode understands.
func ToHTML(text string) string {
	text = boldRe.ReplaceAllString(text, "<b>$1</b>")
	return markdownLinkRe.ReplaceAllString(text, "<a href='$2'>$1</a>")
}

// ToPlain drops the markdown bold markers, leaving everything else
// untouched. The plain variant is what goes into history.
func ToPlain(text string) string {
	return boldRe.ReplaceAllString(text, "$1")
}
