package search

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/snusnumrick/robie/internal/logger"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/74.0.3729.169 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/72.0.3626.121 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/74.0.3729.157 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/96.0.4664.110 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/96.0.4664.45 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/97.0.4692.71 Safari/537.36",
}

func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// GoogleSearch scrapes the answer boxes of a result page: knowledge
// panel, featured snippet, dictionary, place card. It returns a plain
// text summary or "" when the page has no usable answer.
type GoogleSearch struct {
	client *http.Client
	logger logger.Logger
}

func NewGoogleSearch(client *http.Client, log logger.Logger) *GoogleSearch {
	return &GoogleSearch{
		client: client,
		logger: log,
	}
}

func (g *GoogleSearch) Search(ctx context.Context, query, locale string) (string, error) {
	doc, err := g.fetch(ctx, query, locale)
	if err != nil {
		return "", err
	}
	return extractAnswer(doc), nil
}

func (g *GoogleSearch) fetch(ctx context.Context, query, locale string) (*goquery.Document, error) {
	searchURL := fmt.Sprintf(
		"https://www.google.com/search?q=%s&hl=%s",
		url.QueryEscape(query),
		url.QueryEscape(locale),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request error: %w", err)
	}
	req.Header.Set("User-Agent", RandomUserAgent())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed: status %d", resp.StatusCode)
	}

	return goquery.NewDocumentFromReader(resp.Body)
}

// The class names below are what the result page serves to the user
// agents above; they change rarely but silently.
func extractAnswer(doc *goquery.Document) string {
	brief := joinText(doc, ".sXLaOe")
	extract := joinText(doc, ".hgKElc")
	denotion := joinText(doc, ".wx62f")
	place := joinText(doc, ".HwtpBd")
	wiki := joinText(doc, ".yxjZuf span")

	a1 := joinText(doc, ".UDZeY span")
	a1 = strings.ReplaceAll(a1, "Описание", "")
	a1 = strings.ReplaceAll(a1, "ЕЩЁ", "")
	a1 += doc.Find(".LGOjhe span").Text()
	a2 := joinText(doc, ".yXK7lf span")

	var sections []string
	for _, section := range []string{brief, extract, denotion, place, wiki} {
		if section != "" {
			sections = append(sections, section)
		}
	}

	if result := strings.Join(sections, "; "); result != "" {
		return result
	}
	if a2 != "" {
		return a2
	}
	return a1
}

func joinText(doc *goquery.Document, selector string) string {
	var parts []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	return strings.Join(parts, " ")
}
