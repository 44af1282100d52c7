package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mikeboe/research-loop/pkg/types"
)

const arxivEndpoint = "https://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	ID        string      `xml:"id"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// Arxiv searches papers through the arXiv Atom API.
type Arxiv struct {
	Endpoint   string
	MaxResults int
	// Scraper, when set, replaces each result's snippet with the PDF text.
	Scraper *PDFScraper
	Logger  *slog.Logger
	client  *http.Client
}

func NewArxiv(maxResults int) *Arxiv {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Arxiv{
		Endpoint:   arxivEndpoint,
		MaxResults: maxResults,
		Logger:     slog.Default(),
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Search queries the arXiv API and returns one result per paper.
func (a *Arxiv) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(a.MaxResults))
	params.Add("start", "0")
	apiURL := a.Endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create arxiv request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		a.Logger.Error("API returned non-200 status code", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("API returned non-200 status code: %d", resp.StatusCode)
	}

	results, err := ParseArxivFeed(body)
	if err != nil {
		return nil, err
	}
	a.Logger.Info("Arxiv search successful", "query", query, "count", len(results))

	if a.Scraper != nil {
		a.scrape(ctx, results)
	}
	return results, nil
}

func (a *Arxiv) scrape(ctx context.Context, results []types.SearchResult) {
	for i := range results {
		if results[i].URL == "" {
			continue
		}
		text, err := a.Scraper.ScrapePDF(ctx, results[i].URL)
		if err != nil {
			a.Logger.Warn("Failed to scrape, using summary", "url", results[i].URL, "error", err)
			continue
		}
		results[i].Content = text
	}
}

// ParseArxivFeed converts an Atom feed into search results. The PDF link is
// preferred as URL; the abstract page is used when no PDF link is present.
func ParseArxivFeed(body []byte) ([]types.SearchResult, error) {
	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	results := make([]types.SearchResult, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		title := strings.Join(strings.Fields(entry.Title), " ")
		if title == "" {
			continue
		}
		link := strings.TrimSpace(entry.ID)
		for _, l := range entry.Link {
			if l.Type == "application/pdf" {
				link = l.Href
				break
			}
		}
		snippet := strings.Join(strings.Fields(entry.Summary), " ")
		if entry.Published != "" {
			snippet = fmt.Sprintf("(%s) %s", entry.Published, snippet)
		}
		results = append(results, types.SearchResult{
			Title:   title,
			URL:     link,
			Snippet: snippet,
			Source:  "arxiv",
		})
	}
	return results, nil
}
