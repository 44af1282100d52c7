package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mikeboe/research-loop/pkg/types"
)

const wikipediaEndpoint = "https://en.wikipedia.org/w/api.php"

type wikipediaResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
			PageID  int    `json:"pageid"`
		} `json:"search"`
	} `json:"query"`
}

// Wikipedia searches article titles and snippets through the MediaWiki API.
type Wikipedia struct {
	Endpoint   string
	MaxResults int
	client     *http.Client
}

func NewWikipedia(maxResults int) *Wikipedia {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Wikipedia{
		Endpoint:   wikipediaEndpoint,
		MaxResults: maxResults,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *Wikipedia) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("format", "json")
	params.Set("srsearch", query)
	params.Set("srlimit", strconv.Itoa(w.MaxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "research-loop/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wikipedia request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia http %d: %s", resp.StatusCode, string(body))
	}
	return ParseWikipediaResponse(body)
}

// ParseWikipediaResponse converts a list=search response into results.
// Snippets carry highlight markup, which is reduced to text.
func ParseWikipediaResponse(body []byte) ([]types.SearchResult, error) {
	var parsed wikipediaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wikipedia response: %w", err)
	}

	results := make([]types.SearchResult, 0, len(parsed.Query.Search))
	for _, s := range parsed.Query.Search {
		snippet := s.Snippet
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.Snippet)); err == nil {
			snippet = doc.Text()
		}
		results = append(results, types.SearchResult{
			Title:   s.Title,
			URL:     "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(s.Title, " ", "_")),
			Snippet: strings.Join(strings.Fields(snippet), " "),
			Source:  "wikipedia",
		})
	}
	return results, nil
}
