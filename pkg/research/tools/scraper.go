package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const mistralOCREndpoint = "https://api.mistral.ai/v1/ocr"

type PdfScrapeResponsePage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type OcrResponse struct {
	Pages []PdfScrapeResponsePage `json:"pages"`
}

// PDFScraper extracts the text of PDF documents with the Mistral OCR API.
type PDFScraper struct {
	APIKey   string
	Endpoint string
	// MaxChars caps the returned text; zero means no limit.
	MaxChars int
	client   *http.Client
}

func NewPDFScraper(apiKey string) *PDFScraper {
	return &PDFScraper{
		APIKey:   apiKey,
		Endpoint: mistralOCREndpoint,
		MaxChars: 20000,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}
}

// ScrapePDF extracts the contents of a PDF file as markdown text.
func (s *PDFScraper) ScrapePDF(ctx context.Context, url string) (string, error) {
	if s.APIKey == "" {
		return "", errors.New("MISTRAL_API_KEY is not set")
	}
	url = strings.Replace(url, "http://", "https://", 1)

	reqBody := map[string]interface{}{
		"model": "mistral-ocr-latest",
		"document": map[string]string{
			"type":         "document_url",
			"document_url": url,
		},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status: %s, body: %s", resp.Status, string(body))
	}

	var ocrResponse OcrResponse
	if err := json.Unmarshal(body, &ocrResponse); err != nil {
		return "", fmt.Errorf("failed to unmarshal OCR response: %w", err)
	}
	return s.render(ocrResponse), nil
}

func (s *PDFScraper) render(r OcrResponse) string {
	var b strings.Builder
	for _, page := range r.Pages {
		fmt.Fprintf(&b, "- Page %d -\n", page.Index)
		b.WriteString(page.Markdown)
		b.WriteString("\n\n")
	}
	text := strings.TrimSpace(b.String())
	if s.MaxChars > 0 {
		if runes := []rune(text); len(runes) > s.MaxChars {
			text = string(runes[:s.MaxChars])
		}
	}
	return text
}
