package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mikeboe/research-loop/pkg/types"
)

var ErrUnknownSearchTool = errors.New("unknown search tool")

// Searcher is implemented by every search provider in this package.
type Searcher interface {
	Search(ctx context.Context, query string) ([]types.SearchResult, error)
}

type Options struct {
	MaxResults int
	// MistralAPIKey enables PDF scraping of arXiv results when FetchFullText is set.
	MistralAPIKey string
	FetchFullText bool
	Logger        *slog.Logger
}

// New returns the searcher registered under name: arxiv, duckduckgo,
// wikipedia or auto.
func New(name string, opts Options) (Searcher, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "arxiv":
		return newArxiv(opts), nil
	case "duckduckgo", "ddg":
		return NewDuckDuckGo(opts.MaxResults), nil
	case "wikipedia", "wiki":
		return NewWikipedia(opts.MaxResults), nil
	case "", "auto":
		return NewAuto(opts.Logger,
			NamedSearcher{Name: "duckduckgo", Searcher: NewDuckDuckGo(opts.MaxResults)},
			NamedSearcher{Name: "wikipedia", Searcher: NewWikipedia(opts.MaxResults)},
			NamedSearcher{Name: "arxiv", Searcher: newArxiv(opts)},
		), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSearchTool, name)
	}
}

func newArxiv(opts Options) *Arxiv {
	a := NewArxiv(opts.MaxResults)
	a.Logger = opts.Logger
	if opts.FetchFullText && opts.MistralAPIKey != "" {
		a.Scraper = NewPDFScraper(opts.MistralAPIKey)
	}
	return a
}

type NamedSearcher struct {
	Name     string
	Searcher Searcher
}

// Auto queries several providers concurrently and merges their results in
// provider order, dropping duplicate URLs. It fails only if every provider fails.
type Auto struct {
	Providers []NamedSearcher
	Logger    *slog.Logger
}

func NewAuto(logger *slog.Logger, providers ...NamedSearcher) *Auto {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auto{Providers: providers, Logger: logger}
}

func (a *Auto) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	if len(a.Providers) == 0 {
		return nil, errors.New("no search providers configured")
	}

	perProvider := make([][]types.SearchResult, len(a.Providers))
	errs := make([]error, len(a.Providers))

	// Provider errors are recorded per index; the group itself never fails.
	var eg errgroup.Group
	for i, p := range a.Providers {
		eg.Go(func() error {
			results, err := p.Searcher.Search(ctx, query)
			if err != nil {
				a.Logger.Error("Search provider failed", "provider", p.Name, "query", query, "error", err)
				errs[i] = fmt.Errorf("%s: %w", p.Name, err)
				return nil
			}
			perProvider[i] = results
			return nil
		})
	}
	_ = eg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(a.Providers) {
		return nil, fmt.Errorf("all search providers failed: %w", errors.Join(errs...))
	}

	var merged []types.SearchResult
	seen := make(map[string]bool)
	for _, results := range perProvider {
		for _, r := range results {
			key := strings.TrimRight(strings.TrimSpace(r.URL), "/")
			if key != "" && seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, r)
		}
	}
	return merged, nil
}
