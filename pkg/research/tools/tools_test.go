package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mikeboe/research-loop/pkg/types"
)

const arxivFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <published>2017-06-12T17:57:34Z</published>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models
      are based on recurrent networks.</summary>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2001.00001v1</id>
    <title>No PDF</title>
    <summary>Abstract only.</summary>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2001.00002v1</id>
    <title>   </title>
  </entry>
</feed>`

func TestParseArxivFeed(t *testing.T) {
	results, err := ParseArxivFeed([]byte(arxivFeed))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Attention Is All You Need", results[0].Title)
	assert.Equal(t, "http://arxiv.org/pdf/1706.03762v7", results[0].URL)
	assert.Equal(t, "(2017-06-12T17:57:34Z) The dominant sequence transduction models are based on recurrent networks.", results[0].Snippet)
	assert.Equal(t, "arxiv", results[0].Source)

	assert.Equal(t, "http://arxiv.org/abs/2001.00001v1", results[1].URL)
	assert.Equal(t, "Abstract only.", results[1].Snippet)
}

func TestArxivSearch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		_, _ = w.Write([]byte(arxivFeed))
	}))
	defer srv.Close()

	a := NewArxiv(2)
	a.Endpoint = srv.URL
	results, err := a.Search(context.Background(), "transformers")
	require.NoError(t, err)
	assert.Equal(t, "all:transformers", gotQuery)
	assert.Len(t, results, 2)
}

func TestArxivSearchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewArxiv(2)
	a.Endpoint = srv.URL
	_, err := a.Search(context.Background(), "x")
	assert.Error(t, err)
}

const ddgPage = `<html><body><table>
<tr><td>1.&nbsp;</td><td><a rel="nofollow" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc" class='result-link'>Go   Documentation</a></td></tr>
<tr><td>&nbsp;</td><td class='result-snippet'>The <b>Go</b> programming language documentation.</td></tr>
<tr><td>2.&nbsp;</td><td><a rel="nofollow" href="https://pkg.go.dev/" class='result-link'>Go Packages</a></td></tr>
<tr><td>&nbsp;</td><td class='result-snippet'>Discover packages.</td></tr>
<tr><td>3.&nbsp;</td><td><a rel="nofollow" href="https://example.com/" class='result-link'>Third</a></td></tr>
<tr><td>&nbsp;</td><td class='result-snippet'>Third snippet.</td></tr>
</table></body></html>`

func TestParseDuckDuckGoHTML(t *testing.T) {
	results, err := ParseDuckDuckGoHTML(ddgPage, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, types.SearchResult{
		Title:   "Go Documentation",
		URL:     "https://go.dev/doc/",
		Snippet: "The Go programming language documentation.",
		Source:  "duckduckgo",
	}, results[0])
	assert.Equal(t, "https://pkg.go.dev/", results[1].URL)
	assert.Equal(t, "Discover packages.", results[1].Snippet)
}

func TestParseDuckDuckGoHTMLNoResults(t *testing.T) {
	results, err := ParseDuckDuckGoHTML("<html><body>No results.</body></html>", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestResolveDuckDuckGoLink(t *testing.T) {
	tests := map[string]string{
		"https://example.com/a":                           "https://example.com/a",
		"//duckduckgo.com/l/?uddg=https%3A%2F%2Fx.org%2F": "https://x.org/",
		"https://duckduckgo.com/y.js?ad=1":                "",
		"javascript:void(0)":                              "",
		"":                                                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, resolveDuckDuckGoLink(in), in)
	}
}

func TestParseWikipediaResponse(t *testing.T) {
	body := `{"query":{"search":[
		{"title":"Paris","pageid":22989,"snippet":"<span class=\"searchmatch\">Paris</span> is the capital of France"},
		{"title":"Paris Commune","pageid":1,"snippet":"The <span class=\"searchmatch\">Paris</span> Commune"}
	]}}`

	results, err := ParseWikipediaResponse([]byte(body))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Paris", results[0].URL)
	assert.Equal(t, "Paris is the capital of France", results[0].Snippet)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Paris_Commune", results[1].URL)
	assert.Equal(t, "wikipedia", results[1].Source)

	_, err = ParseWikipediaResponse([]byte("not json"))
	assert.Error(t, err)
}

type stubSearcher struct {
	results []types.SearchResult
	err     error
}

func (s stubSearcher) Search(context.Context, string) ([]types.SearchResult, error) {
	return s.results, s.err
}

func TestAutoMergesAndDeduplicates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	a := NewAuto(nil,
		NamedSearcher{Name: "one", Searcher: stubSearcher{results: []types.SearchResult{{URL: "https://a.example/"}, {URL: "https://b.example"}}}},
		NamedSearcher{Name: "broken", Searcher: stubSearcher{err: errors.New("down")}},
		NamedSearcher{Name: "two", Searcher: stubSearcher{results: []types.SearchResult{{URL: "https://a.example"}, {URL: "https://c.example"}}}},
	)

	results, err := a.Search(context.Background(), "q")
	require.NoError(t, err)

	var urls []string
	for _, r := range results {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{"https://a.example/", "https://b.example", "https://c.example"}, urls)
}

func TestAutoFailsWhenEveryProviderFails(t *testing.T) {
	down := errors.New("down")
	a := NewAuto(nil,
		NamedSearcher{Name: "one", Searcher: stubSearcher{err: down}},
		NamedSearcher{Name: "two", Searcher: stubSearcher{err: errors.New("also down")}},
	)

	_, err := a.Search(context.Background(), "q")
	assert.ErrorIs(t, err, down)
}

func TestAutoEmptyIsNotAnError(t *testing.T) {
	a := NewAuto(nil, NamedSearcher{Name: "one", Searcher: stubSearcher{}})
	results, err := a.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNew(t *testing.T) {
	for name, want := range map[string]any{
		"arxiv":      &Arxiv{},
		"DuckDuckGo": &DuckDuckGo{},
		"wikipedia":  &Wikipedia{},
		"auto":       &Auto{},
		"":           &Auto{},
	} {
		s, err := New(name, Options{MaxResults: 3})
		require.NoError(t, err, name)
		assert.IsType(t, want, s, name)
	}

	_, err := New("altavista", Options{})
	assert.ErrorIs(t, err, ErrUnknownSearchTool)
}

func TestNewArxivWithFullText(t *testing.T) {
	s, err := New("arxiv", Options{FetchFullText: true, MistralAPIKey: "key"})
	require.NoError(t, err)
	assert.NotNil(t, s.(*Arxiv).Scraper)

	s, err = New("arxiv", Options{FetchFullText: true})
	require.NoError(t, err)
	assert.Nil(t, s.(*Arxiv).Scraper)
}

func TestScrapePDF(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"pages":[{"index":0,"markdown":"# Title"},{"index":1,"markdown":"Body text"}]}`))
	}))
	defer srv.Close()

	s := NewPDFScraper("secret")
	s.Endpoint = srv.URL
	s.MaxChars = 20

	text, err := s.ScrapePDF(context.Background(), "http://arxiv.org/pdf/1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "- Page 0 -\n# Title\n\n", text)
}

func TestScrapePDFWithoutKey(t *testing.T) {
	_, err := NewPDFScraper("").ScrapePDF(context.Background(), "https://x")
	assert.Error(t, err)
}
