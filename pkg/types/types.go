// Package types defines the data shared by the research loop, the search
// providers, the citation handler and the formatting helpers.
package types

import (
	"fmt"
	"sort"
	"strings"
)

// SearchResult represents a single search result
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	// Content is the full text when the provider fetched it.
	Content string `json:"content,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Text returns the richest text available for the result.
func (r SearchResult) Text() string {
	if strings.TrimSpace(r.Content) != "" {
		return r.Content
	}
	return r.Snippet
}

// Document is a numbered source an analysis cites as [Index].
type Document struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Analysis is what the analyzer produces for one question.
type Analysis struct {
	Content   string     `json:"content"`
	Documents []Document `json:"documents"`
}

// String renders the analysis for the knowledge text.
func (a Analysis) String() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(a.Content))
	if len(a.Documents) > 0 {
		b.WriteString("\n\nDocuments:\n")
		for _, d := range a.Documents {
			fmt.Fprintf(&b, "[%d] %s", d.Index, d.Title)
			if d.URL != "" {
				fmt.Fprintf(&b, " (%s)", d.URL)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Finding ties one question of one iteration to its synthesized answer.
type Finding struct {
	Phase         string         `json:"phase"`
	Content       string         `json:"content"`
	Question      string         `json:"question"`
	SearchResults []SearchResult `json:"search_results"`
	Documents     []Document     `json:"documents"`
}

// PhaseLabel names the finding of the position-th (1-based) question of an iteration.
func PhaseLabel(iteration, position int) string {
	return fmt.Sprintf("Follow-up %d.%d", iteration, position)
}

// QuestionHistory maps an iteration index to the questions generated in it.
type QuestionHistory map[int][]string

// Iterations returns the recorded iteration indexes in ascending order.
func (h QuestionHistory) Iterations() []int {
	keys := make([]int, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Render produces the prompt form of the history. Output is deterministic.
func (h QuestionHistory) Render() string {
	var b strings.Builder
	for _, it := range h.Iterations() {
		fmt.Fprintf(&b, "Iteration %d:\n", it)
		if len(h[it]) == 0 {
			b.WriteString("- (no questions)\n")
			continue
		}
		for _, q := range h[it] {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
